package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/sound"
	"github.com/charlesng35/crewbell/pkg/response"
)

// SoundLocator resolves the public URL of a sound asset.
type SoundLocator interface {
	URL(entry sound.Entry) string
}

// SoundHandler lists the alert sound catalog with its load state.
type SoundHandler struct {
	preloader *sound.Preloader
	locator   SoundLocator
}

type soundView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// NewSoundHandler constructs a sound handler.
func NewSoundHandler(preloader *sound.Preloader, locator SoundLocator) (*SoundHandler, error) {
	if preloader == nil {
		return nil, errors.New("sound handler: preloader is required")
	}
	if locator == nil {
		return nil, errors.New("sound handler: locator is required")
	}
	return &SoundHandler{preloader: preloader, locator: locator}, nil
}

// List returns every catalog entry in catalog order.
func (h *SoundHandler) List(c *gin.Context) {
	statuses := h.preloader.Statuses()
	views := make([]soundView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, soundView{
			ID:    status.ID,
			Name:  status.Name,
			URL:   h.locator.URL(status.Entry),
			State: status.State.String(),
			Error: status.Error,
		})
	}
	response.SuccessWithMeta(c, http.StatusOK, views, &response.Meta{Total: len(views)})
}
