package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/pkg/response"
)

// SettingsHandler serves the shared notification settings.
type SettingsHandler struct {
	service *settings.Service
}

// NewSettingsHandler constructs a settings handler.
func NewSettingsHandler(service *settings.Service) (*SettingsHandler, error) {
	if service == nil {
		return nil, errors.New("settings handler: service is required")
	}
	return &SettingsHandler{service: service}, nil
}

// Get returns the current notification settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, h.service.Current())
}

// Update applies a partial update. Omitted fields keep their value.
func (h *SettingsHandler) Update(c *gin.Context) {
	var patch settings.Patch
	if !bindAndValidate(c, &patch) {
		return
	}

	updated, err := h.service.Update(requestContext(c), patch)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// Reset restores the default settings.
func (h *SettingsHandler) Reset(c *gin.Context) {
	response.Success(c, http.StatusOK, h.service.Reset(requestContext(c)))
}
