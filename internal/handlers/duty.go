package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/duty"
	appErrors "github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/response"
	appValidator "github.com/charlesng35/crewbell/pkg/validator"
)

// DutyHandler manages crew duty assignments.
type DutyHandler struct {
	service *duty.Service
}

// NewDutyHandler constructs a duty handler.
func NewDutyHandler(service *duty.Service) (*DutyHandler, error) {
	if service == nil {
		return nil, errors.New("duty handler: service is required")
	}
	return &DutyHandler{service: service}, nil
}

// List returns the assignments for ?date=YYYY-MM-DD, defaulting to today (UTC).
func (h *DutyHandler) List(c *gin.Context) {
	date := time.Now().UTC()
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := time.Parse(appValidator.DateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("date must be formatted as YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	rows, err := h.service.ListForDate(requestContext(c), date)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, rows, &response.Meta{Total: len(rows)})
}

// Assign places a crew member on a shift, notifying them when the duty is new or changed.
func (h *DutyHandler) Assign(c *gin.Context) {
	var input duty.AssignInput
	if !bindAndValidate(c, &input) {
		return
	}

	result, err := h.service.Assign(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Unassign removes a crew member from a shift. Unknown assignments succeed with removed=false.
func (h *DutyHandler) Unassign(c *gin.Context) {
	var input duty.UnassignInput
	if !bindAndValidate(c, &input) {
		return
	}

	removed, err := h.service.Unassign(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}
