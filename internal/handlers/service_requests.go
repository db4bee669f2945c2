package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/servicerequests"
	"github.com/charlesng35/crewbell/pkg/response"
)

// ServiceRequestHandler exposes guest call endpoints.
type ServiceRequestHandler struct {
	service *servicerequests.Service
}

// NewServiceRequestHandler constructs a service request handler.
func NewServiceRequestHandler(service *servicerequests.Service) (*ServiceRequestHandler, error) {
	if service == nil {
		return nil, errors.New("service request handler: service is required")
	}
	return &ServiceRequestHandler{service: service}, nil
}

// Create opens a guest call and alerts the crew.
func (h *ServiceRequestHandler) Create(c *gin.Context) {
	var input servicerequests.CreateInput
	if !bindAndValidate(c, &input) {
		return
	}

	req, err := h.service.Create(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, req)
}

// List returns requests nobody has completed yet.
func (h *ServiceRequestHandler) List(c *gin.Context) {
	items, err := h.service.ListPending(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: len(items)})
}

// Get returns a single request.
func (h *ServiceRequestHandler) Get(c *gin.Context) {
	req, err := h.service.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, req)
}

// Accept assigns the request to the calling crew member.
func (h *ServiceRequestHandler) Accept(c *gin.Context) {
	crewID, ok := currentCrew(c)
	if !ok {
		return
	}

	req, err := h.service.Accept(requestContext(c), strings.TrimSpace(c.Param("id")), crewID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, req)
}

// Complete closes the request.
func (h *ServiceRequestHandler) Complete(c *gin.Context) {
	req, err := h.service.Complete(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, req)
}
