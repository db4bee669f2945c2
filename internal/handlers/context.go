package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/middleware"
	"github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentCrew returns the authenticated crew id, writing a 401 when it is missing.
func currentCrew(c *gin.Context) (int64, bool) {
	crewID, ok := middleware.CrewID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return 0, false
	}
	return crewID, true
}
