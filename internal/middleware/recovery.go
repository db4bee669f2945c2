package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
	"github.com/charlesng35/crewbell/pkg/response"
)

// Recovery turns a handler panic into a 500 envelope. The panic is logged with
// the calling crew member when known and counted.
func Recovery() gin.HandlerFunc {
	log := logger.WithModule("http")
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			}
			if crew, ok := CrewID(c); ok {
				fields = append(fields, zap.Int64("crew", crew))
			}
			log.Error("handler panic", fields...)
			metrics.HandlerPanics.Inc()

			if !c.Writer.Written() {
				response.Error(c, errors.ErrInternalServer)
			}
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound.WithMessage(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}
