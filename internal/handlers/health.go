package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewbell/internal/monitoring"
	"github.com/charlesng35/crewbell/pkg/response"
)

// Health evaluates the component probes. It answers 503 only when a component is down.
func Health(probes *monitoring.Health) gin.HandlerFunc {
	if probes == nil {
		probes = monitoring.NewHealth()
	}
	return func(c *gin.Context) {
		report := probes.Evaluate(requestContext(c))

		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response.Response{Success: report.Healthy(), Data: report})
	}
}
