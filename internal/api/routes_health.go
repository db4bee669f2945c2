package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/crewbell/internal/app"
	"github.com/charlesng35/crewbell/internal/handlers"
	"github.com/charlesng35/crewbell/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, deps Dependencies) {
	health := handlers.Health(monitoring.NewHealth(
		monitoring.DatabaseCheck(deps.DB, 0),
		monitoring.SoundCheck(deps.Sounds),
	))
	r.GET("/health", health)
	r.GET("/api/health", health)
}

func registerMonitoringRoutes(r *gin.Engine, cfg app.PrometheusConfig) {
	if !cfg.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}
