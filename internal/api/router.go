package api

import (
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/app"
	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/duty"
	"github.com/charlesng35/crewbell/internal/handlers"
	"github.com/charlesng35/crewbell/internal/middleware"
	"github.com/charlesng35/crewbell/internal/notifications"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/internal/servicerequests"
	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/internal/sound"
)

// Dependencies bundles the services exposed over HTTP.
type Dependencies struct {
	DB              *gorm.DB
	JWT             *iauth.JWTService
	Hub             *realtime.Hub
	Notifications   *notifications.Service
	Settings        *settings.Service
	Sounds          *sound.Preloader
	SoundLocator    handlers.SoundLocator
	SoundAssets     fs.FS
	Duty            *duty.Service
	ServiceRequests *servicerequests.Service
	// RateLimiter throttles service request intake. Nil disables it.
	RateLimiter *middleware.RateLimiter
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Hub == nil:
		return fmt.Errorf("realtime hub must be provided")
	case d.Notifications == nil:
		return fmt.Errorf("notification service must be provided")
	case d.Settings == nil:
		return fmt.Errorf("settings service must be provided")
	case d.Sounds == nil || d.SoundLocator == nil:
		return fmt.Errorf("sound preloader and locator must be provided")
	case d.Duty == nil:
		return fmt.Errorf("duty service must be provided")
	case d.ServiceRequests == nil:
		return fmt.Errorf("service request service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(cfg.Server.HSTS))

	registerHealthRoutes(r, deps)
	registerMonitoringRoutes(r, cfg.Monitoring.Prometheus)

	if deps.SoundAssets != nil {
		publicPath := strings.TrimSpace(cfg.Sound.PublicPath)
		if publicPath == "" {
			publicPath = "/sounds"
		}
		r.StaticFS(publicPath, http.FS(deps.SoundAssets))
	}

	// The stream authenticates from the query string since browsers cannot set
	// headers on WebSocket upgrades.
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT)
	r.GET("/ws", realtimeHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications, deps.Settings)
	if err != nil {
		return nil, err
	}
	registerNotificationRoutes(api, notificationHandler)

	settingsHandler, err := handlers.NewSettingsHandler(deps.Settings)
	if err != nil {
		return nil, err
	}
	registerSettingsRoutes(api, settingsHandler)

	soundHandler, err := handlers.NewSoundHandler(deps.Sounds, deps.SoundLocator)
	if err != nil {
		return nil, err
	}
	api.GET("/sounds", soundHandler.List)

	dutyHandler, err := handlers.NewDutyHandler(deps.Duty)
	if err != nil {
		return nil, err
	}
	registerDutyRoutes(api, dutyHandler)

	requestHandler, err := handlers.NewServiceRequestHandler(deps.ServiceRequests)
	if err != nil {
		return nil, err
	}
	registerServiceRequestRoutes(api, requestHandler, deps.RateLimiter)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
