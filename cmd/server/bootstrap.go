package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/api"
	"github.com/charlesng35/crewbell/internal/app"
	"github.com/charlesng35/crewbell/internal/app/maintenance"
	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/bus"
	"github.com/charlesng35/crewbell/internal/buttons"
	"github.com/charlesng35/crewbell/internal/database"
	"github.com/charlesng35/crewbell/internal/duty"
	"github.com/charlesng35/crewbell/internal/escalation"
	"github.com/charlesng35/crewbell/internal/middleware"
	"github.com/charlesng35/crewbell/internal/notifications"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/internal/servicerequests"
	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/internal/sound"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/web"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB              *gorm.DB
	JWT             *iauth.JWTService
	Hub             *realtime.Hub
	NotificationBus *bus.Bus
	SettingsBus     *bus.Bus
	Settings        *settings.Service
	Preloader       *sound.Preloader
	Player          *sound.Player
	Notifications   *notifications.Service
	Escalator       *escalation.Escalator
	Duty            *duty.Service
	ServiceRequests *servicerequests.Service
	Buttons         *buttons.Bridge
	Cleaner         *maintenance.Cleaner
	Router          *gin.Engine

	stopPreload context.CancelFunc
}

// bootstrapRuntime initialises the database, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.JWT, err = iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(realtime.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	stack.NotificationBus = bus.New("notifications")
	stack.SettingsBus = bus.New("settings")

	catalog := sound.DefaultCatalog()
	assets, loader, err := soundAssets(cfg.Sound)
	if err != nil {
		return nil, err
	}

	kv, err := database.NewSettingsKV(stack.DB)
	if err != nil {
		return nil, err
	}
	stack.Settings, err = settings.NewService(kv, stack.SettingsBus,
		settings.WithKnownSounds(catalog.IDs()...),
		settings.WithBroadcaster(stack.Hub),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise settings: %w", err)
	}
	current := stack.Settings.Load(ctx)
	log.Info("notification settings loaded",
		zap.String("sound", current.Sound),
		zap.Bool("muted", current.Muted),
	)

	stack.Preloader, err = sound.NewPreloader(catalog, loader)
	if err != nil {
		return nil, err
	}
	preloadCtx, cancel := context.WithCancel(context.Background())
	stack.stopPreload = cancel
	stack.Preloader.Start(preloadCtx)

	output, err := sound.NewRealtimeOutput(stack.Hub, cfg.Sound.PublicPath)
	if err != nil {
		return nil, err
	}
	stack.Player, err = sound.NewPlayer(catalog, stack.Preloader, output)
	if err != nil {
		return nil, err
	}
	stack.Player.Bind(stack.Settings)

	store, err := notifications.NewDatabaseStore(stack.DB,
		notifications.WithMaxPerRecipient(cfg.Notifications.Retention.MaxPerRecipient),
	)
	if err != nil {
		return nil, err
	}
	stack.Notifications, err = notifications.NewService(store, stack.NotificationBus,
		notifications.WithBroadcaster(stack.Hub),
		notifications.WithSound(stack.Player, stack.Settings),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notifications: %w", err)
	}

	stack.Escalator = escalation.NewEscalator(escalation.NewScheduler(nil), cfg.Escalation.MaxAttempts)

	stack.Duty, err = duty.NewService(stack.DB, stack.Notifications)
	if err != nil {
		return nil, fmt.Errorf("initialise duty service: %w", err)
	}

	stack.ServiceRequests, err = servicerequests.NewService(stack.DB, stack.Notifications, stack.Escalator, stack.Settings,
		servicerequests.WithDefaultRecipients(cfg.ServiceRequests.DefaultRecipients...),
		servicerequests.WithBroadcaster(stack.Hub),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise service requests: %w", err)
	}
	if err := stack.ServiceRequests.ResumePending(ctx); err != nil {
		return nil, fmt.Errorf("resume service request escalation: %w", err)
	}

	if cfg.MQTT.Enabled {
		stack.Buttons, err = startButtonBridge(cfg.MQTT, stack.ServiceRequests)
		if err != nil {
			return nil, err
		}
		log.Info("cabin button bridge started", zap.String("broker", cfg.MQTT.Broker), zap.String("topic", cfg.MQTT.Topic))
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Notifications, stack.Duty,
		maintenance.WithRetention(cfg.Notifications.Retention.Policy()),
		maintenance.WithCleanupSchedule(cfg.Notifications.CleanupSchedule),
		maintenance.WithReminderSchedule(cfg.Duty.ReminderSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	var limiter *middleware.RateLimiter
	if rl := cfg.ServiceRequests.RateLimit; rl.Requests > 0 && rl.Window > 0 {
		limiter = middleware.NewRateLimiter(rl.Requests, rl.Window, time.Now)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		DB:              stack.DB,
		JWT:             stack.JWT,
		Hub:             stack.Hub,
		Notifications:   stack.Notifications,
		Settings:        stack.Settings,
		Sounds:          stack.Preloader,
		SoundLocator:    output,
		SoundAssets:     assets,
		Duty:            stack.Duty,
		ServiceRequests: stack.ServiceRequests,
		RateLimiter:     limiter,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background work in dependency order and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Buttons != nil {
		s.Buttons.Stop()
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.Escalator != nil {
		s.Escalator.Stop()
	}

	if s.Player != nil {
		s.Player.Unbind()
	}

	if s.stopPreload != nil {
		s.stopPreload()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.NotificationBus != nil {
		s.NotificationBus.Close()
	}
	if s.SettingsBus != nil {
		s.SettingsBus.Close()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func startButtonBridge(cfg app.MQTTConfig, intake buttons.Intake) (*buttons.Bridge, error) {
	bridgeCfg, err := cfg.BridgeConfig()
	if err != nil {
		return nil, err
	}
	bridge, err := buttons.NewBridge(bridgeCfg, intake)
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(); err != nil {
		return nil, err
	}
	return bridge, nil
}

// soundAssets returns the filesystem to serve and preload alert sounds from.
// Without an assets directory the built-in sounds are used.
func soundAssets(cfg app.SoundConfig) (fs.FS, sound.Loader, error) {
	dir := strings.TrimSpace(cfg.AssetsDir)
	if dir == "" {
		assets, err := web.Sounds()
		if err != nil {
			return nil, nil, fmt.Errorf("open built-in sounds: %w", err)
		}
		return assets, sound.FSLoader{FS: assets}, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("sound assets: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("sound assets: %q is not a directory", dir)
	}
	return os.DirFS(dir), sound.FileLoader{Root: dir}, nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
