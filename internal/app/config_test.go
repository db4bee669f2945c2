package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/buttons"
	"github.com/charlesng35/crewbell/internal/notifications"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.True(t, cfg.Server.HSTS)
	require.Equal(t, []string{"https://bridge-tablet.local"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "mv-aurora", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, "/srv/crewbell/sounds", cfg.Sound.AssetsDir)
	require.Equal(t, "/static/sounds", cfg.Sound.PublicPath)

	require.Equal(t, 168*time.Hour, cfg.Notifications.Retention.MaxAge)
	require.Equal(t, 50, cfg.Notifications.Retention.MaxPerRecipient)
	require.Equal(t, "@every 30m", cfg.Notifications.CleanupSchedule)

	require.Equal(t, "30 5 * * *", cfg.Duty.ReminderSchedule)
	require.Equal(t, 5, cfg.Escalation.MaxAttempts)
	require.Equal(t, []int64{7, 9}, cfg.ServiceRequests.DefaultRecipients)
	require.Equal(t, 10, cfg.ServiceRequests.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.ServiceRequests.RateLimit.Window)

	require.True(t, cfg.MQTT.Enabled)
	require.Equal(t, "tcp://mqtt.vessel.local:1883", cfg.MQTT.Broker)
	require.Equal(t, "aurora-crewbell", cfg.MQTT.ClientID)
	require.Equal(t, "crewbell/buttons/+/press", cfg.MQTT.Topic)
	require.Equal(t, "buttons", cfg.MQTT.Username)
	require.Equal(t, 2, cfg.MQTT.QoS)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/crewbell.sqlite", cfg.Database.Path)
	require.Equal(t, 12*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 720*time.Hour, cfg.Notifications.Retention.MaxAge)
	require.Equal(t, 500, cfg.Notifications.Retention.MaxPerRecipient)
	require.Equal(t, "@hourly", cfg.Notifications.CleanupSchedule)
	require.Equal(t, 3, cfg.Escalation.MaxAttempts)
	require.Equal(t, "/sounds", cfg.Sound.PublicPath)
	require.False(t, cfg.MQTT.Enabled)
	require.Equal(t, 1, cfg.MQTT.QoS)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("CREWBELL_SERVER_PORT", "7070")
	t.Setenv("CREWBELL_AUTH_JWT_SECRET", "from-env")
	t.Setenv("CREWBELL_ESCALATION_MAX_ATTEMPTS", "2")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.Equal(t, 2, cfg.Escalation.MaxAttempts)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret: "secret",
			Issuer: "issuer",
			TTL:    30 * time.Minute,
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)
	require.Equal(t, "crewbell", cfg.JWTServiceConfig().Issuer)
}

func TestRetentionPolicy(t *testing.T) {
	cfg := RetentionConfig{MaxAge: time.Hour, MaxPerRecipient: 3}
	require.Equal(t, notifications.RetentionPolicy{MaxAge: time.Hour, MaxPerRecipient: 3}, cfg.Policy())
}

func TestMQTTBridgeConfig(t *testing.T) {
	cfg := MQTTConfig{Broker: " tcp://mqtt:1883 ", ClientID: "aurora", Topic: "buttons/+/press", Username: "u", Password: "p", QoS: 1}

	bridge, err := cfg.BridgeConfig()
	require.NoError(t, err)
	require.Equal(t, buttons.Config{Broker: "tcp://mqtt:1883", ClientID: "aurora", Topic: "buttons/+/press", Username: "u", Password: "p", QoS: 1}, bridge)

	cfg.QoS = 3
	_, err = cfg.BridgeConfig()
	require.ErrorContains(t, err, "qos")
}
