package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the CrewBell backend.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Auth            AuthConfig            `mapstructure:"auth"`
	Sound           SoundConfig           `mapstructure:"sound"`
	Notifications   NotificationsConfig   `mapstructure:"notifications"`
	Duty            DutyConfig            `mapstructure:"duty"`
	Escalation      EscalationConfig      `mapstructure:"escalation"`
	ServiceRequests ServiceRequestsConfig `mapstructure:"service_requests"`
	MQTT            MQTTConfig            `mapstructure:"mqtt"`
	Monitoring      MonitoringConfig      `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	HSTS            bool          `mapstructure:"hsts"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SoundConfig locates the alert sound assets. An empty AssetsDir serves the built-in sounds.
type SoundConfig struct {
	AssetsDir  string `mapstructure:"assets_dir"`
	PublicPath string `mapstructure:"public_path"`
}

// NotificationsConfig controls notification retention.
type NotificationsConfig struct {
	Retention       RetentionConfig `mapstructure:"retention"`
	CleanupSchedule string          `mapstructure:"cleanup_schedule"`
}

// RetentionConfig bounds stored notifications. Zero disables a bound.
type RetentionConfig struct {
	MaxAge          time.Duration `mapstructure:"max_age"`
	MaxPerRecipient int           `mapstructure:"max_per_recipient"`
}

// DutyConfig schedules duty reminders. An empty schedule disables them.
type DutyConfig struct {
	ReminderSchedule string `mapstructure:"reminder_schedule"`
}

// EscalationConfig bounds re-notification of unanswered service requests.
type EscalationConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// ServiceRequestsConfig controls guest call intake.
type ServiceRequestsConfig struct {
	DefaultRecipients []int64         `mapstructure:"default_recipients"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits requests per client within a window. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MQTTConfig connects cabin call buttons through an MQTT broker.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// Environment variables prefixed with CREWBELL_ override file values, e.g.
// CREWBELL_AUTH_JWT_SECRET.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CREWBELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.hsts", false)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/crewbell.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.username", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "crewbell")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")

	v.SetDefault("sound.assets_dir", "")
	v.SetDefault("sound.public_path", "/sounds")

	v.SetDefault("notifications.retention.max_age", "720h") // 30 days
	v.SetDefault("notifications.retention.max_per_recipient", 500)
	v.SetDefault("notifications.cleanup_schedule", "@hourly")

	v.SetDefault("duty.reminder_schedule", "0 6 * * *")

	v.SetDefault("escalation.max_attempts", 3)

	v.SetDefault("service_requests.default_recipients", []int64{})
	v.SetDefault("service_requests.rate_limit.requests", 30)
	v.SetDefault("service_requests.rate_limit.window", "1m")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "crewbell")
	v.SetDefault("mqtt.topic", "crewbell/buttons/+/press")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}
