package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/buttons"
	"github.com/charlesng35/crewbell/internal/notifications"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	issuer := strings.TrimSpace(c.JWT.Issuer)
	if issuer == "" {
		issuer = "crewbell"
	}
	return auth.JWTConfig{Secret: c.JWT.Secret, Issuer: issuer, AccessTokenTTL: ttl}
}

// Policy converts the retention section into the store's pruning policy.
func (c RetentionConfig) Policy() notifications.RetentionPolicy {
	return notifications.RetentionPolicy{MaxAge: c.MaxAge, MaxPerRecipient: c.MaxPerRecipient}
}

// BridgeConfig converts the MQTT section for the cabin button bridge.
func (c MQTTConfig) BridgeConfig() (buttons.Config, error) {
	if c.QoS < 0 || c.QoS > 2 {
		return buttons.Config{}, fmt.Errorf("mqtt: invalid qos %d", c.QoS)
	}
	return buttons.Config{
		Broker:   strings.TrimSpace(c.Broker),
		ClientID: strings.TrimSpace(c.ClientID),
		Topic:    strings.TrimSpace(c.Topic),
		Username: c.Username,
		Password: c.Password,
		QoS:      byte(c.QoS),
	}, nil
}
