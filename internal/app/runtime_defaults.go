package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	jwtSecretBytes = 48

	minEscalationAttempts = 1
)

// ApplyRuntimeDefaults fills values the server cannot run without and tidies
// the ones it can correct. The returned set names the secrets that were
// generated, so callers can warn that tokens will not survive a restart.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := generateHexKey(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	cfg.Sound.PublicPath = cleanPublicPath(cfg.Sound.PublicPath)
	if cfg.Escalation.MaxAttempts < minEscalationAttempts {
		cfg.Escalation.MaxAttempts = minEscalationAttempts
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	return generated, nil
}

// cleanPublicPath returns an absolute URL path without a trailing slash, "/sounds" when blank.
func cleanPublicPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/sounds"
	}
	return path.Clean("/" + p)
}

func generateHexKey(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
