package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return "file::memory:?cache=shared", nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("database: create %s: %w", dir, err)
		}
	}
	return "file:" + filepath.ToSlash(path) + "?_journal_mode=WAL&_busy_timeout=5000", nil
}

func postgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	parts := []string{
		"host=" + orDefault(cfg.Host, "localhost"),
		fmt.Sprintf("port=%d", portOrDefault(cfg.Port, 5432)),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	opts := mergeOptions(map[string]string{"sslmode": "disable"}, cfg.Options)
	return strings.Join(append(parts, opts...), " "), nil
}

func mysqlDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	account := cfg.User
	if cfg.Password != "" {
		account += ":" + cfg.Password
	}
	opts := mergeOptions(map[string]string{"charset": "utf8mb4", "parseTime": "True", "loc": "UTC"}, cfg.Options)
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s",
		account, orDefault(cfg.Host, "127.0.0.1"), portOrDefault(cfg.Port, 3306), cfg.Name, strings.Join(opts, "&")), nil
}

// mergeOptions overlays extra on defaults and renders key=value pairs sorted by key.
func mergeOptions(defaults, extra map[string]string) []string {
	merged := make(map[string]string, len(defaults)+len(extra))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

func portOrDefault(port, fallback int) int {
	if port == 0 {
		return fallback
	}
	return port
}
