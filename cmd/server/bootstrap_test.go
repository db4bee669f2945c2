package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/app"
	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/servicerequests"
	"github.com/charlesng35/crewbell/internal/sound"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "crewbell.sqlite")
	cfg.Auth.JWT.Secret = "bootstrap-secret"
	cfg.Notifications.CleanupSchedule = "@every 1h"
	return cfg
}

func TestBootstrapRuntimeWiresRouter(t *testing.T) {
	cfg := testConfig(t)
	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	stack.Preloader.Wait()
	for _, status := range stack.Preloader.Statuses() {
		require.Equal(t, sound.StateLoaded, status.State, status.ID)
	}

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sounds/chime.wav", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	token, err := stack.JWT.GenerateAccessToken(iauth.AccessTokenInput{CrewID: 3, Role: iauth.RoleCrew})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			Sound string `json:"sound"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "chime", body.Data.Sound)
}

func TestBootstrapRuntimeRejectsMissingAssetsDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sound.AssetsDir = filepath.Join(t.TempDir(), "missing")

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sound assets")
}

func TestSoundAssetsFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chime.wav"), []byte("RIFF"), 0o600))

	assets, loader, err := soundAssets(app.SoundConfig{AssetsDir: dir})
	require.NoError(t, err)
	require.NotNil(t, assets)
	require.NoError(t, loader.Load(context.Background(), sound.Entry{ID: "chime", Path: "chime.wav"}))
	require.Error(t, loader.Load(context.Background(), sound.Entry{ID: "bell", Path: "bell.wav"}))
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres = app.DBAuthConfig{Host: " db ", Port: 5432, Database: "crewbell", Username: "crew", Password: "pw"}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "crewbell", dbCfg.Name)

	cfg.Database.Driver = ""
	require.Equal(t, "sqlite", convertDatabaseConfig(cfg).Driver)
}

func TestRunIssuesToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("auth:\n  jwt:\n    secret: issue-secret\n"), 0o600))

	var out bytes.Buffer
	err := run(context.Background(), []string{"-config", dir, "-issue-token", "-crew-id", "7", "-role", "admin"}, &out)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "issue-secret", Issuer: "crewbell"})
	require.NoError(t, err)
	claims, err := jwtSvc.ValidateAccessToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.CrewID)
	require.True(t, claims.IsAdmin())
}

func TestRunIssueTokenRequiresCrewID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("auth:\n  jwt:\n    secret: issue-secret\n"), 0o600))

	err := run(context.Background(), []string{"-config", dir, "-issue-token"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

type nopIntake struct{}

func (nopIntake) Create(context.Context, servicerequests.CreateInput) (*servicerequests.Request, error) {
	return &servicerequests.Request{}, nil
}

func TestStartButtonBridgeErrors(t *testing.T) {
	_, err := startButtonBridge(app.MQTTConfig{Broker: "tcp://127.0.0.1:1883", QoS: 5}, nopIntake{})
	require.ErrorContains(t, err, "qos")

	_, err = startButtonBridge(app.MQTTConfig{QoS: 1}, nopIntake{})
	require.ErrorContains(t, err, "broker")

	// nothing listens on port 1
	_, err = startButtonBridge(app.MQTTConfig{Broker: "tcp://127.0.0.1:1", QoS: 1}, nopIntake{})
	require.Error(t, err)
}
