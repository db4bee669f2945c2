package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/api"
	"github.com/charlesng35/crewbell/internal/app"
	iauth "github.com/charlesng35/crewbell/internal/auth"
	"github.com/charlesng35/crewbell/internal/bus"
	"github.com/charlesng35/crewbell/internal/database"
	sharedtestutil "github.com/charlesng35/crewbell/internal/database/testutil"
	"github.com/charlesng35/crewbell/internal/duty"
	"github.com/charlesng35/crewbell/internal/escalation"
	"github.com/charlesng35/crewbell/internal/middleware"
	"github.com/charlesng35/crewbell/internal/notifications"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/internal/servicerequests"
	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/internal/sound"
	"github.com/charlesng35/crewbell/pkg/response"
)

// Epoch is the instant the test clock starts at.
var Epoch = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T               *testing.T
	DB              *gorm.DB
	Router          *gin.Engine
	JWT             *iauth.JWTService
	Hub             *realtime.Hub
	Clock           *escalation.ManualClock
	Settings        *settings.Service
	Notifications   *notifications.Service
	ServiceRequests *servicerequests.Service
	Escalator       *escalation.Escalator
	Sounds          *CueRecorder
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	loader    sound.Loader
	rateLimit int
	recipient []int64
}

// WithSoundLoader replaces the loader that always succeeds.
func WithSoundLoader(loader sound.Loader) EnvOption {
	return func(cfg *envConfig) { cfg.loader = loader }
}

// WithRateLimit throttles service request intake to n requests per minute.
func WithRateLimit(n int) EnvOption {
	return func(cfg *envConfig) { cfg.rateLimit = n }
}

// WithDefaultRecipients sets who hears guest calls that name nobody.
func WithDefaultRecipients(ids ...int64) EnvOption {
	return func(cfg *envConfig) { cfg.recipient = ids }
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	envCfg := envConfig{
		loader:    sound.LoaderFunc(func(context.Context, sound.Entry) error { return nil }),
		recipient: []int64{1},
	}
	for _, opt := range opts {
		opt(&envCfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := escalation.NewManualClock(Epoch)

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Sound: app.SoundConfig{PublicPath: "/sounds"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	hub := realtime.NewHub()
	notificationBus := bus.New("notifications")
	settingsBus := bus.New("settings")

	catalog := sound.DefaultCatalog()
	kv, err := database.NewSettingsKV(db)
	require.NoError(t, err)
	settingsSvc, err := settings.NewService(kv, settingsBus,
		settings.WithKnownSounds(catalog.IDs()...),
		settings.WithBroadcaster(hub),
	)
	require.NoError(t, err)
	settingsSvc.Load(context.Background())

	preloader, err := sound.NewPreloader(catalog, envCfg.loader)
	require.NoError(t, err)
	preloader.Start(context.Background())
	preloader.Wait()

	recorder := &CueRecorder{}
	player, err := sound.NewPlayer(catalog, preloader, recorder)
	require.NoError(t, err)
	player.Bind(settingsSvc)

	store, err := notifications.NewDatabaseStore(db)
	require.NoError(t, err)
	notificationSvc, err := notifications.NewService(store, notificationBus,
		notifications.WithBroadcaster(hub),
		notifications.WithSound(player, settingsSvc),
		notifications.WithClock(clock.Now),
	)
	require.NoError(t, err)

	escalator := escalation.NewEscalator(escalation.NewScheduler(clock.AfterFunc), 3)

	dutySvc, err := duty.NewService(db, notificationSvc)
	require.NoError(t, err)

	requestSvc, err := servicerequests.NewService(db, notificationSvc, escalator, settingsSvc,
		servicerequests.WithDefaultRecipients(envCfg.recipient...),
		servicerequests.WithBroadcaster(hub),
		servicerequests.WithClock(clock.Now),
	)
	require.NoError(t, err)

	var limiter *middleware.RateLimiter
	if envCfg.rateLimit > 0 {
		limiter = middleware.NewRateLimiter(envCfg.rateLimit, time.Minute, clock.Now)
	}

	router, err := api.NewRouter(cfg, api.Dependencies{
		DB:              db,
		JWT:             jwtSvc,
		Hub:             hub,
		Notifications:   notificationSvc,
		Settings:        settingsSvc,
		Sounds:          preloader,
		SoundLocator:    recorder,
		Duty:            dutySvc,
		ServiceRequests: requestSvc,
		RateLimiter:     limiter,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		escalator.Stop()
		player.Unbind()
		hub.Close()
		notificationBus.Close()
		settingsBus.Close()
	})

	return &Env{
		T:               t,
		DB:              db,
		Router:          router,
		JWT:             jwtSvc,
		Hub:             hub,
		Clock:           clock,
		Settings:        settingsSvc,
		Notifications:   notificationSvc,
		ServiceRequests: requestSvc,
		Escalator:       escalator,
		Sounds:          recorder,
	}
}

// Token issues an access token for crewID with role.
func (e *Env) Token(crewID int64, role string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{CrewID: crewID, Role: role})
	require.NoError(e.T, err)
	return token
}

// CrewToken issues a crew-role token.
func (e *Env) CrewToken(crewID int64) string {
	return e.Token(crewID, iauth.RoleCrew)
}

// AdminToken issues an admin-role token.
func (e *Env) AdminToken(crewID int64) string {
	return e.Token(crewID, iauth.RoleAdmin)
}

// CueRecorder captures cues sent to the sound output and resolves sound URLs.
type CueRecorder struct {
	mu     sync.Mutex
	cues   []sound.Cue
	volume float64
}

// Play records cue.
func (r *CueRecorder) Play(_ context.Context, cue sound.Cue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, cue)
	return nil
}

// SetVolume records the latest volume.
func (r *CueRecorder) SetVolume(volume float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = volume
}

// URL maps an entry under /sounds.
func (r *CueRecorder) URL(entry sound.Entry) string {
	return "/sounds/" + entry.Path
}

// Cues returns the cues played so far.
func (r *CueRecorder) Cues() []sound.Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sound.Cue(nil), r.cues...)
}

// Volume returns the last volume pushed to the output.
func (r *CueRecorder) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
