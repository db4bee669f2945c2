package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/bus"
	"github.com/charlesng35/crewbell/internal/realtime"
	apperrors "github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/validator"
)

// StorageKey is the key the settings record is persisted under.
const StorageKey = "notification.settings"

// KV is the persistence the settings service needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Option customises a Service.
type Option func(*Service)

// WithKnownSounds restricts the sound setting to the given catalog ids.
func WithKnownSounds(ids ...string) Option {
	return func(s *Service) {
		if len(ids) == 0 {
			return
		}
		s.known = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			s.known[id] = struct{}{}
		}
	}
}

// WithBroadcaster announces every change on the settings realtime stream.
func WithBroadcaster(b realtime.Broadcaster) Option {
	return func(s *Service) {
		s.broadcaster = b
	}
}

// Service owns the live notification settings.
//
// The record is read from storage once on Load. Storage failures never surface to
// callers: a failed read falls back to defaults and a failed write is logged while
// the in-memory value stays authoritative.
type Service struct {
	kv          KV
	bus         *bus.Bus
	known       map[string]struct{}
	broadcaster realtime.Broadcaster
	log         *zap.Logger

	// writeMu orders persistence so storage never ends up behind memory.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current Settings
	loaded  bool
}

// NewService constructs a Service holding defaults until Load is called.
func NewService(kv KV, changes *bus.Bus, opts ...Option) (*Service, error) {
	if kv == nil {
		return nil, errors.New("settings service: kv is required")
	}
	if changes == nil {
		return nil, errors.New("settings service: bus is required")
	}

	svc := &Service{
		kv:      kv,
		bus:     changes,
		current: Defaults(),
		log:     logger.WithModule("settings"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Load reads the persisted record. Later calls return the cached value.
func (s *Service) Load(ctx context.Context) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.current
	}
	s.loaded = true
	s.current = s.read(ctx)
	return s.current
}

func (s *Service) read(ctx context.Context) Settings {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.log.Warn("read settings failed, using defaults", zap.Error(err))
		return Defaults()
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Defaults()
	}

	stored := Defaults()
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		s.log.Warn("stored settings are corrupt, using defaults", zap.Error(err))
		return Defaults()
	}
	stored = stored.sanitize()
	if !s.isKnown(stored.Sound) {
		stored.Sound = DefaultSound
	}
	return stored
}

// Current returns a snapshot of the live settings.
func (s *Service) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and merges patch, persists the result and notifies subscribers.
func (s *Service) Update(ctx context.Context, patch Patch) (Settings, error) {
	if err := validator.ValidateStruct(patch); err != nil {
		return Settings{}, apperrors.NewBadRequest(validator.Describe(err))
	}
	if patch.Sound != nil && !s.isKnown(strings.TrimSpace(*patch.Sound)) {
		return Settings{}, apperrors.NewBadRequest("unknown sound: " + strings.TrimSpace(*patch.Sound))
	}

	next, changed := s.commit(ctx, patch.Apply)
	if changed {
		s.announce(next)
	}
	return next, nil
}

// Reset restores defaults.
func (s *Service) Reset(ctx context.Context) Settings {
	next, changed := s.commit(ctx, func(Settings) Settings { return Defaults() })
	if changed {
		s.announce(next)
	}
	return next
}

func (s *Service) commit(ctx context.Context, mutate func(Settings) Settings) (Settings, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := mutate(s.current)
	changed := next != s.current
	s.current = next
	s.loaded = true
	s.mu.Unlock()

	if changed {
		s.persist(ctx, next)
	}
	return next, changed
}

// Subscribe registers fn to run after every change.
func (s *Service) Subscribe(fn func()) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

func (s *Service) announce(value Settings) {
	s.bus.Publish()
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(realtime.StreamSettings, realtime.Message{
			Event: "settings.updated",
			Data:  value,
		})
	}
}

func (s *Service) persist(ctx context.Context, value Settings) {
	data, err := json.Marshal(value)
	if err != nil {
		s.log.Error("encode settings failed", zap.Error(err))
		return
	}
	if err := s.kv.Put(ctx, StorageKey, string(data)); err != nil {
		s.log.Warn("persist settings failed", zap.Error(err))
	}
}

func (s *Service) isKnown(sound string) bool {
	if sound == "" {
		return false
	}
	if len(s.known) == 0 {
		return true
	}
	_, ok := s.known[sound]
	return ok
}
