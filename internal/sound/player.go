package sound

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
)

// Cue is a single playback instruction. Restart rewinds a sound that is still playing.
type Cue struct {
	Sound   Entry   `json:"sound"`
	Volume  float64 `json:"volume"`
	Restart bool    `json:"restart"`
}

// Output renders cues.
type Output interface {
	Play(ctx context.Context, cue Cue) error
	SetVolume(volume float64)
}

// StateSource reports asset load states. *Preloader implements it.
type StateSource interface {
	State(id string) State
}

// SettingsSource exposes live settings and change notifications. *settings.Service implements it.
type SettingsSource interface {
	Current() settings.Settings
	Subscribe(fn func()) (unsubscribe func())
}

// Result classifies a playback attempt.
type Result string

const (
	ResultPlayed   Result = "played"
	ResultFallback Result = "fallback"
	ResultSkipped  Result = "skipped"
	ResultFailed   Result = "failed"
)

// Outcome describes what Play did.
type Outcome struct {
	Result Result `json:"result"`
	Sound  string `json:"sound,omitempty"`
}

// Player picks a playable sound for the current settings and hands it to an Output.
type Player struct {
	catalog *Catalog
	states  StateSource
	out     Output
	log     *zap.Logger

	mu     sync.Mutex
	volume float64
	bound  bool
	unbind func()
}

// NewPlayer constructs a Player.
func NewPlayer(catalog *Catalog, states StateSource, out Output) (*Player, error) {
	if catalog == nil {
		return nil, errors.New("sound player: catalog is required")
	}
	if states == nil {
		return nil, errors.New("sound player: state source is required")
	}
	if out == nil {
		return nil, errors.New("sound player: output is required")
	}
	return &Player{
		catalog: catalog,
		states:  states,
		out:     out,
		log:     logger.WithModule("sound"),
		volume:  -1,
	}, nil
}

// Play attempts to sound an alert for s. It never returns an error: a sound that
// cannot be played is logged and dropped.
func (p *Player) Play(ctx context.Context, s settings.Settings) Outcome {
	outcome := p.play(ctx, s)
	metrics.SoundPlaybacks.WithLabelValues(string(outcome.Result)).Inc()
	return outcome
}

func (p *Player) play(ctx context.Context, s settings.Settings) Outcome {
	if !s.Audible() {
		return Outcome{Result: ResultSkipped}
	}

	primary, ok := p.resolve(s.Sound)
	if !ok {
		p.log.Debug("no sound loaded, skipping playback", zap.String("configured", s.Sound))
		return Outcome{Result: ResultSkipped}
	}

	result := ResultPlayed
	if primary.ID != s.Sound {
		result = ResultFallback
	}

	err := p.out.Play(ctx, p.cue(primary, s.Volume))
	if err == nil {
		return Outcome{Result: result, Sound: primary.ID}
	}
	p.log.Warn("sound playback failed", zap.String("sound", primary.ID), zap.Error(err))

	alternate, ok := p.firstLoaded(primary.ID)
	if !ok {
		return Outcome{Result: ResultFailed, Sound: primary.ID}
	}
	if err := p.out.Play(ctx, p.cue(alternate, s.Volume)); err != nil {
		p.log.Warn("fallback playback failed", zap.String("sound", alternate.ID), zap.Error(err))
		return Outcome{Result: ResultFailed, Sound: alternate.ID}
	}
	return Outcome{Result: ResultFallback, Sound: alternate.ID}
}

// resolve returns the configured sound when loaded, otherwise the first loaded entry.
func (p *Player) resolve(id string) (Entry, bool) {
	if entry, ok := p.catalog.Lookup(id); ok && p.states.State(entry.ID) == StateLoaded {
		return entry, true
	}
	return p.firstLoaded("")
}

func (p *Player) firstLoaded(except string) (Entry, bool) {
	for _, entry := range p.catalog.entries {
		if entry.ID == except {
			continue
		}
		if p.states.State(entry.ID) == StateLoaded {
			return entry, true
		}
	}
	return Entry{}, false
}

func (p *Player) cue(entry Entry, volume float64) Cue {
	return Cue{Sound: entry, Volume: volume, Restart: true}
}

// Bind keeps the output volume in step with src until Unbind is called.
func (p *Player) Bind(src SettingsSource) {
	if src == nil {
		return
	}

	p.mu.Lock()
	if p.bound {
		p.mu.Unlock()
		return
	}
	p.bound = true
	p.mu.Unlock()

	p.syncVolume(src.Current().Volume)
	unsubscribe := src.Subscribe(func() {
		p.syncVolume(src.Current().Volume)
	})

	p.mu.Lock()
	p.unbind = unsubscribe
	p.mu.Unlock()
}

// Unbind stops following settings changes.
func (p *Player) Unbind() {
	p.mu.Lock()
	unsubscribe := p.unbind
	p.unbind = nil
	p.bound = false
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Volume returns the last volume pushed to the output, or -1 before Bind.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) syncVolume(volume float64) {
	p.mu.Lock()
	if volume == p.volume {
		p.mu.Unlock()
		return
	}
	p.volume = volume
	p.mu.Unlock()

	p.out.SetVolume(volume)
}
