// Package settings holds the crew console's notification preferences.
package settings

import (
	"strings"
	"time"
)

const (
	// DefaultSound is the catalog id used when nothing else is configured.
	DefaultSound = "chime"
	// DefaultVolume is the playback volume on a fresh install.
	DefaultVolume = 0.7
	// MinEscalationDelaySeconds is the shortest accepted escalation delay.
	MinEscalationDelaySeconds = 5
	// DefaultEscalationDelaySeconds is the escalation delay on a fresh install.
	DefaultEscalationDelaySeconds = 60
)

// VisualEffects toggles on-screen alert effects.
type VisualEffects struct {
	Flash bool `json:"flash"`
	Pulse bool `json:"pulse"`
}

// Settings is the full notification preference record.
type Settings struct {
	Enabled                bool          `json:"enabled"`
	Sound                  string        `json:"sound"`
	Volume                 float64       `json:"volume"`
	Muted                  bool          `json:"muted"`
	VisualEffects          VisualEffects `json:"visual_effects"`
	SidebarBadge           bool          `json:"sidebar_badge"`
	EscalationEnabled      bool          `json:"escalation_enabled"`
	EscalationDelaySeconds int           `json:"escalation_delay_seconds"`
}

// Defaults returns the settings used before anything is persisted.
func Defaults() Settings {
	return Settings{
		Enabled: true,
		Sound:   DefaultSound,
		Volume:  DefaultVolume,
		VisualEffects: VisualEffects{
			Flash: true,
			Pulse: true,
		},
		SidebarBadge:           true,
		EscalationEnabled:      true,
		EscalationDelaySeconds: DefaultEscalationDelaySeconds,
	}
}

// EscalationDelay returns the escalation delay as a duration.
func (s Settings) EscalationDelay() time.Duration {
	return time.Duration(s.EscalationDelaySeconds) * time.Second
}

// Audible reports whether an alert sound should be attempted.
func (s Settings) Audible() bool {
	return s.Enabled && !s.Muted
}

// sanitize repairs values read back from storage. Stored data predates validation
// or may have been edited by hand, so out-of-range values are clamped.
func (s Settings) sanitize() Settings {
	s.Sound = strings.TrimSpace(s.Sound)
	if s.Sound == "" {
		s.Sound = DefaultSound
	}
	switch {
	case s.Volume < 0:
		s.Volume = 0
	case s.Volume > 1:
		s.Volume = 1
	}
	if s.EscalationDelaySeconds < MinEscalationDelaySeconds {
		s.EscalationDelaySeconds = DefaultEscalationDelaySeconds
	}
	return s
}

// VisualEffectsPatch is a partial update of VisualEffects.
type VisualEffectsPatch struct {
	Flash *bool `json:"flash,omitempty"`
	Pulse *bool `json:"pulse,omitempty"`
}

// Patch is a partial update. Nil fields keep their current value.
type Patch struct {
	Enabled                *bool               `json:"enabled,omitempty"`
	Sound                  *string             `json:"sound,omitempty" validate:"omitempty,min=1,max=64"`
	Volume                 *float64            `json:"volume,omitempty" validate:"omitempty,gte=0,lte=1"`
	Muted                  *bool               `json:"muted,omitempty"`
	VisualEffects          *VisualEffectsPatch `json:"visual_effects,omitempty"`
	SidebarBadge           *bool               `json:"sidebar_badge,omitempty"`
	EscalationEnabled      *bool               `json:"escalation_enabled,omitempty"`
	EscalationDelaySeconds *int                `json:"escalation_delay_seconds,omitempty" validate:"omitempty,gte=5,lte=3600"`
}

// Apply merges the patch into s and returns the result.
func (p Patch) Apply(s Settings) Settings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Sound != nil {
		s.Sound = strings.TrimSpace(*p.Sound)
	}
	if p.Volume != nil {
		s.Volume = *p.Volume
	}
	if p.Muted != nil {
		s.Muted = *p.Muted
	}
	if p.VisualEffects != nil {
		if p.VisualEffects.Flash != nil {
			s.VisualEffects.Flash = *p.VisualEffects.Flash
		}
		if p.VisualEffects.Pulse != nil {
			s.VisualEffects.Pulse = *p.VisualEffects.Pulse
		}
	}
	if p.SidebarBadge != nil {
		s.SidebarBadge = *p.SidebarBadge
	}
	if p.EscalationEnabled != nil {
		s.EscalationEnabled = *p.EscalationEnabled
	}
	if p.EscalationDelaySeconds != nil {
		s.EscalationDelaySeconds = *p.EscalationDelaySeconds
	}
	return s
}
