package sound

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/charlesng35/crewbell/internal/realtime"
)

// RealtimeOutput forwards cues to connected consoles over the sound stream.
// Consoles fetch the asset from PublicPath and play it locally.
type RealtimeOutput struct {
	hub        realtime.Broadcaster
	publicPath string
}

// NewRealtimeOutput constructs a RealtimeOutput.
func NewRealtimeOutput(hub realtime.Broadcaster, publicPath string) (*RealtimeOutput, error) {
	if hub == nil {
		return nil, errors.New("sound output: broadcaster is required")
	}
	publicPath = strings.TrimSpace(publicPath)
	if publicPath == "" {
		publicPath = "/sounds"
	}
	return &RealtimeOutput{hub: hub, publicPath: publicPath}, nil
}

// URL returns the public location of entry.
func (o *RealtimeOutput) URL(entry Entry) string {
	return path.Join(o.publicPath, entry.Path)
}

func (o *RealtimeOutput) Play(ctx context.Context, cue Cue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.hub.Broadcast(realtime.StreamSound, realtime.Message{
		Event: "sound.play",
		Data: map[string]any{
			"id":      cue.Sound.ID,
			"name":    cue.Sound.Name,
			"url":     o.URL(cue.Sound),
			"volume":  cue.Volume,
			"restart": cue.Restart,
		},
	})
	return nil
}

func (o *RealtimeOutput) SetVolume(volume float64) {
	o.hub.Broadcast(realtime.StreamSound, realtime.Message{
		Event: "sound.volume",
		Data:  map[string]any{"volume": volume},
	})
}
