package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	require.True(t, d.Enabled)
	require.Equal(t, "chime", d.Sound)
	require.InDelta(t, 0.7, d.Volume, 1e-9)
	require.False(t, d.Muted)
	require.True(t, d.VisualEffects.Flash)
	require.True(t, d.VisualEffects.Pulse)
	require.True(t, d.SidebarBadge)
	require.True(t, d.EscalationEnabled)
	require.Equal(t, time.Minute, d.EscalationDelay())
}

func TestAudible(t *testing.T) {
	s := Defaults()
	require.True(t, s.Audible())

	s.Muted = true
	require.False(t, s.Audible())

	s = Defaults()
	s.Enabled = false
	require.False(t, s.Audible())
}

func TestPatchApplyLeavesUnsetFields(t *testing.T) {
	base := Defaults()
	got := Patch{}.Apply(base)
	require.Equal(t, base, got)

	got = Patch{VisualEffects: &VisualEffectsPatch{Flash: ptr(false)}}.Apply(base)
	require.False(t, got.VisualEffects.Flash)
	require.True(t, got.VisualEffects.Pulse)
}
