package notifications

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crewbell/internal/bus"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/internal/sound"
	apperrors "github.com/charlesng35/crewbell/pkg/errors"
)

type sentMessage struct {
	stream  string
	crew    string
	message realtime.Message
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeBroadcaster) SendToCrew(stream, crew string, message realtime.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{stream: stream, crew: crew, message: message})
}

func (f *fakeBroadcaster) Broadcast(stream string, message realtime.Message) {
	f.SendToCrew(stream, "", message)
}

func (f *fakeBroadcaster) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.message.Event
	}
	return out
}

type fakePlayer struct {
	mu    sync.Mutex
	plays []settings.Settings
}

func (f *fakePlayer) Play(_ context.Context, s settings.Settings) sound.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, s)
	return sound.Outcome{Result: sound.ResultPlayed, Sound: s.Sound}
}

type staticSettings settings.Settings

func (s staticSettings) Current() settings.Settings { return settings.Settings(s) }

type serviceFixture struct {
	svc    *Service
	bus    *bus.Bus
	hub    *fakeBroadcaster
	player *fakePlayer
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	f := serviceFixture{
		bus:    bus.New("notifications-test"),
		hub:    &fakeBroadcaster{},
		player: &fakePlayer{},
	}
	svc, err := NewService(NewMemoryStore(), f.bus,
		WithBroadcaster(f.hub),
		WithSound(f.player, staticSettings(settings.Defaults())),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, bus.New("x"))
	require.Error(t, err)

	_, err = NewService(NewMemoryStore(), nil)
	require.Error(t, err)
}

func TestNotifyPublishesBroadcastsAndPlays(t *testing.T) {
	f := newServiceFixture(t)
	var published int
	f.svc.Subscribe(func() { published++ })

	rec, err := f.svc.Notify(context.Background(), RecordInput{
		Recipient: 12,
		Category:  CategoryAlert,
		Title:     "Guest call: Aft deck",
	})
	require.NoError(t, err)
	require.Equal(t, int64(12), rec.Recipient)

	require.Equal(t, 1, published)
	require.Equal(t, []string{"notification.created"}, f.hub.events())
	require.Equal(t, realtime.StreamNotifications, f.hub.sent[0].stream)
	require.Equal(t, "12", f.hub.sent[0].crew)
	payload := f.hub.sent[0].message.Data.(*EventPayload)
	require.EqualValues(t, 1, payload.Unread)
	require.Len(t, f.player.plays, 1)
}

func TestNotifyRejectsInvalidInputWithoutSideEffects(t *testing.T) {
	f := newServiceFixture(t)
	var published int
	f.svc.Subscribe(func() { published++ })

	_, err := f.svc.Notify(context.Background(), RecordInput{Recipient: 1, Category: "nope", Title: "x"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.Zero(t, published)
	require.Empty(t, f.hub.events())
	require.Empty(t, f.player.plays)
}

func TestNotifyIsolatesFailingListener(t *testing.T) {
	f := newServiceFixture(t)
	var after int
	f.svc.Subscribe(func() { panic("badge renderer crashed") })
	f.svc.Subscribe(func() { after++ })

	_, err := f.svc.Notify(context.Background(), RecordInput{Recipient: 1, Category: CategorySystem, Title: "x"})
	require.NoError(t, err)
	require.Equal(t, 1, after)
}

func TestNotifyMany(t *testing.T) {
	f := newServiceFixture(t)
	records, err := f.svc.NotifyMany(context.Background(), []int64{1, 0, 2}, RecordInput{
		Category: CategoryAlert,
		Title:    "Guest call",
	})
	require.Error(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{"notification.created", "notification.created"}, f.hub.events())
	require.Len(t, f.player.plays, 1)

	list, err := f.svc.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestNotifyManySilentWhenNothingRecorded(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.NotifyMany(context.Background(), []int64{0}, RecordInput{Category: CategoryAlert, Title: "Guest call"})
	require.Error(t, err)
	require.Empty(t, f.player.plays)
}

func TestMarkReadRespectsOwnership(t *testing.T) {
	f := newServiceFixture(t)
	rec, err := f.svc.Notify(context.Background(), RecordInput{Recipient: 1, Category: CategorySystem, Title: "x"})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(context.Background(), 2, rec.ID))
	unread, err := f.svc.UnreadCount(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)

	require.NoError(t, f.svc.MarkRead(context.Background(), 1, rec.ID))
	require.NoError(t, f.svc.MarkRead(context.Background(), 1, rec.ID))
	require.NoError(t, f.svc.MarkRead(context.Background(), 1, "missing"))

	unread, err = f.svc.UnreadCount(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, unread)
	require.Equal(t, []string{"notification.created", "notification.read"}, f.hub.events())
}

func TestMarkAllRead(t *testing.T) {
	f := newServiceFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Notify(context.Background(), RecordInput{Recipient: 5, Category: CategoryDutyReminder, Title: "Reminder"})
		require.NoError(t, err)
	}

	changed, err := f.svc.MarkAllRead(context.Background(), 5)
	require.NoError(t, err)
	require.EqualValues(t, 3, changed)

	changed, err = f.svc.MarkAllRead(context.Background(), 5)
	require.NoError(t, err)
	require.Zero(t, changed)
}

func TestPrunePublishesWhenRecordsRemoved(t *testing.T) {
	f := newServiceFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Notify(context.Background(), RecordInput{Recipient: 5, Category: CategorySystem, Title: "x"})
		require.NoError(t, err)
	}

	var published int
	f.svc.Subscribe(func() { published++ })

	removed, err := f.svc.Prune(context.Background(), RetentionPolicy{MaxPerRecipient: 1})
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
	require.Equal(t, 1, published)

	removed, err = f.svc.Prune(context.Background(), RetentionPolicy{MaxPerRecipient: 1})
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Equal(t, 1, published)
}

type silentOutput struct{ plays int }

func (o *silentOutput) Play(context.Context, sound.Cue) error { o.plays++; return nil }
func (o *silentOutput) SetVolume(float64)                     {}

type loadedStates struct{}

func (loadedStates) State(string) sound.State { return sound.StateLoaded }

func TestNotifyWhileMutedRecordsWithoutSound(t *testing.T) {
	out := &silentOutput{}
	player, err := sound.NewPlayer(sound.DefaultCatalog(), loadedStates{}, out)
	require.NoError(t, err)

	muted := settings.Defaults()
	muted.Muted = true

	hub := &fakeBroadcaster{}
	svc, err := NewService(NewMemoryStore(), bus.New("muted"),
		WithBroadcaster(hub),
		WithSound(player, staticSettings(muted)),
	)
	require.NoError(t, err)

	_, err = svc.Notify(context.Background(), RecordInput{Recipient: 4, Category: CategoryAlert, Title: "Tender returning"})
	require.NoError(t, err)

	list, err := svc.List(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, []string{"notification.created"}, hub.events())
	require.Zero(t, out.plays)
}
