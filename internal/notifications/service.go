package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/bus"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/internal/settings"
	"github.com/charlesng35/crewbell/internal/sound"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
)

// SettingsSource exposes the live notification settings.
type SettingsSource interface {
	Current() settings.Settings
}

// SoundPlayer plays the alert sound for a new notification.
type SoundPlayer interface {
	Play(ctx context.Context, s settings.Settings) sound.Outcome
}

// EventPayload is the realtime data for notification events.
type EventPayload struct {
	Notification   *Record `json:"notification,omitempty"`
	NotificationID string  `json:"notification_id,omitempty"`
	Unread         int64   `json:"unread"`
}

// Option customises a Service.
type Option func(*Service)

// WithBroadcaster forwards notification events to realtime subscribers.
func WithBroadcaster(b realtime.Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// WithSound plays an alert sound when a notification is recorded.
func WithSound(player SoundPlayer, src SettingsSource) Option {
	return func(s *Service) {
		s.player = player
		s.settings = src
	}
}

// WithClock overrides the clock used for logging timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service records notifications and fans the change out to listeners, realtime
// subscribers and the alert sound.
type Service struct {
	store       Store
	bus         *bus.Bus
	broadcaster realtime.Broadcaster
	player      SoundPlayer
	settings    SettingsSource
	now         func() time.Time
	log         *zap.Logger
}

// NewService constructs a Service.
func NewService(store Store, changes *bus.Bus, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("notification service: store is required")
	}
	if changes == nil {
		return nil, errors.New("notification service: bus is required")
	}

	svc := &Service{
		store: store,
		bus:   changes,
		now:   time.Now,
		log:   logger.WithModule("notifications"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Notify records a notification, publishes the change and sounds the alert.
func (s *Service) Notify(ctx context.Context, input RecordInput) (Record, error) {
	rec, err := s.deliver(ctx, input)
	if err != nil {
		return Record{}, err
	}
	s.playAlert(ctx, rec.ID)
	return rec, nil
}

// NotifyMany records the same notification for each recipient. A failure for one
// recipient does not prevent delivery to the others. The alert sounds once per
// call because every dashboard plays the sound stream.
func (s *Service) NotifyMany(ctx context.Context, recipients []int64, input RecordInput) ([]Record, error) {
	var (
		out  []Record
		errs error
	)
	for _, recipient := range recipients {
		in := input
		in.Recipient = recipient
		rec, err := s.deliver(ctx, in)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recipient %d: %w", recipient, err))
			continue
		}
		out = append(out, rec)
	}
	if len(out) > 0 {
		s.playAlert(ctx, out[0].ID)
	}
	return out, errs
}

func (s *Service) deliver(ctx context.Context, input RecordInput) (Record, error) {
	rec, err := s.store.Record(ctx, input)
	if err != nil {
		return Record{}, err
	}
	metrics.NotificationsRecorded.WithLabelValues(string(rec.Category)).Inc()

	s.bus.Publish()
	s.broadcast(ctx, rec.Recipient, "notification.created", &EventPayload{Notification: &rec})
	return rec, nil
}

func (s *Service) playAlert(ctx context.Context, notification string) {
	if s.player == nil || s.settings == nil {
		return
	}
	outcome := s.player.Play(ctx, s.settings.Current())
	s.log.Debug("alert sound",
		zap.String("notification", notification),
		zap.String("result", string(outcome.Result)),
		zap.String("sound", outcome.Sound),
	)
}

// List returns the recipient's notifications oldest first.
func (s *Service) List(ctx context.Context, recipient int64) ([]Record, error) {
	return s.store.ListFor(ctx, recipient)
}

// UnreadCount returns the number of unread notifications for recipient.
func (s *Service) UnreadCount(ctx context.Context, recipient int64) (int64, error) {
	return s.store.CountUnread(ctx, recipient)
}

// MarkRead marks one of recipient's notifications as read. Unknown ids, ids owned
// by another recipient and already-read records are no-ops.
func (s *Service) MarkRead(ctx context.Context, recipient int64, id string) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil || rec.Recipient != recipient {
		return nil
	}

	changed, err := s.store.MarkRead(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.bus.Publish()
	s.broadcast(ctx, recipient, "notification.read", &EventPayload{NotificationID: id})
	return nil
}

// MarkAllRead marks every notification of recipient as read.
func (s *Service) MarkAllRead(ctx context.Context, recipient int64) (int64, error) {
	changed, err := s.store.MarkAllRead(ctx, recipient)
	if err != nil {
		return 0, err
	}
	if changed == 0 {
		return 0, nil
	}

	s.bus.Publish()
	s.broadcast(ctx, recipient, "notification.read_all", &EventPayload{})
	return changed, nil
}

// Prune applies the retention policy.
func (s *Service) Prune(ctx context.Context, policy RetentionPolicy) (int64, error) {
	removed, err := s.store.Prune(ctx, policy)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.NotificationsPruned.Add(float64(removed))
		s.bus.Publish()
	}
	return removed, nil
}

// Subscribe registers fn to run after every change to the notification set.
func (s *Service) Subscribe(fn func()) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

func (s *Service) broadcast(ctx context.Context, recipient int64, event string, payload *EventPayload) {
	if s.broadcaster == nil {
		return
	}
	unread, err := s.store.CountUnread(ctx, recipient)
	if err != nil {
		s.log.Warn("count unread failed", zap.Int64("recipient", recipient), zap.Error(err))
	}
	payload.Unread = unread

	s.broadcaster.SendToCrew(realtime.StreamNotifications, realtime.CrewKey(recipient), realtime.Message{
		Event: event,
		Data:  payload,
		Meta:  map[string]any{"sent_at": s.now().UTC()},
	})
}
