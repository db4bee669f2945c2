package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crewbell/internal/bus"
	"github.com/charlesng35/crewbell/internal/notifications"
)

type fakePruner struct {
	policies []notifications.RetentionPolicy
	err      error
}

func (f *fakePruner) Prune(_ context.Context, policy notifications.RetentionPolicy) (int64, error) {
	f.policies = append(f.policies, policy)
	return 0, f.err
}

type fakeReminder struct {
	dates []time.Time
	err   error
}

func (f *fakeReminder) SendReminders(_ context.Context, date time.Time) (int, error) {
	f.dates = append(f.dates, date)
	return 1, f.err
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func (c *fixedClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func TestCleanerRunOncePrunesNotifications(t *testing.T) {
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	store := notifications.NewMemoryStore(notifications.WithStoreClock(clock.Now))
	service, err := notifications.NewService(store, bus.New("notifications"))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = service.Notify(ctx, notifications.RecordInput{Recipient: 1, Category: notifications.CategorySystem, Title: "old"})
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)
	_, err = service.Notify(ctx, notifications.RecordInput{Recipient: 1, Category: notifications.CategorySystem, Title: "fresh"})
	require.NoError(t, err)

	cleaner := NewCleaner(service, nil,
		WithNow(clock.Now),
		WithRetention(notifications.RetentionPolicy{MaxAge: 24 * time.Hour}),
	)
	require.NoError(t, cleaner.RunOnce(ctx))

	remaining, err := service.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "fresh", remaining[0].Title)
}

func TestCleanerRunOnceSendsTodaysReminders(t *testing.T) {
	clock := &fixedClock{current: time.Date(2024, 5, 20, 5, 30, 0, 0, time.UTC)}
	reminders := &fakeReminder{}

	cleaner := NewCleaner(nil, reminders, WithNow(clock.Now))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	require.Len(t, reminders.dates, 1)
	require.Equal(t, clock.current, reminders.dates[0])
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	pruneErr := errors.New("prune failed")
	remindErr := errors.New("remind failed")
	pruner := &fakePruner{err: pruneErr}
	reminders := &fakeReminder{err: remindErr}

	policy := notifications.RetentionPolicy{MaxAge: time.Hour, MaxPerRecipient: 10}
	cleaner := NewCleaner(pruner, reminders, WithRetention(policy))

	err := cleaner.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, pruneErr)
	require.ErrorIs(t, err, remindErr)

	require.Equal(t, []notifications.RetentionPolicy{policy}, pruner.policies)
	require.Len(t, reminders.dates, 1)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	cleaner := NewCleaner(&fakePruner{}, &fakeReminder{},
		WithCron(scheduler),
		WithCleanupSchedule("@every 30m"),
		WithReminderSchedule("30 5 * * *"),
	)

	require.NoError(t, cleaner.Start())
	t.Cleanup(func() { <-cleaner.Stop().Done() })

	require.Len(t, scheduler.Entries(), 2)
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner(&fakePruner{}, nil,
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithCleanupSchedule("every now and then"),
	)

	err := cleaner.Start()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cleanup schedule")
}

func TestCleanerWithoutJobsDoesNothing(t *testing.T) {
	cleaner := NewCleaner(nil, nil)
	require.NoError(t, cleaner.Start())
	require.NoError(t, cleaner.RunOnce(context.Background()))
	<-cleaner.Stop().Done()
}
