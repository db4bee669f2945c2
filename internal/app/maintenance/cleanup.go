package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/crewbell/internal/notifications"
	"github.com/charlesng35/crewbell/pkg/logger"
)

const (
	defaultCleanupSpec  = "@hourly"
	defaultReminderSpec = "0 6 * * *"
)

// Pruner applies a notification retention policy. *notifications.Service implements it.
type Pruner interface {
	Prune(ctx context.Context, policy notifications.RetentionPolicy) (int64, error)
}

// Reminder sends the duty reminders for a day. *duty.Service implements it.
type Reminder interface {
	SendReminders(ctx context.Context, date time.Time) (int, error)
}

// Cleaner coordinates background maintenance: pruning old notifications and
// sending the daily duty reminders.
type Cleaner struct {
	pruner    Pruner
	reminders Reminder
	policy    notifications.RetentionPolicy
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger

	cleanupSchedule  string
	reminderSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to pick the reminder date.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetention sets the retention policy applied on each cleanup run.
func WithRetention(policy notifications.RetentionPolicy) Option {
	return func(cleaner *Cleaner) {
		cleaner.policy = policy
	}
}

// WithCleanupSchedule overrides the cron specification for notification pruning.
func WithCleanupSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cleanupSchedule = spec
		}
	}
}

// WithReminderSchedule overrides the cron specification for duty reminders.
func WithReminderSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.reminderSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency skips the matching job.
func NewCleaner(pruner Pruner, reminders Reminder, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		pruner:           pruner,
		reminders:        reminders,
		now:              time.Now,
		cleanupSchedule:  defaultCleanupSpec,
		reminderSchedule: defaultReminderSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it when at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.pruner != nil {
		if _, err := c.cron.AddFunc(c.cleanupSchedule, func() {
			if _, err := c.prune(context.Background()); err != nil {
				c.log.Warn("notification cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: cleanup schedule %q: %w", c.cleanupSchedule, err)
		}
		jobs++
	}

	if c.reminders != nil {
		if _, err := c.cron.AddFunc(c.reminderSchedule, func() {
			if _, err := c.remind(context.Background()); err != nil {
				c.log.Warn("duty reminders failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: reminder schedule %q: %w", c.reminderSchedule, err)
		}
		jobs++
	}

	if jobs > 0 {
		c.cron.Start()
	}
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.pruner != nil {
		if _, err := c.prune(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.reminders != nil {
		if _, err := c.remind(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) prune(ctx context.Context) (int64, error) {
	removed, err := c.pruner.Prune(ctx, c.policy)
	if err != nil {
		return 0, fmt.Errorf("maintenance: prune notifications: %w", err)
	}
	if removed > 0 {
		c.log.Info("pruned notifications", zap.Int64("removed", removed))
	}
	return removed, nil
}

func (c *Cleaner) remind(ctx context.Context) (int, error) {
	today := c.now().UTC()
	sent, err := c.reminders.SendReminders(ctx, today)
	if err != nil {
		return sent, fmt.Errorf("maintenance: duty reminders: %w", err)
	}
	c.log.Debug("duty reminders sent", zap.Int("sent", sent), zap.String("date", today.Format(time.DateOnly)))
	return sent, nil
}
