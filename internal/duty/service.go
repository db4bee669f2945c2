package duty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/crewbell/internal/models"
	"github.com/charlesng35/crewbell/internal/notifications"
	apperrors "github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/metrics"
	"github.com/charlesng35/crewbell/pkg/validator"
)

// Notifier delivers a notification. *notifications.Service implements it.
type Notifier interface {
	Notify(ctx context.Context, input notifications.RecordInput) (notifications.Record, error)
}

// AssignInput places a crew member on a shift.
type AssignInput struct {
	Recipient int64  `json:"recipient" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,date"`
	Shift     string `json:"shift" validate:"required,max=32"`
	Label     string `json:"label" validate:"max=64"`
}

// UnassignInput removes a crew member from a shift.
type UnassignInput struct {
	Recipient int64  `json:"recipient" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required,date"`
	Shift     string `json:"shift" validate:"required,max=32"`
}

// AssignResult reports what Assign did.
type AssignResult struct {
	SlotKey      string                `json:"slot_key"`
	Decision     Decision              `json:"decision"`
	Notified     bool                  `json:"notified"`
	Notification *notifications.Record `json:"notification,omitempty"`
}

// Service records duty assignments and alerts crew when their duty changes.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger

	// mu serialises the read-decide-write sequence of Assign so two concurrent
	// assignments of the same slot cannot both fire.
	mu sync.Mutex
}

// NewService constructs a Service.
func NewService(db *gorm.DB, notifier Notifier) (*Service, error) {
	if db == nil {
		return nil, errors.New("duty service: db is required")
	}
	if notifier == nil {
		return nil, errors.New("duty service: notifier is required")
	}
	return &Service{db: db, notifier: notifier, log: logger.WithModule("duty")}, nil
}

// Assign stores the assignment and notifies the crew member unless the slot
// already carries the same label.
func (s *Service) Assign(ctx context.Context, input AssignInput) (*AssignResult, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(validator.Describe(err))
	}
	date, err := time.Parse(validator.DateLayout, input.Date)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid date")
	}
	shift := normalizeShift(input.Shift)
	label := normalizeLabel(input.Label)
	if label == "" {
		label = strings.TrimSpace(input.Shift)
	}
	slot := SlotKey(date, shift)

	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.historyFor(ctx, input.Recipient, slot)
	if err != nil {
		return nil, err
	}

	decision := ShouldNotify(history, input.Recipient, slot, label)
	result := &AssignResult{SlotKey: slot, Decision: decision}
	if !decision.Fire {
		metrics.DutyGateDecisions.WithLabelValues("suppress").Inc()
		s.log.Debug("duty notification suppressed", zap.Int64("recipient", input.Recipient), zap.String("slot", slot))
		return result, nil
	}
	metrics.DutyGateDecisions.WithLabelValues("fire").Inc()

	rec, err := s.notifier.Notify(ctx, notifications.RecordInput{
		Recipient: input.Recipient,
		Category:  notifications.CategoryDutyChange,
		Title:     dutyTitle(decision),
		Body:      dutyBody(date, shift, label, decision),
		Payload:   &notifications.Payload{Date: input.Date, Shift: shift},
	})
	if err != nil {
		return nil, fmt.Errorf("duty service: notify: %w", err)
	}
	result.Notified = true
	result.Notification = &rec

	row := models.DutyAssignment{
		Recipient: input.Recipient,
		SlotKey:   slot,
		Date:      input.Date,
		Shift:     shift,
		Label:     label,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "recipient"}, {Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "date", "shift", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("duty service: save assignment: %w", err)
	}

	return result, nil
}

// Unassign removes an assignment. It reports whether a row existed.
func (s *Service) Unassign(ctx context.Context, input UnassignInput) (bool, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return false, apperrors.NewBadRequest(validator.Describe(err))
	}
	date, err := time.Parse(validator.DateLayout, input.Date)
	if err != nil {
		return false, apperrors.NewBadRequest("invalid date")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).
		Where("recipient = ? AND slot_key = ?", input.Recipient, SlotKey(date, input.Shift)).
		Delete(&models.DutyAssignment{})
	if result.Error != nil {
		return false, fmt.Errorf("duty service: unassign: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListForDate returns every assignment on date ordered by shift and recipient.
func (s *Service) ListForDate(ctx context.Context, date time.Time) ([]models.DutyAssignment, error) {
	var rows []models.DutyAssignment
	if err := s.db.WithContext(ctx).
		Where("date = ?", date.Format(validator.DateLayout)).
		Order("shift ASC").
		Order("recipient ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("duty service: list: %w", err)
	}
	return rows, nil
}

// History loads the full notified-label history.
func (s *Service) History(ctx context.Context) (History, error) {
	var rows []models.DutyAssignment
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("duty service: load history: %w", err)
	}
	history := History{}
	for _, row := range rows {
		history.Set(row.Recipient, row.SlotKey, row.Label)
	}
	return history, nil
}

// SendReminders sends a duty reminder for every assignment on date. Delivery
// continues past individual failures; the combined error is returned.
func (s *Service) SendReminders(ctx context.Context, date time.Time) (int, error) {
	rows, err := s.ListForDate(ctx, date)
	if err != nil {
		return 0, err
	}

	var (
		sent int
		errs error
	)
	for _, row := range rows {
		_, err := s.notifier.Notify(ctx, notifications.RecordInput{
			Recipient: row.Recipient,
			Category:  notifications.CategoryDutyReminder,
			Title:     "Duty reminder",
			Body:      fmt.Sprintf("You are on %s duty (%s) on %s.", row.Shift, row.Label, row.Date),
			Payload:   &notifications.Payload{Date: row.Date, Shift: row.Shift},
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("recipient %d: %w", row.Recipient, err))
			continue
		}
		sent++
	}
	return sent, errs
}

func (s *Service) historyFor(ctx context.Context, recipient int64, slot string) (History, error) {
	var row models.DutyAssignment
	err := s.db.WithContext(ctx).
		Where("recipient = ? AND slot_key = ?", recipient, slot).
		Take(&row).Error
	history := History{}
	switch {
	case err == nil:
		history.Set(row.Recipient, row.SlotKey, row.Label)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("duty service: load history: %w", err)
	}
	return history, nil
}

func dutyTitle(d Decision) string {
	if d.Reason == ReasonChanged {
		return "Duty changed"
	}
	return "New duty assigned"
}

func dutyBody(date time.Time, shift, label string, d Decision) string {
	day := date.Format("Mon 2 Jan")
	if d.Reason == ReasonChanged {
		return fmt.Sprintf("%s %s shift changed from %s to %s.", day, shift, d.Previous, label)
	}
	return fmt.Sprintf("%s %s shift: %s.", day, shift, label)
}
