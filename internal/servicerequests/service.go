// Package servicerequests tracks guest calls from cabin buttons and escalates
// calls nobody has picked up.
package servicerequests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crewbell/internal/escalation"
	"github.com/charlesng35/crewbell/internal/models"
	"github.com/charlesng35/crewbell/internal/notifications"
	"github.com/charlesng35/crewbell/internal/realtime"
	"github.com/charlesng35/crewbell/internal/settings"
	apperrors "github.com/charlesng35/crewbell/pkg/errors"
	"github.com/charlesng35/crewbell/pkg/logger"
	"github.com/charlesng35/crewbell/pkg/validator"
)

// Priorities accepted on a request.
const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

// Notifier fans a notification out to several crew members. *notifications.Service implements it.
type Notifier interface {
	NotifyMany(ctx context.Context, recipients []int64, input notifications.RecordInput) ([]notifications.Record, error)
}

// SettingsSource exposes the live notification settings.
type SettingsSource interface {
	Current() settings.Settings
}

// CreateInput describes a new guest call.
type CreateInput struct {
	Location   string  `json:"location" validate:"required,max=128"`
	Guest      string  `json:"guest" validate:"max=128"`
	Message    string  `json:"message" validate:"max=2000"`
	Priority   string  `json:"priority" validate:"omitempty,oneof=normal urgent"`
	Recipients []int64 `json:"recipients" validate:"omitempty,dive,gt=0"`
}

// Request is the API view of a service request.
type Request struct {
	ID              string     `json:"id"`
	Location        string     `json:"location"`
	Guest           string     `json:"guest,omitempty"`
	Message         string     `json:"message,omitempty"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	Recipients      []int64    `json:"recipients"`
	EscalationCount int        `json:"escalation_count"`
	CreatedAt       time.Time  `json:"created_at"`
	AcceptedBy      *int64     `json:"accepted_by,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Option customises a Service.
type Option func(*Service)

// WithDefaultRecipients sets the crew alerted when a request names no recipients.
func WithDefaultRecipients(ids ...int64) Option {
	return func(s *Service) { s.defaultRecipients = append([]int64(nil), ids...) }
}

// WithBroadcaster publishes request lifecycle events on the service-requests stream.
func WithBroadcaster(b realtime.Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// WithClock overrides the clock used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service manages the pending -> accepted -> completed lifecycle.
type Service struct {
	db                *gorm.DB
	notifier          Notifier
	escalator         *escalation.Escalator
	settings          SettingsSource
	broadcaster       realtime.Broadcaster
	defaultRecipients []int64
	now               func() time.Time
	log               *zap.Logger
}

// NewService constructs a Service.
func NewService(db *gorm.DB, notifier Notifier, escalator *escalation.Escalator, src SettingsSource, opts ...Option) (*Service, error) {
	switch {
	case db == nil:
		return nil, errors.New("service requests: db is required")
	case notifier == nil:
		return nil, errors.New("service requests: notifier is required")
	case escalator == nil:
		return nil, errors.New("service requests: escalator is required")
	case src == nil:
		return nil, errors.New("service requests: settings are required")
	}

	svc := &Service{
		db:        db,
		notifier:  notifier,
		escalator: escalator,
		settings:  src,
		now:       time.Now,
		log:       logger.WithModule("service_requests"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Create records a guest call, alerts the crew and starts escalation when enabled.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Request, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(validator.Describe(err))
	}

	recipients := uniqueRecipients(input.Recipients)
	if len(recipients) == 0 {
		recipients = uniqueRecipients(s.defaultRecipients)
	}
	if len(recipients) == 0 {
		return nil, apperrors.NewBadRequest("no crew configured to receive service requests")
	}

	encoded, err := json.Marshal(recipients)
	if err != nil {
		return nil, fmt.Errorf("service requests: encode recipients: %w", err)
	}

	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = PriorityNormal
	}
	row := models.ServiceRequest{
		Location:   strings.TrimSpace(input.Location),
		Guest:      strings.TrimSpace(input.Guest),
		Message:    strings.TrimSpace(input.Message),
		Priority:   priority,
		Status:     models.ServiceRequestPending,
		Recipients: datatypes.JSON(encoded),
	}
	row.CreatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("service requests: create: %w", err)
	}

	req := mapRequest(row)
	if _, err := s.notifier.NotifyMany(ctx, recipients, s.alertFor(req, false)); err != nil {
		s.log.Warn("service request alert incomplete", zap.String("request", req.ID), zap.Error(err))
	}
	s.broadcast("service_request.created", req)

	if current := s.settings.Current(); current.EscalationEnabled {
		s.watch(req.ID, recipients, current.EscalationDelay())
	}
	return req, nil
}

// Accept assigns a pending request to crew.
func (s *Service) Accept(ctx context.Context, id string, crew int64) (*Request, error) {
	if crew <= 0 {
		return nil, apperrors.NewBadRequest("crew id is required")
	}
	now := s.now().UTC()
	req, err := s.transition(ctx, id, models.ServiceRequestPending, map[string]any{
		"status":      models.ServiceRequestAccepted,
		"accepted_by": crew,
		"accepted_at": now,
	})
	if err != nil {
		return nil, err
	}
	s.escalator.Cancel(id)
	s.broadcast("service_request.accepted", req)
	return req, nil
}

// Complete closes a request. Pending and accepted requests can be completed.
func (s *Service) Complete(ctx context.Context, id string) (*Request, error) {
	now := s.now().UTC()
	req, err := s.transition(ctx, id, "", map[string]any{
		"status":       models.ServiceRequestCompleted,
		"completed_at": now,
	})
	if err != nil {
		return nil, err
	}
	s.escalator.Cancel(id)
	s.broadcast("service_request.completed", req)
	return req, nil
}

// Get loads a request by id.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	row, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return mapRequest(*row), nil
}

// ListPending returns open requests oldest first.
func (s *Service) ListPending(ctx context.Context) ([]Request, error) {
	var rows []models.ServiceRequest
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.ServiceRequestPending).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("service requests: list pending: %w", err)
	}
	out := make([]Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, *mapRequest(row))
	}
	return out, nil
}

// transition applies updates when the request is in from, or in any non-terminal
// state when from is empty.
func (s *Service) transition(ctx context.Context, id, from string, updates map[string]any) (*Request, error) {
	var out *Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		allowed := row.Status == from
		if from == "" {
			allowed = row.Status != models.ServiceRequestCompleted
		}
		if !allowed {
			return apperrors.NewConflict(fmt.Sprintf("service request is already %s", row.Status))
		}

		result := tx.Model(&models.ServiceRequest{}).
			Where("id = ? AND status = ?", id, row.Status).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("service requests: update: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewConflict("service request changed concurrently")
		}

		row, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		out = mapRequest(*row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id string) (*models.ServiceRequest, error) {
	var row models.ServiceRequest
	err := db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("service request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("service requests: load: %w", err)
	}
	return &row, nil
}

// ResumePending re-arms escalation for requests still pending when the server
// starts. Each request keeps its original schedule: the next firing is due one
// delay after its last escalation, or immediately when that time has passed.
func (s *Service) ResumePending(ctx context.Context) error {
	current := s.settings.Current()
	if !current.EscalationEnabled {
		return nil
	}
	pending, err := s.ListPending(ctx)
	if err != nil {
		return err
	}

	delay := current.EscalationDelay()
	now := s.now().UTC()
	for _, req := range pending {
		if len(req.Recipients) == 0 {
			continue
		}
		due := req.CreatedAt.Add(time.Duration(req.EscalationCount+1) * delay)
		s.watchFrom(req.ID, req.Recipients, due.Sub(now), delay, req.EscalationCount)
	}
	if len(pending) > 0 {
		s.log.Info("resumed escalation for pending requests", zap.Int("requests", len(pending)))
	}
	return nil
}

func (s *Service) watch(id string, recipients []int64, delay time.Duration) {
	s.watchFrom(id, recipients, delay, delay, 0)
}

func (s *Service) watchFrom(id string, recipients []int64, first, delay time.Duration, attempts int) {
	resolved := func() bool {
		var statuses []string
		err := s.db.Model(&models.ServiceRequest{}).Where("id = ?", id).Pluck("status", &statuses).Error
		if err != nil {
			s.log.Warn("escalation status check failed", zap.String("request", id), zap.Error(err))
			return false
		}
		return len(statuses) == 0 || statuses[0] != models.ServiceRequestPending
	}

	s.escalator.WatchFrom(id, first, delay, attempts, resolved, func(attempt int) {
		s.escalate(id, recipients, attempt)
	})
}

func (s *Service) escalate(id string, recipients []int64, attempt int) {
	ctx := context.Background()
	if err := s.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ?", id).
		UpdateColumn("escalation_count", gorm.Expr("escalation_count + ?", 1)).Error; err != nil {
		s.log.Warn("record escalation failed", zap.String("request", id), zap.Error(err))
	}

	req, err := s.Get(ctx, id)
	if err != nil {
		s.log.Warn("load escalated request failed", zap.String("request", id), zap.Error(err))
		return
	}
	if _, err := s.notifier.NotifyMany(ctx, recipients, s.alertFor(req, true)); err != nil {
		s.log.Warn("escalation alert incomplete", zap.String("request", id), zap.Error(err))
	}
	s.log.Info("service request escalated", zap.String("request", id), zap.Int("attempt", attempt))
	s.broadcast("service_request.escalated", req)
}

func (s *Service) alertFor(req *Request, escalated bool) notifications.RecordInput {
	title := "Guest call: " + req.Location
	if escalated {
		title = "Escalated: " + title
	}
	body := req.Message
	if req.Guest != "" {
		body = strings.TrimSpace(req.Guest + ": " + req.Message)
	}
	return notifications.RecordInput{
		Category: notifications.CategoryAlert,
		Title:    title,
		Body:     body,
		Payload: &notifications.Payload{
			RequestID: req.ID,
			Extra:     map[string]any{"priority": req.Priority, "escalations": req.EscalationCount},
		},
	}
}

func (s *Service) broadcast(event string, req *Request) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(realtime.StreamServiceRequests, realtime.Message{
		Event: event,
		Data:  req,
	})
}

func uniqueRecipients(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func mapRequest(row models.ServiceRequest) *Request {
	req := &Request{
		ID:              row.ID,
		Location:        row.Location,
		Guest:           row.Guest,
		Message:         row.Message,
		Priority:        row.Priority,
		Status:          row.Status,
		EscalationCount: row.EscalationCount,
		CreatedAt:       row.CreatedAt.UTC(),
		AcceptedBy:      row.AcceptedBy,
		AcceptedAt:      row.AcceptedAt,
		CompletedAt:     row.CompletedAt,
	}
	if len(row.Recipients) > 0 {
		if err := json.Unmarshal(row.Recipients, &req.Recipients); err != nil {
			logger.WithModule("service_requests").Warn("invalid recipients column",
				zap.String("request", row.ID), zap.Error(err))
			req.Recipients = nil
		}
	}
	if req.Recipients == nil {
		req.Recipients = []int64{}
	}
	return req
}
