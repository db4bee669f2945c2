package notifications

import (
	"strings"
	"time"

	apperrors "github.com/charlesng35/crewbell/pkg/errors"
)

// Payload carries optional structured context for a notification.
type Payload struct {
	Date      string         `json:"date,omitempty"`
	Shift     string         `json:"shift,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (p *Payload) empty() bool {
	return p == nil || (p.Date == "" && p.Shift == "" && p.RequestID == "" && len(p.Extra) == 0)
}

// Record is a stored notification.
type Record struct {
	ID        string     `json:"id"`
	Recipient int64      `json:"recipient"`
	Category  Category   `json:"category"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Payload   *Payload   `json:"payload,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`

	seq int64
}

// RecordInput describes a notification to be recorded.
type RecordInput struct {
	Recipient int64    `json:"recipient" validate:"required,gt=0"`
	Category  Category `json:"category" validate:"required"`
	Title     string   `json:"title" validate:"required,max=255"`
	Body      string   `json:"body" validate:"max=4000"`
	Payload   *Payload `json:"payload,omitempty"`
}

func (in RecordInput) normalize() (RecordInput, error) {
	if in.Recipient <= 0 {
		return in, apperrors.NewBadRequest("recipient is required")
	}
	if !in.Category.Valid() {
		return in, apperrors.NewBadRequest("unknown notification category: " + string(in.Category))
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, apperrors.NewBadRequest("title is required")
	}
	in.Body = strings.TrimSpace(in.Body)
	if in.Payload.empty() {
		in.Payload = nil
	}
	return in, nil
}

// RetentionPolicy bounds how many notifications are kept.
// A zero field disables that bound.
type RetentionPolicy struct {
	MaxAge          time.Duration
	MaxPerRecipient int
}

func (p RetentionPolicy) cutoff(now time.Time) (time.Time, bool) {
	if p.MaxAge <= 0 {
		return time.Time{}, false
	}
	return now.Add(-p.MaxAge), true
}

func cloneRecord(r *Record) Record {
	out := *r
	if r.ReadAt != nil {
		at := *r.ReadAt
		out.ReadAt = &at
	}
	if r.Payload != nil {
		p := *r.Payload
		if r.Payload.Extra != nil {
			p.Extra = make(map[string]any, len(r.Payload.Extra))
			for k, v := range r.Payload.Extra {
				p.Extra[k] = v
			}
		}
		out.Payload = &p
	}
	return out
}
