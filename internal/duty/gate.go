// Package duty turns roster changes into duty notifications without repeating
// an alert for a slot whose assignment did not change.
package duty

import (
	"strings"
	"time"

	"github.com/charlesng35/crewbell/pkg/validator"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonNew       Reason = "new"
	ReasonChanged   Reason = "changed"
	ReasonUnchanged Reason = "unchanged"
)

// Decision is the outcome of ShouldNotify.
type Decision struct {
	Fire     bool   `json:"fire"`
	Reason   Reason `json:"reason"`
	Previous string `json:"previous,omitempty"`
}

// SlotKey identifies one shift on one calendar day, for example "2026-03-14/morning".
func SlotKey(date time.Time, shift string) string {
	return date.Format(validator.DateLayout) + "/" + normalizeShift(shift)
}

func normalizeShift(shift string) string {
	return strings.ToLower(strings.TrimSpace(shift))
}

func normalizeLabel(label string) string {
	return strings.TrimSpace(label)
}

// History is the last label notified per recipient and slot.
type History map[int64]map[string]string

// Get returns the label last notified for recipient in slot.
func (h History) Get(recipient int64, slot string) (string, bool) {
	label, ok := h[recipient][slot]
	return label, ok
}

// Set records label as notified for recipient in slot.
func (h History) Set(recipient int64, slot, label string) {
	if h[recipient] == nil {
		h[recipient] = make(map[string]string)
	}
	h[recipient][slot] = normalizeLabel(label)
}

// Delete forgets the slot for recipient.
func (h History) Delete(recipient int64, slot string) {
	slots := h[recipient]
	if slots == nil {
		return
	}
	delete(slots, slot)
	if len(slots) == 0 {
		delete(h, recipient)
	}
}

// ShouldNotify decides whether assigning label to recipient's slot warrants an alert.
// Labels compare case-insensitively after trimming. The history is not modified.
func ShouldNotify(h History, recipient int64, slot, label string) Decision {
	previous, ok := h.Get(recipient, slot)
	if !ok {
		return Decision{Fire: true, Reason: ReasonNew}
	}
	if strings.EqualFold(normalizeLabel(previous), normalizeLabel(label)) {
		return Decision{Fire: false, Reason: ReasonUnchanged, Previous: previous}
	}
	return Decision{Fire: true, Reason: ReasonChanged, Previous: previous}
}
