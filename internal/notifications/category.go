package notifications

import (
	"strings"

	apperrors "github.com/charlesng35/crewbell/pkg/errors"
)

// Category classifies a notification.
type Category string

const (
	CategoryDutyChange   Category = "duty-change"
	CategorySystem       Category = "system"
	CategoryAlert        Category = "alert"
	CategoryDutyReminder Category = "duty-reminder"
)

var categories = []Category{
	CategoryDutyChange,
	CategorySystem,
	CategoryAlert,
	CategoryDutyReminder,
}

// Categories lists every known category.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory normalises raw and rejects unknown values.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", apperrors.NewBadRequest("unknown notification category: " + strings.TrimSpace(raw))
	}
	return c, nil
}
