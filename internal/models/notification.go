package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a persisted crew notification.
type Notification struct {
	BaseModel

	Recipient int64          `gorm:"not null;index:idx_notifications_recipient_order,priority:1" json:"recipient"`
	Seq       int64          `gorm:"not null;index:idx_notifications_recipient_order,priority:2" json:"-"`
	Category  string         `gorm:"type:varchar(32);not null" json:"category"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Body      string         `gorm:"type:text" json:"body"`
	Payload   datatypes.JSON `json:"payload"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
