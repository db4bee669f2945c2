package models

import "time"

// DutyAssignment stores the last label notified for a crew member's shift slot.
// It doubles as the dedup history consulted before sending duty-change alerts.
type DutyAssignment struct {
	Recipient int64     `gorm:"primaryKey;autoIncrement:false" json:"recipient"`
	SlotKey   string    `gorm:"primaryKey;type:varchar(64)" json:"slot_key"`
	Date      string    `gorm:"type:varchar(10);index" json:"date"`
	Shift     string    `gorm:"type:varchar(32)" json:"shift"`
	Label     string    `gorm:"type:varchar(64);not null" json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
