package models

import (
	"time"

	"gorm.io/datatypes"
)

// Service request lifecycle states.
const (
	ServiceRequestPending   = "pending"
	ServiceRequestAccepted  = "accepted"
	ServiceRequestCompleted = "completed"
)

// ServiceRequest is a guest call raised from a smart button or the dashboard.
type ServiceRequest struct {
	BaseModel

	Location        string         `gorm:"type:varchar(128);not null" json:"location"`
	Guest           string         `gorm:"type:varchar(128)" json:"guest"`
	Message         string         `gorm:"type:text" json:"message"`
	Priority        string         `gorm:"type:varchar(16);default:'normal'" json:"priority"`
	Status          string         `gorm:"type:varchar(16);not null;index" json:"status"`
	Recipients      datatypes.JSON `json:"recipients"`
	EscalationCount int            `gorm:"default:0" json:"escalation_count"`
	AcceptedBy      *int64         `json:"accepted_by"`
	AcceptedAt      *time.Time     `json:"accepted_at"`
	CompletedAt     *time.Time     `json:"completed_at"`
}
