package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReportTargetType identifies what kind of content was reported
type ReportTargetType string

const (
	ReportTargetListing ReportTargetType = "listing"
	ReportTargetMessage ReportTargetType = "message"
	ReportTargetThread  ReportTargetType = "thread"
	ReportTargetReply   ReportTargetType = "reply"
	ReportTargetUser    ReportTargetType = "user"
)

// ReportStatus tracks a report through the moderation queue
type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Report is a user-submitted moderation request
type Report struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReporterID string `gorm:"not null;index" json:"reporter_id"`

	TargetType ReportTargetType `gorm:"not null;index:idx_reports_target" json:"target_type"`
	TargetID   string           `gorm:"not null;index:idx_reports_target" json:"target_id"`

	Reason  string `gorm:"not null" json:"reason"` // "spam", "unsafe_food", "harassment", "other"
	Details string `gorm:"type:text" json:"details,omitempty"`

	Status       ReportStatus `gorm:"type:text;default:open;index" json:"status"`
	ResolvedByID *string      `json:"resolved_by_id,omitempty"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
	Resolution   string       `gorm:"type:text" json:"resolution,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
