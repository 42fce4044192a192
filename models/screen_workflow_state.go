package models

import "time"

// ScreenWorkflowState holds the current workflow status of one governed screen.
// Version is bumped on every write and used as the compare-and-swap guard.
type ScreenWorkflowState struct {
	ScreenCode string    `gorm:"primaryKey;column:screen_code;size:100" json:"screen_code"`
	StatusID   int       `gorm:"column:status_id;not null" json:"status_id"`
	Version    int64     `gorm:"column:version;not null;default:0" json:"version"`
	UpdatedBy  *int      `gorm:"column:updated_by" json:"updated_by,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ScreenWorkflowState) TableName() string {
	return "screen_workflow_states"
}
