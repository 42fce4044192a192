package models

import "time"

// WorkflowAuditEntry is one append-only row of the workflow audit trail.
// Target is either a screen code or "<table>:<record id>" for row-level changes.
type WorkflowAuditEntry struct {
	AuditID          int64     `gorm:"primaryKey;autoIncrement;column:audit_id" json:"audit_id"`
	Target           string    `gorm:"column:target;size:191;not null;index:idx_workflow_audit_target,priority:1" json:"target"`
	Action           string    `gorm:"column:action;size:50;not null" json:"action"`
	FromStatusID     *int      `gorm:"column:from_status_id" json:"from_status_id"`
	ToStatusID       int       `gorm:"column:to_status_id;not null" json:"to_status_id"`
	Remarks          *string   `gorm:"column:remarks;type:text" json:"remarks,omitempty"`
	ActorUserID      int       `gorm:"column:actor_user_id;not null" json:"actor_user_id"`
	ActorDisplayName string    `gorm:"column:actor_display_name;size:200" json:"actor_display_name"`
	IPAddress        string    `gorm:"column:ip_address;size:64" json:"ip_address"`
	UserAgent        *string   `gorm:"column:user_agent;size:255" json:"user_agent,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;index:idx_workflow_audit_target,priority:2" json:"created_at"`
}

// TableName specifies the table for WorkflowAuditEntry.
func (WorkflowAuditEntry) TableName() string {
	return "workflow_audit_entries"
}
