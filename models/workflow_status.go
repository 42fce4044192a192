package models

// WorkflowStatus is the reference row for a maker-checker-approver status.
type WorkflowStatus struct {
	StatusID     int     `gorm:"primaryKey;autoIncrement:false;column:status_id" json:"status_id"`
	StatusName   string  `gorm:"column:status_name;size:100;not null" json:"status_name"`
	StatusCode   string  `gorm:"column:status_code;size:50;uniqueIndex;not null" json:"status_code"`
	DisplayOrder int     `gorm:"column:display_order;not null" json:"display_order"`
	StageKey     *string `gorm:"column:stage_key;size:50" json:"stage_key,omitempty"`
}

// TableName specifies the table for WorkflowStatus.
func (WorkflowStatus) TableName() string {
	return "workflow_statuses"
}
