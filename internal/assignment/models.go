package assignment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Rule 自动派单规则
// (项目, 工单类型) 到默认设计师的矩阵条目
type Rule struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID   string         `gorm:"type:varchar(36);not null;index:idx_assignment_rules_key,priority:1" json:"tenant_id"`
	ProjectID  string         `gorm:"type:varchar(36);not null;index:idx_assignment_rules_key,priority:2" json:"project_id"`
	JobTypeID  string         `gorm:"type:varchar(36);not null;index:idx_assignment_rules_key,priority:3" json:"job_type_id"`
	AssigneeID string         `gorm:"type:varchar(36);not null" json:"assignee_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Rule) TableName() string {
	return "assignment_rules"
}

func (r *Rule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
