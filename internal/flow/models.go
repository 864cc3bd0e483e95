package flow

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project 项目
type Project struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID  string         `gorm:"type:varchar(36);not null;index:idx_projects_tenant" json:"tenant_id"`
	Name      string         `gorm:"type:varchar(128);not null" json:"name"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// JobType 工单类型
// NextJobTypeID 非空时构成链式模板：该类型工单完成后自动生成后继工单
// 一旦被工单引用即视为不可变，修改只影响之后创建的工单
type JobType struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID      string         `gorm:"type:varchar(36);not null;index:idx_job_types_tenant" json:"tenant_id"`
	Name          string         `gorm:"type:varchar(128);not null" json:"name"`
	NextJobTypeID *string        `gorm:"type:varchar(36)" json:"next_job_type_id,omitempty"`
	Active        bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (JobType) TableName() string {
	return "job_types"
}

func (t *JobType) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// Level 审批级别配置
type Level struct {
	Level      int    `json:"level"`       // 级别编号，从1开始连续
	ApproverID string `json:"approver_id"` // 该级别的指定审批人
	Role       string `json:"role"`        // 审批人角色说明
}

// Template 审批流模板
// 按 (租户, 项目, 工单类型) 三元组定位，同一键下最多一个启用的模板
// TotalLevels 为 0 表示该类型工单跳过审批直接进入已批准
type Template struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID    string         `gorm:"type:varchar(36);not null;index:idx_flow_templates_key,priority:1" json:"tenant_id"`
	ProjectID   string         `gorm:"type:varchar(36);not null;index:idx_flow_templates_key,priority:2" json:"project_id"`
	JobTypeID   string         `gorm:"type:varchar(36);not null;index:idx_flow_templates_key,priority:3" json:"job_type_id"`
	TotalLevels int            `gorm:"not null" json:"total_levels"`
	Levels      []Level        `gorm:"type:jsonb;serializer:json" json:"levels"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Template) TableName() string {
	return "flow_templates"
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// ApproverAt 返回指定级别的审批人，级别越界时返回空串
func (t *Template) ApproverAt(level int) string {
	for _, l := range t.Levels {
		if l.Level == level {
			return l.ApproverID
		}
	}
	return ""
}

// Snapshot 提交时刻固化到工单上的审批流快照
// 模板后续编辑不影响在途工单
type Snapshot struct {
	TemplateID  string  `json:"template_id"`
	TotalLevels int     `json:"total_levels"`
	Levels      []Level `json:"levels"`
}

// NewSnapshot 从模板生成快照
func NewSnapshot(t *Template) Snapshot {
	levels := make([]Level, len(t.Levels))
	copy(levels, t.Levels)
	return Snapshot{
		TemplateID:  t.ID,
		TotalLevels: t.TotalLevels,
		Levels:      levels,
	}
}

// ApproverAt 返回快照中指定级别的审批人
func (s Snapshot) ApproverAt(level int) string {
	for _, l := range s.Levels {
		if l.Level == level {
			return l.ApproverID
		}
	}
	return ""
}
