package directory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 人员角色
// 角色集合封闭，能力判定只认这四种取值
type Role string

const (
	RoleRequester Role = "requester" // 下单人，创建与提交工单
	RoleApprover  Role = "approver"  // 审批人，逐级裁决
	RoleDesigner  Role = "designer"  // 设计师，执行与交付
	RoleAdmin     Role = "admin"     // 管理员，维护模板与规则
)

// Valid 判断角色取值是否合法
func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleApprover, RoleDesigner, RoleAdmin:
		return true
	}
	return false
}

// CanApprove 是否具备审批能力
func (r Role) CanApprove() bool {
	return r == RoleApprover || r == RoleAdmin
}

// CanDesign 是否具备执行交付能力
func (r Role) CanDesign() bool {
	return r == RoleDesigner || r == RoleAdmin
}

// CanManage 是否具备模板与规则的管理能力
func (r Role) CanManage() bool {
	return r == RoleAdmin
}

// User 人员目录条目
type User struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID   string         `gorm:"type:varchar(36);not null;index:idx_users_tenant" json:"tenant_id"`
	Name       string         `gorm:"type:varchar(128);not null" json:"name"`
	Email      string         `gorm:"type:varchar(256);not null" json:"email"`
	Role       Role           `gorm:"type:varchar(32);not null" json:"role"`
	Department string         `gorm:"type:varchar(128)" json:"department,omitempty"`
	Active     bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
