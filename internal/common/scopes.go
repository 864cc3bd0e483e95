package common

import "gorm.io/gorm"

// ByTenant 按租户过滤（多租户查询通用Scope）
// 使用方法：db.Scopes(common.ByTenant(tenantID)).Find(&jobs)
func ByTenant(tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// ActiveOnly 仅查询启用状态的记录
// 使用方法：db.Scopes(common.ActiveOnly()).Find(&users)
func ActiveOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("active = ?", true)
	}
}
