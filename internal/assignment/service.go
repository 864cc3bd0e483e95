package assignment

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/common"

	"gorm.io/gorm"
)

// Service 自动派单服务
// 纯查表，无副作用；查不到规则返回空串而非错误，由调用方转人工派单
type Service struct {
	*common.BaseService
}

// NewService 创建自动派单服务
func NewService(db *gorm.DB) *Service {
	return &Service{BaseService: common.NewBaseService(db)}
}

// Resolve 按 (项目, 工单类型) 查找默认设计师
// 无匹配规则时返回 ("", nil)
func (s *Service) Resolve(ctx context.Context, tenantID, projectID, jobTypeID string) (string, error) {
	return s.ResolveTx(s.GetDBWithContext(ctx), tenantID, projectID, jobTypeID)
}

// ResolveTx 事务内的矩阵查找
// 供审批通过后的同事务派单使用，语义与 Resolve 一致
func (s *Service) ResolveTx(tx *gorm.DB, tenantID, projectID, jobTypeID string) (string, error) {
	var rule Rule
	err := tx.Where("tenant_id = ? AND project_id = ? AND job_type_id = ?", tenantID, projectID, jobTypeID).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("查询派单规则失败: %w", err)
	}
	return rule.AssigneeID, nil
}

// UpsertRule 新增或覆盖矩阵条目
func (s *Service) UpsertRule(ctx context.Context, rule *Rule) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		var existing Rule
		err := tx.Where("tenant_id = ? AND project_id = ? AND job_type_id = ?",
			rule.TenantID, rule.ProjectID, rule.JobTypeID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(rule).Error; err != nil {
				return fmt.Errorf("创建派单规则失败: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("查询派单规则失败: %w", err)
		}

		if err := tx.Model(&existing).Update("assignee_id", rule.AssigneeID).Error; err != nil {
			return fmt.Errorf("更新派单规则失败: %w", err)
		}
		rule.ID = existing.ID
		return nil
	})
}

// DeleteRule 删除矩阵条目
func (s *Service) DeleteRule(ctx context.Context, tenantID, ruleID string) error {
	result := s.GetDBWithContext(ctx).
		Where("id = ? AND tenant_id = ?", ruleID, tenantID).
		Delete(&Rule{})
	if result.Error != nil {
		return fmt.Errorf("删除派单规则失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeNotFound)
	}
	return nil
}

// ListRules 查询租户下的全部矩阵条目
func (s *Service) ListRules(ctx context.Context, tenantID string, page common.PaginationRequest) ([]Rule, int64, error) {
	var rules []Rule
	var total int64

	query := s.ApplyTenantFilter(s.GetDBWithContext(ctx).Model(&Rule{}), tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计派单规则失败: %w", err)
	}

	err := s.ApplyPagination(query.Order("created_at DESC"), page.Page, page.PageSize).Find(&rules).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询派单规则失败: %w", err)
	}
	return rules, total, nil
}
