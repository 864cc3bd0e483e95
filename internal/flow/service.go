package flow

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/cache"
	"backend/internal/common"

	"gorm.io/gorm"
)

// Service 审批流模板服务
// 提供模板的解析与维护；解析结果走注入的 TTL 缓存，写操作按前缀失效
type Service struct {
	*common.BaseService
	cache cache.Cache
}

// NewService 创建审批流模板服务
func NewService(db *gorm.DB, c cache.Cache) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{
		BaseService: common.NewBaseService(db),
		cache:       c,
	}
}

func templateCacheKey(tenantID, projectID, jobTypeID string) string {
	return fmt.Sprintf("flow:template:%s:%s:%s", tenantID, projectID, jobTypeID)
}

func tenantCachePrefix(tenantID string) string {
	return fmt.Sprintf("flow:template:%s:", tenantID)
}

// Resolve 解析 (租户, 项目, 工单类型) 对应的启用模板
// 未配置时返回 CodeFlowNotConfigured 业务错误，调用方据此让工单停在待配置状态，
// 绝不回退到任何默认审批链
func (s *Service) Resolve(ctx context.Context, tenantID, projectID, jobTypeID string) (*Template, error) {
	key := templateCacheKey(tenantID, projectID, jobTypeID)
	if v, ok := s.cache.Get(key); ok {
		return v.(*Template), nil
	}

	var tpl Template
	err := s.GetDBWithContext(ctx).
		Where("tenant_id = ? AND project_id = ? AND job_type_id = ? AND is_active = ?",
			tenantID, projectID, jobTypeID, true).
		First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewBusinessErrorWithCode(common.CodeFlowNotConfigured)
	}
	if err != nil {
		return nil, fmt.Errorf("查询审批流模板失败: %w", err)
	}

	s.cache.Set(key, &tpl)
	return &tpl, nil
}

// validateLevels 校验级别从1开始连续编号且与 TotalLevels 一致
func validateLevels(totalLevels int, levels []Level) error {
	if totalLevels < 0 {
		return common.NewBusinessErrorWithCode(common.CodeFlowInvalidLevels)
	}
	if len(levels) != totalLevels {
		return common.NewBusinessError(common.CodeFlowInvalidLevels,
			fmt.Sprintf("级别数量 %d 与 total_levels %d 不符", len(levels), totalLevels))
	}

	seen := make(map[int]bool, len(levels))
	for _, l := range levels {
		if l.Level < 1 || l.Level > totalLevels {
			return common.NewBusinessError(common.CodeFlowInvalidLevels,
				fmt.Sprintf("级别编号 %d 越界", l.Level))
		}
		if seen[l.Level] {
			return common.NewBusinessError(common.CodeFlowInvalidLevels,
				fmt.Sprintf("级别编号 %d 重复", l.Level))
		}
		if l.ApproverID == "" {
			return common.NewBusinessError(common.CodeFlowInvalidLevels,
				fmt.Sprintf("级别 %d 未指定审批人", l.Level))
		}
		seen[l.Level] = true
	}
	return nil
}

// CreateTemplate 创建模板并停用同键旧模板
// 同一 (项目, 工单类型) 键下只保留一个启用的模板
func (s *Service) CreateTemplate(ctx context.Context, tpl *Template) error {
	if err := validateLevels(tpl.TotalLevels, tpl.Levels); err != nil {
		return err
	}

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&Template{}).
			Where("tenant_id = ? AND project_id = ? AND job_type_id = ? AND is_active = ?",
				tpl.TenantID, tpl.ProjectID, tpl.JobTypeID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("停用旧模板失败: %w", err)
		}

		tpl.IsActive = true
		if err := tx.Create(tpl).Error; err != nil {
			return fmt.Errorf("创建审批流模板失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(templateCacheKey(tpl.TenantID, tpl.ProjectID, tpl.JobTypeID))
	return nil
}

// DisableTemplate 停用模板
func (s *Service) DisableTemplate(ctx context.Context, tenantID, templateID string) error {
	var tpl Template
	err := s.GetDBWithContext(ctx).
		Where("id = ? AND tenant_id = ?", templateID, tenantID).
		First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.NewBusinessErrorWithCode(common.CodeNotFound)
	}
	if err != nil {
		return fmt.Errorf("查询审批流模板失败: %w", err)
	}

	if err := s.GetDBWithContext(ctx).Model(&tpl).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("停用审批流模板失败: %w", err)
	}

	s.cache.Invalidate(templateCacheKey(tpl.TenantID, tpl.ProjectID, tpl.JobTypeID))
	return nil
}

// ListTemplates 分页查询租户下的模板
func (s *Service) ListTemplates(ctx context.Context, tenantID string, page common.PaginationRequest) ([]Template, int64, error) {
	var templates []Template
	var total int64

	query := s.ApplyTenantFilter(s.GetDBWithContext(ctx).Model(&Template{}), tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计模板数量失败: %w", err)
	}

	err := s.ApplyPagination(query.Order("created_at DESC"), page.Page, page.PageSize).Find(&templates).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询模板列表失败: %w", err)
	}
	return templates, total, nil
}

// GetJobType 查询工单类型（链式配置的读取入口）
func (s *Service) GetJobType(ctx context.Context, tenantID, jobTypeID string) (*JobType, error) {
	key := fmt.Sprintf("flow:jobtype:%s:%s", tenantID, jobTypeID)
	if v, ok := s.cache.Get(key); ok {
		return v.(*JobType), nil
	}

	var jt JobType
	err := s.GetDBWithContext(ctx).
		Where("id = ? AND tenant_id = ?", jobTypeID, tenantID).
		First(&jt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewBusinessErrorWithCode(common.CodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查询工单类型失败: %w", err)
	}

	s.cache.Set(key, &jt)
	return &jt, nil
}

// CreateJobType 创建工单类型
func (s *Service) CreateJobType(ctx context.Context, jt *JobType) error {
	jt.Active = true
	if err := s.GetDBWithContext(ctx).Create(jt).Error; err != nil {
		return fmt.Errorf("创建工单类型失败: %w", err)
	}
	return nil
}

// UpdateJobType 更新工单类型（仅影响之后创建的工单）
func (s *Service) UpdateJobType(ctx context.Context, tenantID string, jt *JobType) error {
	result := s.GetDBWithContext(ctx).Model(&JobType{}).
		Where("id = ? AND tenant_id = ?", jt.ID, tenantID).
		Updates(map[string]any{
			"name":             jt.Name,
			"next_job_type_id": jt.NextJobTypeID,
			"active":           jt.Active,
		})
	if result.Error != nil {
		return fmt.Errorf("更新工单类型失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewBusinessErrorWithCode(common.CodeNotFound)
	}

	s.cache.Invalidate(fmt.Sprintf("flow:jobtype:%s:%s", tenantID, jt.ID))
	return nil
}

// ListJobTypes 查询租户下的工单类型
func (s *Service) ListJobTypes(ctx context.Context, tenantID string) ([]JobType, error) {
	var types []JobType
	err := s.ApplyTenantFilter(s.GetDBWithContext(ctx).Model(&JobType{}), tenantID).
		Order("created_at ASC").
		Find(&types).Error
	if err != nil {
		return nil, fmt.Errorf("查询工单类型失败: %w", err)
	}
	return types, nil
}

// InvalidateTenant 失效租户下全部模板缓存
func (s *Service) InvalidateTenant(tenantID string) {
	s.cache.InvalidatePrefix(tenantCachePrefix(tenantID))
}
