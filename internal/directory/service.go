package directory

import (
	"context"
	"errors"
	"fmt"

	"backend/internal/cache"
	"backend/internal/common"

	"gorm.io/gorm"
)

// Service 人员目录服务
// 审批校验与自动派单都要频繁查人，读路径走注入的 TTL 缓存
type Service struct {
	*common.BaseService
	cache cache.Cache
}

// NewService 创建人员目录服务
func NewService(db *gorm.DB, c cache.Cache) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{
		BaseService: common.NewBaseService(db),
		cache:       c,
	}
}

func userCacheKey(tenantID, userID string) string {
	return fmt.Sprintf("directory:user:%s:%s", tenantID, userID)
}

// GetUser 按租户查询人员
func (s *Service) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	if v, ok := s.cache.Get(userCacheKey(tenantID, userID)); ok {
		return v.(*User), nil
	}

	var user User
	err := s.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.ActiveOnly()).
		Where("id = ?", userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewBusinessError(common.CodeUserNotFound, "")
	}
	if err != nil {
		return nil, fmt.Errorf("查询人员失败: %w", err)
	}

	s.cache.Set(userCacheKey(tenantID, userID), &user)
	return &user, nil
}

// GetUserRole 查询人员角色
func (s *Service) GetUserRole(ctx context.Context, tenantID, userID string) (Role, error) {
	user, err := s.GetUser(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// ListUsers 分页查询租户下的人员
func (s *Service) ListUsers(ctx context.Context, tenantID string, page common.PaginationRequest) ([]User, int64, error) {
	var users []User
	var total int64

	query := s.ApplyTenantFilter(s.GetDBWithContext(ctx).Model(&User{}), tenantID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计人员数量失败: %w", err)
	}

	err := s.ApplyPagination(query.Order("created_at DESC"), page.Page, page.PageSize).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询人员列表失败: %w", err)
	}
	return users, total, nil
}

// CreateUser 新增人员
func (s *Service) CreateUser(ctx context.Context, user *User) error {
	if !user.Role.Valid() {
		return common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("非法角色: %s", user.Role))
	}
	user.Active = true
	if err := s.GetDBWithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("创建人员失败: %w", err)
	}
	return nil
}

// UpdateUser 更新人员信息并失效缓存
func (s *Service) UpdateUser(ctx context.Context, tenantID string, user *User) error {
	if user.Role != "" && !user.Role.Valid() {
		return common.NewBusinessError(common.CodeInvalidRequest, fmt.Sprintf("非法角色: %s", user.Role))
	}

	result := s.GetDBWithContext(ctx).Model(&User{}).
		Where("id = ? AND tenant_id = ?", user.ID, tenantID).
		Updates(map[string]any{
			"name":       user.Name,
			"email":      user.Email,
			"role":       user.Role,
			"department": user.Department,
			"active":     user.Active,
		})
	if result.Error != nil {
		return fmt.Errorf("更新人员失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return common.NewBusinessError(common.CodeUserNotFound, "")
	}

	s.cache.Invalidate(userCacheKey(tenantID, user.ID))
	return nil
}
