package directory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"backend/internal/cache"
	"backend/internal/common"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDirectoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))
	return db
}

func TestRoleCapabilities(t *testing.T) {
	require.True(t, RoleApprover.CanApprove())
	require.True(t, RoleAdmin.CanApprove())
	require.False(t, RoleDesigner.CanApprove())

	require.True(t, RoleDesigner.CanDesign())
	require.True(t, RoleAdmin.CanDesign())
	require.False(t, RoleRequester.CanDesign())

	require.True(t, RoleAdmin.CanManage())
	require.False(t, RoleApprover.CanManage())

	require.False(t, Role("owner").Valid())
}

func TestGetUserScopedByTenant(t *testing.T) {
	ctx := context.Background()
	db := setupDirectoryTestDB(t)
	svc := NewService(db, nil)

	user := &User{TenantID: "tenant-a", Name: "王设计", Email: "wang@example.com", Role: RoleDesigner}
	require.NoError(t, svc.CreateUser(ctx, user))

	stored, err := svc.GetUser(ctx, "tenant-a", user.ID)
	require.NoError(t, err)
	require.Equal(t, RoleDesigner, stored.Role)

	// 其他租户不可见
	_, err = svc.GetUser(ctx, "tenant-b", user.ID)
	require.ErrorIs(t, err, common.NewBusinessErrorWithCode(common.CodeUserNotFound))
}

func TestCreateUserRejectsInvalidRole(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupDirectoryTestDB(t), nil)

	err := svc.CreateUser(ctx, &User{TenantID: "tenant-c", Name: "x", Email: "x@example.com", Role: "owner"})
	require.Error(t, err)
}

func TestInactiveUserInvisible(t *testing.T) {
	ctx := context.Background()
	db := setupDirectoryTestDB(t)
	svc := NewService(db, nil)

	user := &User{TenantID: "tenant-d", Name: "李审批", Email: "li@example.com", Role: RoleApprover}
	require.NoError(t, svc.CreateUser(ctx, user))

	user.Active = false
	require.NoError(t, svc.UpdateUser(ctx, "tenant-d", user))

	_, err := svc.GetUser(ctx, "tenant-d", user.ID)
	require.ErrorIs(t, err, common.NewBusinessErrorWithCode(common.CodeUserNotFound))
}

func TestUpdateUserInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	db := setupDirectoryTestDB(t)
	svc := NewService(db, cache.NewTTLCache(time.Minute))

	user := &User{TenantID: "tenant-e", Name: "张三", Email: "zhang@example.com", Role: RoleDesigner}
	require.NoError(t, svc.CreateUser(ctx, user))

	role, err := svc.GetUserRole(ctx, "tenant-e", user.ID)
	require.NoError(t, err)
	require.Equal(t, RoleDesigner, role)

	user.Role = RoleApprover
	user.Active = true
	require.NoError(t, svc.UpdateUser(ctx, "tenant-e", user))

	role, err = svc.GetUserRole(ctx, "tenant-e", user.ID)
	require.NoError(t, err)
	require.Equal(t, RoleApprover, role)
}
