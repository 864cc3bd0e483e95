package assignment

import (
	"context"
	"fmt"
	"testing"

	"backend/internal/common"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRuleTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Rule{}))
	return db
}

func TestResolveReturnsEmptyWithoutRule(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupRuleTestDB(t))

	// 无匹配规则不是错误，工单停在待派单池
	assignee, err := svc.Resolve(ctx, "tenant-a", "proj-1", "type-1")
	require.NoError(t, err)
	require.Empty(t, assignee)
}

func TestResolveTxInsideTransaction(t *testing.T) {
	db := setupRuleTestDB(t)
	svc := NewService(db)

	require.NoError(t, db.Create(&Rule{
		TenantID: "tenant-tx", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-1",
	}).Error)

	// 事务句柄内的查找与 Resolve 语义一致，供审批通过后的同事务派单调用
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		assignee, err := svc.ResolveTx(tx, "tenant-tx", "proj-1", "type-1")
		require.NoError(t, err)
		require.Equal(t, "designer-1", assignee)

		missing, err := svc.ResolveTx(tx, "tenant-tx", "proj-1", "type-other")
		require.NoError(t, err)
		require.Empty(t, missing)
		return nil
	}))
}

func TestUpsertRuleOverwrites(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupRuleTestDB(t))

	rule := &Rule{TenantID: "tenant-b", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-1"}
	require.NoError(t, svc.UpsertRule(ctx, rule))

	assignee, err := svc.Resolve(ctx, "tenant-b", "proj-1", "type-1")
	require.NoError(t, err)
	require.Equal(t, "designer-1", assignee)

	// 同键覆盖而不是新增
	require.NoError(t, svc.UpsertRule(ctx, &Rule{
		TenantID: "tenant-b", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-2",
	}))
	assignee, err = svc.Resolve(ctx, "tenant-b", "proj-1", "type-1")
	require.NoError(t, err)
	require.Equal(t, "designer-2", assignee)

	_, total, err := svc.ListRules(ctx, "tenant-b", common.DefaultPagination())
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestDeleteRule(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupRuleTestDB(t))

	rule := &Rule{TenantID: "tenant-c", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-1"}
	require.NoError(t, svc.UpsertRule(ctx, rule))
	require.NoError(t, svc.DeleteRule(ctx, "tenant-c", rule.ID))

	err := svc.DeleteRule(ctx, "tenant-c", rule.ID)
	require.ErrorIs(t, err, common.NewBusinessErrorWithCode(common.CodeNotFound))

	assignee, err := svc.Resolve(ctx, "tenant-c", "proj-1", "type-1")
	require.NoError(t, err)
	require.Empty(t, assignee)
}
