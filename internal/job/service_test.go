package job

import (
	"context"
	"fmt"
	"testing"

	"backend/internal/assignment"
	"backend/internal/flow"
	"backend/internal/tenant"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&flow.Project{}, &flow.JobType{}, &flow.Template{},
		&assignment.Rule{},
		&Job{}, &Approval{}, &RejectionRequest{},
	))
	return db
}

func newTestService(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	db := setupJobTestDB(t)
	flows := flow.NewService(db, nil)
	return db, NewService(db, flows)
}

func seedTemplate(t *testing.T, db *gorm.DB, tenantID, projectID, jobTypeID string, approvers ...string) *flow.Template {
	t.Helper()
	levels := make([]flow.Level, 0, len(approvers))
	for i, approver := range approvers {
		levels = append(levels, flow.Level{Level: i + 1, ApproverID: approver})
	}
	tpl := &flow.Template{
		TenantID:    tenantID,
		ProjectID:   projectID,
		JobTypeID:   jobTypeID,
		TotalLevels: len(approvers),
		Levels:      levels,
		IsActive:    true,
	}
	require.NoError(t, db.Create(tpl).Error)
	return tpl
}

func seedDraft(t *testing.T, svc *Service, tenantID, projectID, jobTypeID string) *Job {
	t.Helper()
	j := &Job{
		TenantID:    tenantID,
		ProjectID:   projectID,
		JobTypeID:   jobTypeID,
		Title:       "主视觉设计",
		RequesterID: "requester-1",
	}
	require.NoError(t, svc.Create(context.Background(), j))
	return j
}

func actor(tenantID, userID string) tenant.TenantContext {
	return tenant.TenantContext{TenantID: tenantID, UserID: userID, Role: "approver"}
}

func TestSubmitWithoutTemplateParksJob(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	j := seedDraft(t, svc, "tenant-nt", "proj-1", "type-1")

	submitted, err := svc.Submit(ctx, "tenant-nt", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingConfiguration, submitted.Status)
	require.Nil(t, submitted.FlowSnapshot)

	// 管理员补配置后重新提交，进入一级审批
	seedTemplate(t, db, "tenant-nt", "proj-1", "type-1", "approver-a")
	submitted, err = svc.Submit(ctx, "tenant-nt", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, submitted.Status)
	require.Equal(t, 1, submitted.CurrentLevel)
	require.NotNil(t, submitted.FlowSnapshot)
	require.NotNil(t, submitted.SubmittedAt)
}

func TestSubmitZeroLevelsSkipsApproval(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-zl", "proj-1", "type-1")

	// 无派单规则：停在已批准的待派单池，不是错误
	j := seedDraft(t, svc, "tenant-zl", "proj-1", "type-1")
	submitted, err := svc.Submit(ctx, "tenant-zl", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, submitted.Status)
	require.Nil(t, submitted.AssigneeID)

	// 有派单规则：同一事务内直接派单
	require.NoError(t, db.Create(&assignment.Rule{
		TenantID: "tenant-zl", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-1",
	}).Error)
	j2 := seedDraft(t, svc, "tenant-zl", "proj-1", "type-1")
	submitted, err = svc.Submit(ctx, "tenant-zl", j2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, submitted.Status)
	require.Equal(t, "designer-1", *submitted.AssigneeID)
}

func TestDecisionLevelOrderAndAuthorization(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-lo", "proj-1", "type-1", "approver-a", "approver-b")
	j := seedDraft(t, svc, "tenant-lo", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-lo", j.ID)
	require.NoError(t, err)

	// 越级审批
	_, err = svc.RecordDecision(ctx, actor("tenant-lo", "approver-b"), j.ID, 2, true, "")
	require.ErrorIs(t, err, ErrLevelMismatch)

	// 非当前级别审批人
	_, err = svc.RecordDecision(ctx, actor("tenant-lo", "approver-b"), j.ID, 1, true, "")
	require.ErrorIs(t, err, ErrNotCurrentApprover)

	// 一级通过后推进到二级
	_, err = svc.RecordDecision(ctx, actor("tenant-lo", "approver-a"), j.ID, 1, true, "同意")
	require.NoError(t, err)
	stored, err := svc.Get(ctx, "tenant-lo", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, stored.Status)
	require.Equal(t, 2, stored.CurrentLevel)

	// 二级通过后进入已批准
	_, err = svc.RecordDecision(ctx, actor("tenant-lo", "approver-b"), j.ID, 2, true, "")
	require.NoError(t, err)
	stored, err = svc.Get(ctx, "tenant-lo", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)

	var ledger []Approval
	require.NoError(t, db.Where("job_id = ?", j.ID).Order("level ASC").Find(&ledger).Error)
	require.Len(t, ledger, 2)
	require.Equal(t, ApprovalApproved, ledger[0].Status)
	require.Equal(t, "approver-a", ledger[0].ApproverID)
}

func TestDecisionDuplicateGuard(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-dg", "proj-1", "type-1", "approver-a", "approver-b")
	j := seedDraft(t, svc, "tenant-dg", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-dg", j.ID)
	require.NoError(t, err)

	// 该级别已有台账行时拒绝二次决定，守卫与台账写入同事务，
	// 抢先落库的并发写者也会让后来者得到已裁决而非非法流转
	require.NoError(t, db.Create(&Approval{
		TenantID: "tenant-dg", JobID: j.ID, Level: 1,
		Status: ApprovalApproved, ApproverID: "approver-a",
	}).Error)
	_, err = svc.RecordDecision(ctx, actor("tenant-dg", "approver-a"), j.ID, 1, true, "")
	require.ErrorIs(t, err, ErrAlreadyDecided)

	// 被拒的重复决定不产生任何工单改写
	stored, err := svc.Get(ctx, "tenant-dg", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, stored.Status)
	require.Equal(t, 1, stored.CurrentLevel)

	var rows int64
	require.NoError(t, db.Model(&Approval{}).Where("job_id = ?", j.ID).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestDecisionRejectMarksSourceApprover(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-rj", "proj-1", "type-1", "approver-a")
	j := seedDraft(t, svc, "tenant-rj", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-rj", j.ID)
	require.NoError(t, err)

	_, err = svc.RecordDecision(ctx, actor("tenant-rj", "approver-a"), j.ID, 1, false, "方向不对")
	require.NoError(t, err)

	stored, err := svc.Get(ctx, "tenant-rj", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, stored.Status)
	require.Equal(t, SourceApprover, stored.RejectionSource)
	require.Equal(t, "方向不对", stored.RejectionReason)
}

func TestAutoApprovalDistinctInLedger(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-aa", "proj-1", "type-1", "approver-a")
	j := seedDraft(t, svc, "tenant-aa", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-aa", j.ID)
	require.NoError(t, err)

	approval, err := svc.RecordAutoApproval(ctx, "tenant-aa", j.ID, 1)
	require.NoError(t, err)
	require.Equal(t, ApprovalAutoApproved, approval.Status)
	require.Empty(t, approval.ApproverID)

	stored, err := svc.Get(ctx, "tenant-aa", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
}

func TestSnapshotIsolatesInFlightJobs(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	flows := flow.NewService(db, nil)
	seedTemplate(t, db, "tenant-si", "proj-1", "type-1", "approver-old")
	j := seedDraft(t, svc, "tenant-si", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-si", j.ID)
	require.NoError(t, err)

	// 提交后更换模板，在途工单仍按提交时的快照审批
	require.NoError(t, flows.CreateTemplate(ctx, &flow.Template{
		TenantID: "tenant-si", ProjectID: "proj-1", JobTypeID: "type-1",
		TotalLevels: 1,
		Levels:      []flow.Level{{Level: 1, ApproverID: "approver-new"}},
	}))

	_, err = svc.RecordDecision(ctx, actor("tenant-si", "approver-new"), j.ID, 1, true, "")
	require.ErrorIs(t, err, ErrNotCurrentApprover)
	_, err = svc.RecordDecision(ctx, actor("tenant-si", "approver-old"), j.ID, 1, true, "")
	require.NoError(t, err)
}

func TestTerminalJobRejectsAllTransitions(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-tm", "proj-1", "type-1", "approver-a")
	j := seedDraft(t, svc, "tenant-tm", "proj-1", "type-1")
	_, err := svc.Cancel(ctx, actor("tenant-tm", "requester-1"), j.ID, "不做了")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "tenant-tm", j.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.RecordDecision(ctx, actor("tenant-tm", "approver-a"), j.ID, 1, true, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Cancel(ctx, actor("tenant-tm", "requester-1"), j.ID, "再取消")
	require.ErrorIs(t, err, ErrInvalidTransition)

	// 终态下不产生任何写入
	var ledger int64
	require.NoError(t, db.Model(&Approval{}).Where("job_id = ?", j.ID).Count(&ledger).Error)
	require.Zero(t, ledger)
	stored, err := svc.Get(ctx, "tenant-tm", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
	require.Equal(t, "不做了", stored.RejectionReason)
}

func TestExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-ex", "proj-1", "type-1", "approver-a")
	require.NoError(t, db.Create(&assignment.Rule{
		TenantID: "tenant-ex", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-1",
	}).Error)

	j := seedDraft(t, svc, "tenant-ex", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-ex", j.ID)
	require.NoError(t, err)
	_, err = svc.RecordDecision(ctx, actor("tenant-ex", "approver-a"), j.ID, 1, true, "")
	require.NoError(t, err)

	stored, err := svc.Get(ctx, "tenant-ex", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, stored.Status)

	// 只有被派单的设计师能开工
	_, err = svc.Start(ctx, actor("tenant-ex", "someone-else"), j.ID)
	require.Error(t, err)
	_, err = svc.Start(ctx, actor("tenant-ex", "designer-1"), j.ID)
	require.NoError(t, err)

	_, err = svc.Deliver(ctx, actor("tenant-ex", "designer-1"), j.ID, []string{"final/v1.psd"})
	require.NoError(t, err)
	stored, err = svc.Get(ctx, "tenant-ex", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, []string{"final/v1.psd"}, stored.FinalFiles)
	require.NotNil(t, stored.CompletedAt)

	// 终审审批人打回返工，修改后恢复执行并再次交付
	_, err = svc.Rework(ctx, actor("tenant-ex", "approver-a"), j.ID, "配色再调")
	require.NoError(t, err)
	_, err = svc.Resume(ctx, actor("tenant-ex", "designer-1"), j.ID)
	require.NoError(t, err)
	_, err = svc.Deliver(ctx, actor("tenant-ex", "designer-1"), j.ID, []string{"final/v2.psd"})
	require.NoError(t, err)

	stored, err = svc.Get(ctx, "tenant-ex", j.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"final/v1.psd", "final/v2.psd"}, stored.FinalFiles)

	_, err = svc.Close(ctx, actor("tenant-ex", "requester-1"), j.ID)
	require.NoError(t, err)
	stored, err = svc.Get(ctx, "tenant-ex", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
}

func TestReworkRequiresFinalApprover(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-rw", "proj-1", "type-1", "approver-a", "approver-final")
	require.NoError(t, db.Create(&assignment.Rule{
		TenantID: "tenant-rw", ProjectID: "proj-1", JobTypeID: "type-1", AssigneeID: "designer-1",
	}).Error)

	j := seedDraft(t, svc, "tenant-rw", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-rw", j.ID)
	require.NoError(t, err)
	_, err = svc.RecordDecision(ctx, actor("tenant-rw", "approver-a"), j.ID, 1, true, "")
	require.NoError(t, err)
	_, err = svc.RecordDecision(ctx, actor("tenant-rw", "approver-final"), j.ID, 2, true, "")
	require.NoError(t, err)
	_, err = svc.Start(ctx, actor("tenant-rw", "designer-1"), j.ID)
	require.NoError(t, err)

	_, err = svc.Rework(ctx, actor("tenant-rw", "approver-a"), j.ID, "打回")
	require.ErrorIs(t, err, ErrNotCurrentApprover)

	admin := tenant.TenantContext{TenantID: "tenant-rw", UserID: "ops", Role: "admin"}
	_, err = svc.Rework(ctx, admin, j.ID, "打回")
	require.NoError(t, err)
}

func TestManualAssignmentFromBacklog(t *testing.T) {
	ctx := context.Background()
	db, svc := newTestService(t)
	seedTemplate(t, db, "tenant-ma", "proj-1", "type-1")

	j := seedDraft(t, svc, "tenant-ma", "proj-1", "type-1")
	_, err := svc.Submit(ctx, "tenant-ma", j.ID)
	require.NoError(t, err)

	stored, err := svc.Get(ctx, "tenant-ma", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)

	_, err = svc.AssignManually(ctx, actor("tenant-ma", "ops"), j.ID, "designer-9")
	require.NoError(t, err)
	stored, err = svc.Get(ctx, "tenant-ma", j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAssigned, stored.Status)
	require.Equal(t, "designer-9", *stored.AssigneeID)
}
