package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/assignment"
	"backend/internal/common"
	"backend/internal/flow"
	"backend/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupJobRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&flow.Template{}, &flow.JobType{}, &assignment.Rule{},
		&job.Job{}, &job.Approval{}, &job.RejectionRequest{},
	))

	svc := job.NewService(db, flow.NewService(db, nil))
	handler := NewJobHandler(svc)
	rejection := NewRejectionHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenant_id", c.GetHeader("X-Tenant-ID"))
		c.Set("user_id", c.GetHeader("X-User-ID"))
		c.Next()
	})
	r.POST("/api/jobs", handler.Create)
	r.GET("/api/jobs/:id", handler.Get)
	r.POST("/api/jobs/:id/submit", handler.Submit)
	r.POST("/api/jobs/:id/decisions", handler.Decide)
	r.POST("/api/jobs/:id/rejection-requests", rejection.Create)
	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-http")
	req.Header.Set("X-User-ID", userID)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestJobHandlerCreateAndSubmit(t *testing.T) {
	r, db := setupJobRouter(t)
	require.NoError(t, db.Create(&flow.Template{
		TenantID: "tenant-http", ProjectID: "proj-1", JobTypeID: "type-1",
		TotalLevels: 1,
		Levels:      []flow.Level{{Level: 1, ApproverID: "approver-a"}},
		IsActive:    true,
	}).Error)

	resp := doJSON(t, r, http.MethodPost, "/api/jobs", "requester-1", gin.H{
		"project_id":  "proj-1",
		"job_type_id": "type-1",
		"title":       "主视觉设计",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	var created common.APIResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.True(t, created.Success)
	jobData := created.Data.(map[string]any)
	jobID := jobData["id"].(string)
	require.Equal(t, string(job.StatusDraft), jobData["status"])

	resp = doJSON(t, r, http.MethodPost, "/api/jobs/"+jobID+"/submit", "requester-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, r, http.MethodGet, "/api/jobs/"+jobID, "requester-1", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var fetched common.APIResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &fetched))
	require.Equal(t, string(job.StatusPendingApproval), fetched.Data.(map[string]any)["status"])
}

func TestJobHandlerDecisionErrorsMapToHTTP(t *testing.T) {
	r, db := setupJobRouter(t)
	require.NoError(t, db.Create(&flow.Template{
		TenantID: "tenant-http", ProjectID: "proj-1", JobTypeID: "type-1",
		TotalLevels: 1,
		Levels:      []flow.Level{{Level: 1, ApproverID: "approver-a"}},
		IsActive:    true,
	}).Error)

	resp := doJSON(t, r, http.MethodPost, "/api/jobs", "requester-1", gin.H{
		"project_id": "proj-1", "job_type_id": "type-1", "title": "横幅",
	})
	require.Equal(t, http.StatusCreated, resp.Code)
	var created common.APIResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	jobID := created.Data.(map[string]any)["id"].(string)

	doJSON(t, r, http.MethodPost, "/api/jobs/"+jobID+"/submit", "requester-1", nil)

	approve := true
	// 非当前审批人：401
	resp = doJSON(t, r, http.MethodPost, "/api/jobs/"+jobID+"/decisions", "intruder", gin.H{
		"level": 1, "approve": &approve,
	})
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	// 级别不符：409
	resp = doJSON(t, r, http.MethodPost, "/api/jobs/"+jobID+"/decisions", "approver-a", gin.H{
		"level": 2, "approve": &approve,
	})
	require.Equal(t, http.StatusConflict, resp.Code)

	// 正常通过
	resp = doJSON(t, r, http.MethodPost, "/api/jobs/"+jobID+"/decisions", "approver-a", gin.H{
		"level": 1, "approve": &approve, "comment": "通过",
	})
	require.Equal(t, http.StatusCreated, resp.Code)

	// 已批准后再审批：409
	resp = doJSON(t, r, http.MethodPost, "/api/jobs/"+jobID+"/decisions", "approver-a", gin.H{
		"level": 1, "approve": &approve,
	})
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestRejectionHandlerRequiresReason(t *testing.T) {
	r, db := setupJobRouter(t)

	designer := "designer-1"
	j := &job.Job{
		TenantID: "tenant-http", ProjectID: "proj-1", JobTypeID: "type-1",
		Title: "海报", RequesterID: "requester-1",
		Status: job.StatusAssigned, AssigneeID: &designer,
	}
	require.NoError(t, db.Create(j).Error)

	resp := doJSON(t, r, http.MethodPost, "/api/jobs/"+j.ID+"/rejection-requests", designer, gin.H{
		"reason": "",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doJSON(t, r, http.MethodPost, "/api/jobs/"+j.ID+"/rejection-requests", designer, gin.H{
		"reason": "排期冲突",
	})
	require.Equal(t, http.StatusCreated, resp.Code)
}
