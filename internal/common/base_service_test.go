package common

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// TestModel 测试用的模型
type TestModel struct {
	ID        uint   `gorm:"primaryKey"`
	TenantID  string `gorm:"size:36;index"`
	Name      string `gorm:"size:255"`
	Status    string `gorm:"size:50"`
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&TestModel{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// seedTestData 插入测试数据
func seedTestData(t *testing.T, db *gorm.DB) {
	models := []TestModel{
		{TenantID: "tenant1", Name: "Test 1", Status: "assigned", Active: true},
		{TenantID: "tenant1", Name: "Test 2", Status: "draft", Active: false},
		{TenantID: "tenant2", Name: "Test 3", Status: "assigned", Active: true},
		{TenantID: "tenant2", Name: "Test 4", Status: "closed", Active: true},
	}

	for _, model := range models {
		if err := db.Create(&model).Error; err != nil {
			t.Fatalf("Failed to seed data: %v", err)
		}
	}
}

// TestApplyTenantFilter 测试租户过滤
func TestApplyTenantFilter(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name        string
		tenantID    string
		expectCount int64
	}{
		{"Filter tenant1", "tenant1", 2},
		{"Filter tenant2", "tenant2", 2},
		{"No filter", "", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := db.Model(&TestModel{})
			query = service.ApplyTenantFilter(query, tt.tenantID)

			var count int64
			err := query.Count(&count).Error
			assert.NoError(t, err)
			assert.Equal(t, tt.expectCount, count)
		})
	}
}

// TestApplyStatusFilter 测试状态过滤
func TestApplyStatusFilter(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	query := service.ApplyStatusFilter(db.Model(&TestModel{}), "assigned")
	var count int64
	assert.NoError(t, query.Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// 空状态不过滤
	query = service.ApplyStatusFilter(db.Model(&TestModel{}), "")
	assert.NoError(t, query.Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

// TestPagination 测试分页
func TestPagination(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name        string
		page        int
		pageSize    int
		expectCount int
	}{
		{"Page 1, size 2", 1, 2, 2},
		{"Page 2, size 2", 2, 2, 2},
		{"Page 3, size 2", 3, 2, 0}, // 超出范围
		{"Page 1, size 10", 1, 10, 4},
		{"Invalid page falls back", 0, 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := db.Model(&TestModel{})
			query = service.ApplyPagination(query, tt.page, tt.pageSize)

			var models []TestModel
			err := query.Find(&models).Error
			assert.NoError(t, err)
			assert.Equal(t, tt.expectCount, len(models))
		})
	}
}

// TestApplySorting 测试排序
func TestApplySorting(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)

	tests := []struct {
		name          string
		sortBy        string
		sortOrder     string
		allowedFields []string
		expectFirst   string
	}{
		{"Sort by name ASC", "name", "asc", []string{"name", "status"}, "Test 1"},
		{"Sort by name DESC", "name", "desc", []string{"name", "status"}, "Test 4"},
		{"Disallowed field falls back", "tenant_id", "asc", []string{"name"}, ""},
		{"Default sort", "", "", nil, ""}, // 默认按created_at DESC排序
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := db.Model(&TestModel{})
			query = service.ApplySorting(query, tt.sortBy, tt.sortOrder, tt.allowedFields)

			var models []TestModel
			err := query.Find(&models).Error
			assert.NoError(t, err)

			if tt.expectFirst != "" && len(models) > 0 {
				assert.Equal(t, tt.expectFirst, models[0].Name)
			}
		})
	}
}

// TestScopes 测试通用查询Scope
func TestScopes(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)

	var models []TestModel
	err := db.Scopes(ByTenant("tenant1"), ActiveOnly()).Find(&models).Error
	assert.NoError(t, err)
	assert.Equal(t, 1, len(models))
	assert.Equal(t, "Test 1", models[0].Name)
}

// TestFindByID 测试根据ID查询
func TestFindByID(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)
	ctx := context.Background()

	var firstModel TestModel
	db.First(&firstModel)

	var model TestModel
	err := service.FindByID(ctx, &model, "1")
	assert.NoError(t, err)
	assert.Equal(t, firstModel.Name, model.Name)
}

// TestExists 测试记录存在性检查
func TestExists(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)
	ctx := context.Background()

	tests := []struct {
		name      string
		condition string
		args      []interface{}
		expect    bool
	}{
		{"Exists - tenant1", "tenant_id = ?", []interface{}{"tenant1"}, true},
		{"Exists - assigned status", "status = ?", []interface{}{"assigned"}, true},
		{"Not exists - unknown tenant", "tenant_id = ?", []interface{}{"tenant999"}, false},
		{"Not exists - unknown status", "status = ?", []interface{}{"archived"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, err := service.Exists(ctx, &TestModel{}, tt.condition, tt.args...)
			assert.NoError(t, err)
			assert.Equal(t, tt.expect, exists)
		})
	}
}

// TestCount 测试计数
func TestCount(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	service := NewBaseService(db)
	ctx := context.Background()

	tests := []struct {
		name      string
		condition string
		args      []interface{}
		expect    int64
	}{
		{"Count all", "", nil, 4},
		{"Count tenant1", "tenant_id = ?", []interface{}{"tenant1"}, 2},
		{"Count tenant2 + closed", "tenant_id = ? AND status = ?", []interface{}{"tenant2", "closed"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := service.Count(ctx, &TestModel{}, tt.condition, tt.args...)
			assert.NoError(t, err)
			assert.Equal(t, tt.expect, count)
		})
	}
}

// TestTransaction 测试事务
func TestTransaction(t *testing.T) {
	db := setupTestDB(t)
	service := NewBaseService(db)
	ctx := context.Background()

	t.Run("Successful transaction", func(t *testing.T) {
		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			model1 := &TestModel{TenantID: "tenant1", Name: "TX Test 1", Status: "draft"}
			model2 := &TestModel{TenantID: "tenant1", Name: "TX Test 2", Status: "draft"}

			if err := tx.Create(model1).Error; err != nil {
				return err
			}
			if err := tx.Create(model2).Error; err != nil {
				return err
			}

			return nil
		})

		assert.NoError(t, err)

		var count int64
		db.Model(&TestModel{}).Where("name LIKE ?", "TX Test%").Count(&count)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Failed transaction (rollback)", func(t *testing.T) {
		var countBefore int64
		db.Model(&TestModel{}).Count(&countBefore)

		err := service.Transaction(ctx, func(tx *gorm.DB) error {
			model := &TestModel{TenantID: "tenant1", Name: "Rollback Test", Status: "draft"}
			if err := tx.Create(model).Error; err != nil {
				return err
			}

			// 模拟错误，触发回滚
			return gorm.ErrInvalidTransaction
		})

		assert.Error(t, err)

		var countAfter int64
		db.Model(&TestModel{}).Count(&countAfter)
		assert.Equal(t, countBefore, countAfter)
	})
}
