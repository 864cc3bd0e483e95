package middleware

import (
	"net/http"
	"strings"

	"backend/internal/directory"
	tenantctx "backend/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 身份头，由上游网关完成认证后注入
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// GinTenantContextMiddleware 从请求头提取租户与用户身份并注入上下文
// 角色从人员目录查询（带缓存），不信任客户端自报的角色
func GinTenantContextMiddleware(dir *directory.Service, logger *zap.Logger) gin.HandlerFunc {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenantID))
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if tenantID == "" || userID == "" {
			log.Warn("请求缺少租户或用户头", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少租户或用户身份"})
			return
		}

		tc := tenantctx.TenantContext{
			TenantID: tenantID,
			UserID:   userID,
		}
		if dir != nil {
			if role, err := dir.GetUserRole(c.Request.Context(), tenantID, userID); err == nil {
				tc.Role = string(role)
			} else {
				log.Warn("查询用户角色失败",
					zap.String("tenantId", tenantID),
					zap.String("userId", userID),
					zap.Error(err),
				)
			}
		}

		c.Set("tenant_id", tc.TenantID)
		c.Set("user_id", tc.UserID)
		c.Set("role", tc.Role)

		ctx := tenantctx.WithTenantContext(c.Request.Context(), tc)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// TenantContextFromGin 从 Gin 上下文取出租户上下文
func TenantContextFromGin(c *gin.Context) tenantctx.TenantContext {
	if tc, ok := tenantctx.FromContext(c.Request.Context()); ok {
		return tc
	}
	return tenantctx.TenantContext{
		TenantID: c.GetString("tenant_id"),
		UserID:   c.GetString("user_id"),
		Role:     c.GetString("role"),
	}
}
