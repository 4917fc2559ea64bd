package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// 会话上下文的请求头
const (
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"
	HeaderUserID   = "X-User-ID"
)

const (
	ctxUserName = "session.userName"
	ctxUserRole = "session.userRole"
	ctxIsAdmin  = "session.isAdmin"
)

// Session 当前请求的用户信息
type Session struct {
	UserName string
	Role     string
	IsAdmin  bool
}

// SessionMiddleware 从请求头读取用户名和角色写入gin上下文。
// 未携带角色头的请求视为管理面板自身的管理员会话。
func SessionMiddleware(adminRoles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(HeaderUserName))
		role := strings.TrimSpace(c.GetHeader(HeaderUserRole))

		c.Set(ctxUserName, name)
		c.Set(ctxUserRole, role)
		c.Set(ctxIsAdmin, role == "" || hasRole(adminRoles, role))
		c.Next()
	}
}

// RequireAdmin 拒绝非管理员角色
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			return
		}
		c.Next()
	}
}

// CurrentSession 读取会话信息，没有经过中间件时按管理员处理
func CurrentSession(c *gin.Context) Session {
	s := Session{
		UserName: c.GetString(ctxUserName),
		Role:     c.GetString(ctxUserRole),
		IsAdmin:  true,
	}
	if v, ok := c.Get(ctxIsAdmin); ok {
		s.IsAdmin, _ = v.(bool)
	}
	return s
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
