package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/annel0/chunk-activity-tracker/internal/auth"
)

// AdminAuth способы доступа к административным эндпоинтам.
// Пустая структура - доступ открыт.
type AdminAuth struct {
	Tokens  *auth.TokenIssuer
	KeyHash string
}

func (a AdminAuth) enabled() bool {
	return a.Tokens != nil || a.KeyHash != ""
}

// adminMiddleware пропускает запрос с JWT (scope activity:admin) в Authorization
// или с ключом в X-Admin-Key
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rs.requireAdmin(c) {
			return
		}
		c.Next()
	}
}

// requireAdmin проверяет права администратора. При отказе отвечает 401,
// прерывает цепочку и возвращает false.
func (rs *RestServer) requireAdmin(c *gin.Context) bool {
	if !rs.admin.enabled() {
		return true
	}

	if key := c.GetHeader("X-Admin-Key"); key != "" && rs.admin.KeyHash != "" {
		if auth.CheckAPIKey(rs.admin.KeyHash, key) {
			c.Set("admin_subject", "api-key")
			return true
		}
	}

	if rs.admin.Tokens != nil {
		// Проверяем формат "Bearer <token>"
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			claims, err := rs.admin.Tokens.Validate(parts[1])
			if err == nil && claims.Scope == auth.ScopeAdmin {
				c.Set("admin_subject", claims.Subject)
				return true
			}
		}
	}

	c.JSON(http.StatusUnauthorized, GenericResponse{
		Success: false,
		Message: "Требуются права администратора",
	})
	c.Abort()
	return false
}

// corsMiddleware разрешает запросы с любых источников
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Admin-Key, X-Webhook-Signature")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
