package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"giftspa/server/internal/models"
	"giftspa/server/internal/services"
)

const actorContextKey = "actor"

// RequestLogger логирует метод, путь, статус и время ответа
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Printf("🌐 %s %s - Status: %d - Latency: %v", method, path, c.Writer.Status(), time.Since(start))
	}
}

// CORS разрешает запросы витрины и админки
func CORS(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthRequired проверяет Bearer JWT из заголовка Authorization
func AuthRequired(auth *services.AuthService) gin.HandlerFunc {
	return authenticate(auth, false)
}

// AuthRequiredWS то же для WebSocket: браузер не передает заголовки при handshake,
// поэтому токен можно передать в ?token=
func AuthRequiredWS(auth *services.AuthService) gin.HandlerFunc {
	return authenticate(auth, true)
}

func authenticate(auth *services.AuthService, allowQueryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
				return
			}
			tokenStr = strings.TrimSpace(parts[1])
		} else if allowQueryToken {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token not provided"})
			return
		}

		claims, err := auth.ParseToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(actorContextKey, services.ActorFromClaims(claims))
		c.Next()
	}
}

// RequireRoles пропускает только перечисленные роли
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
	}
}

// StaffRoles все роли админки
var StaffRoles = []string{models.RoleSuperAdmin, models.RoleAdmin, models.RoleManager}

func actorFrom(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}
