package webserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stake-plus/trustink/src/apierr"
	"github.com/stake-plus/trustink/src/auth"
	"github.com/stake-plus/trustink/src/metrics"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
)

const (
	userKey   = "user"
	apiKeyKey = "api_key_id"
)

// AuthMiddleware resolves the bearer token to the current user.
func AuthMiddleware(svc *auth.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			respondError(c, log, apierr.Unauthorized("missing bearer token"))
			return
		}
		user, err := svc.Authenticate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole admits users holding any of roles. It must run after AuthMiddleware.
func RequireRole(log *zap.Logger, roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			respondError(c, log, apierr.Unauthorized("authentication required"))
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		respondError(c, log, apierr.Forbidden("%s access required", roles[0]))
	}
}

// APIKeyMiddleware admits third-party callers presenting a valid key in the
// X-API-Key header or api_key query parameter.
func APIKeyMiddleware(keys *auth.APIKeys, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-API-Key")
		if secret == "" {
			secret = c.Query("api_key")
		}
		key, err := keys.Check(c.Request.Context(), secret)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.Set(apiKeyKey, key.ID)
		c.Next()
	}
}

func currentUser(c *gin.Context) *types.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*types.User)
	return u
}

// RequestLogger logs each request and records it in the HTTP metrics.
func RequestLogger(log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(status), duration)

		if route == "/health" || route == "/metrics" {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		}
		if u := currentUser(c); u != nil {
			fields = append(fields, zap.String("user_id", u.ID))
		}
		if status >= http.StatusInternalServerError {
			log.Warn("HTTP Request", fields...)
			return
		}
		log.Info("HTTP Request", fields...)
	}
}
