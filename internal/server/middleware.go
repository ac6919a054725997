package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/guard"
	workspacedomain "github.com/noxloop/digiforge/internal/workspace/domain"
)

// Identity headers set by the fronting auth proxy.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"

	contextUserIDKey    = "user_id"
	contextUserEmailKey = "user_email"
	contextUserNameKey  = "user_name"
)

const actionAPIGlobal = "api_global"

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextUserEmailKey, strings.TrimSpace(c.GetHeader(HeaderUserEmail)))
		c.Set(contextUserNameKey, strings.TrimSpace(c.GetHeader(HeaderUserName)))
		c.Next()
	}
}

// GlobalRateLimit applies the api_global sliding window keyed by client IP.
func (s *Server) GlobalRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if s.guard.Blocked(ip) {
			s.metrics.RateLimitedTotal.WithLabelValues(actionAPIGlobal).Inc()
			AbortWithError(c, guard.ErrLocked)
			return
		}

		decision, err := s.guard.Check(c.Request.Context(), actionAPIGlobal, ip)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !decision.Allowed {
			s.metrics.RateLimitedTotal.WithLabelValues(actionAPIGlobal).Inc()
			c.Header("Retry-After", retryAfter(decision.ResetAt))
			AbortWithError(c, guard.ErrRateLimited)
			return
		}

		if err := s.guard.Record(c.Request.Context(), actionAPIGlobal, ip); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func retryAfter(resetAt time.Time) string {
	seconds := int(time.Until(resetAt).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func userID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

func userEmail(c *gin.Context) string {
	return c.GetString(contextUserEmailKey)
}

func userName(c *gin.Context) string {
	return c.GetString(contextUserNameKey)
}

// workspaceForRequest resolves the :workspace_id path param and enforces
// ownership. Foreign workspaces look like missing ones to the caller.
func (s *Server) workspaceForRequest(c *gin.Context) (*workspacedomain.Workspace, bool) {
	raw := c.Param("workspace_id")
	id, err := snowflake.ParseString(raw)
	if err != nil {
		AbortWithError(c, workspacedomain.ErrNotFound)
		return nil, false
	}

	ws, err := s.workspaceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if ws.OwnerID != userID(c) {
		AbortWithError(c, workspacedomain.ErrNotFound)
		return nil, false
	}
	return ws, true
}
