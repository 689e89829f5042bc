package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/internal/service"
	"github.com/campushub/institute-api/pkg/config"
	appErrors "github.com/campushub/institute-api/pkg/errors"
	"github.com/campushub/institute-api/pkg/response"
)

const (
	tierStrict   = "strict"
	tierModerate = "moderate"

	// Auth payloads are small; anything larger cannot carry a useful
	// email anyway.
	maxSniffBytes = 1 << 20
)

type limiterStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	CachedRole(ctx context.Context, email string) (models.UserRole, error)
	CacheRole(ctx context.Context, email string, role models.UserRole) error
}

type limiterUserRepository interface {
	RoleByEmail(ctx context.Context, email string) (models.UserRole, error)
}

// RateLimiter applies a role-aware fixed-window throttle. Admins get the
// moderate window; everyone else, including anonymous callers and callers
// whose role cannot be resolved, gets the strict window. Store failures let
// the request through.
type RateLimiter struct {
	store   limiterStore
	users   limiterUserRepository
	metrics *service.MetricsService
	config  config.RateLimitConfig
	logger  *zap.Logger
}

// NewRateLimiter constructs the throttle middleware factory.
func NewRateLimiter(store limiterStore, users limiterUserRepository, metrics *service.MetricsService, cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, users: users, metrics: metrics, config: cfg, logger: logger}
}

// Limit throttles requests. Must run after OptionalJWT so authenticated
// claims are available for role and key resolution.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		email := rl.sniffEmail(c)
		role := rl.resolveRole(c, email)

		tier := tierStrict
		window := rl.config.StrictWindow
		max := int64(rl.config.StrictMax)
		if role == models.RoleAdmin {
			tier = tierModerate
			window = rl.config.ModerateWindow
			max = int64(rl.config.ModerateMax)
		}

		key := rl.limiterKey(c, email)
		count, err := rl.store.IncrementWindow(c.Request.Context(), tier+":"+key, window)
		if err != nil {
			rl.logger.Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > max {
			rl.metrics.RecordRateLimited(tier)
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// sniffEmail extracts the email from JSON auth payloads without consuming
// the body. The body is restored for downstream binding.
func (rl *RateLimiter) sniffEmail(c *gin.Context) string {
	if c.Request.Method != "POST" || c.Request.Body == nil {
		return ""
	}
	if !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSniffBytes))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

func (rl *RateLimiter) resolveRole(c *gin.Context, email string) models.UserRole {
	if claims, ok := CurrentClaims(c); ok {
		return claims.Role
	}
	if email == "" {
		return ""
	}

	ctx := c.Request.Context()
	role, err := rl.store.CachedRole(ctx, email)
	if err == nil {
		rl.metrics.RecordCacheLookup(true)
		return role
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		rl.logger.Warn("role cache lookup failed", zap.Error(err))
	}
	rl.metrics.RecordCacheLookup(false)

	role, err = rl.users.RoleByEmail(ctx, email)
	if err != nil {
		// Unknown emails throttle on the strict tier.
		return ""
	}
	if err := rl.store.CacheRole(ctx, email, role); err != nil {
		rl.logger.Warn("failed to cache role", zap.Error(err))
	}
	return role
}

func (rl *RateLimiter) limiterKey(c *gin.Context, email string) string {
	ip := c.ClientIP()
	if email != "" {
		return ip + ":" + email
	}
	if claims, ok := CurrentClaims(c); ok {
		return claims.UserID
	}
	return ip
}
