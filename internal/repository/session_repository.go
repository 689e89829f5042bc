package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

const (
	refreshTokenKeyPrefix = "refreshToken:"
	userSnapshotKeyPrefix = "user:"
	roleLookupKeyPrefix   = "role:"
	rateLimitKeyPrefix    = "ratelimit:"

	// TTLs mirror the lifetimes of what each entry shadows: the refresh
	// token itself, a short-lived user snapshot, and the throttle's role
	// lookup.
	RefreshTokenTTL = 7 * 24 * time.Hour
	UserSnapshotTTL = time.Hour
	RoleLookupTTL   = 10 * time.Minute
)

// SessionRepository provides helpers around Redis for session state, the
// throttle's role cache and fixed-window counters.
type SessionRepository struct {
	client  *redis.Client
	roleTTL time.Duration
	logger  *zap.Logger
}

// NewSessionRepository constructs a session repository. roleTTL bounds the
// throttle's email→role entries; non-positive values fall back to the
// default lookup TTL.
func NewSessionRepository(client *redis.Client, roleTTL time.Duration, logger *zap.Logger) *SessionRepository {
	if roleTTL <= 0 {
		roleTTL = RoleLookupTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRepository{client: client, roleTTL: roleTTL, logger: logger}
}

// StoreSession writes both session entries for a freshly issued refresh
// token: refreshToken→userID and userID→snapshot.
func (r *SessionRepository) StoreSession(ctx context.Context, refreshToken string, entry models.SessionEntry) error {
	if r.client == nil {
		return nil
	}

	if err := r.client.Set(ctx, refreshTokenKeyPrefix+refreshToken, entry.UserID, RefreshTokenTTL).Err(); err != nil {
		return fmt.Errorf("cache refresh token: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal session entry: %w", err)
	}
	if err := r.client.Set(ctx, userSnapshotKeyPrefix+entry.UserID, payload, UserSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("cache user snapshot: %w", err)
	}

	return nil
}

// ResolveRefreshToken returns the user id mapped to the refresh token.
func (r *SessionRepository) ResolveRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	if r.client == nil {
		return "", appErrors.ErrCacheMiss
	}

	userID, err := r.client.Get(ctx, refreshTokenKeyPrefix+refreshToken).Result()
	if err != nil {
		if err == redis.Nil {
			return "", appErrors.ErrCacheMiss
		}
		return "", fmt.Errorf("redis get refresh token: %w", err)
	}
	return userID, nil
}

// UserSnapshot returns the cached user snapshot for the given id.
func (r *SessionRepository) UserSnapshot(ctx context.Context, userID string) (*models.SessionEntry, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, userSnapshotKeyPrefix+userID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get user snapshot: %w", err)
	}

	var entry models.SessionEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal user snapshot: %w", err)
	}
	return &entry, nil
}

// ClearSession deletes both entries for a session. Invalidation runs before
// the rotated entries are written so a concurrent reader never sees two
// valid refresh tokens on the happy path.
func (r *SessionRepository) ClearSession(ctx context.Context, refreshToken, userID string) error {
	if r.client == nil {
		return nil
	}

	keys := make([]string, 0, 2)
	if refreshToken != "" {
		keys = append(keys, refreshTokenKeyPrefix+refreshToken)
	}
	if userID != "" {
		keys = append(keys, userSnapshotKeyPrefix+userID)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear session: %w", err)
	}
	return nil
}

// CachedRole returns the throttle's cached role for an email.
func (r *SessionRepository) CachedRole(ctx context.Context, email string) (models.UserRole, error) {
	if r.client == nil {
		return "", appErrors.ErrCacheMiss
	}

	role, err := r.client.Get(ctx, roleLookupKeyPrefix+strings.ToLower(email)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", appErrors.ErrCacheMiss
		}
		return "", fmt.Errorf("redis get role: %w", err)
	}
	return models.UserRole(role), nil
}

// CacheRole stores the role for an email with the configured lookup TTL.
func (r *SessionRepository) CacheRole(ctx context.Context, email string, role models.UserRole) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Set(ctx, roleLookupKeyPrefix+strings.ToLower(email), string(role), r.roleTTL).Err(); err != nil {
		return fmt.Errorf("redis set role: %w", err)
	}
	return nil
}

// IncrementWindow bumps the fixed-window counter for the key and returns the
// new count. The window TTL is attached on the first hit.
func (r *SessionRepository) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis unavailable")
	}

	count, err := r.client.Incr(ctx, rateLimitKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr window: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, rateLimitKeyPrefix+key, window).Err(); err != nil {
			r.logger.Warn("failed to set window expiry", zap.String("key", key), zap.Error(err))
		}
	}
	return count, nil
}

// Close releases the underlying Redis connection if present.
func (r *SessionRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
