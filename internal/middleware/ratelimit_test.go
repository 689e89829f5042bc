package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/pkg/config"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

type fakeLimiterStore struct {
	counts     map[string]int64
	roles      map[string]models.UserRole
	failCount  bool
	lastWindow time.Duration
}

func newFakeLimiterStore() *fakeLimiterStore {
	return &fakeLimiterStore{counts: make(map[string]int64), roles: make(map[string]models.UserRole)}
}

func (f *fakeLimiterStore) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.failCount {
		return 0, fmt.Errorf("store down")
	}
	f.counts[key]++
	f.lastWindow = window
	return f.counts[key], nil
}

func (f *fakeLimiterStore) CachedRole(ctx context.Context, email string) (models.UserRole, error) {
	if role, ok := f.roles[email]; ok {
		return role, nil
	}
	return "", appErrors.ErrCacheMiss
}

func (f *fakeLimiterStore) CacheRole(ctx context.Context, email string, role models.UserRole) error {
	f.roles[email] = role
	return nil
}

type fakeRoleRepo struct {
	roles map[string]models.UserRole
}

func (f *fakeRoleRepo) RoleByEmail(ctx context.Context, email string) (models.UserRole, error) {
	if role, ok := f.roles[email]; ok {
		return role, nil
	}
	return "", errors.New("no such user")
}

func limiterConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		StrictWindow:   15 * time.Minute,
		StrictMax:      2,
		ModerateWindow: time.Hour,
		ModerateMax:    5,
	}
}

func newLimiterRouter(store *fakeLimiterStore, users *fakeRoleRepo, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(store, users, nil, limiterConfig(), zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	})
	r.Use(rl.Limit())
	r.POST("/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/courses", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func loginRequest(email string) *http.Request {
	body := fmt.Sprintf(`{"email":%q,"password":"secret123"}`, email)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRateLimiterStrictTierBlocks(t *testing.T) {
	store := newFakeLimiterStore()
	users := &fakeRoleRepo{roles: map[string]models.UserRole{}}
	r := newLimiterRouter(store, users, nil)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterAdminGetsModerateTier(t *testing.T) {
	store := newFakeLimiterStore()
	users := &fakeRoleRepo{roles: map[string]models.UserRole{}}
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	r := newLimiterRouter(store, users, claims)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, time.Hour, store.lastWindow)
	assert.Contains(t, store.counts, "moderate:admin-1")
}

func TestRateLimiterResolvesRoleFromBodyEmail(t *testing.T) {
	store := newFakeLimiterStore()
	users := &fakeRoleRepo{roles: map[string]models.UserRole{"admin@campus.edu": models.RoleAdmin}}
	r := newLimiterRouter(store, users, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, loginRequest("Admin@Campus.edu"))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, time.Hour, store.lastWindow)
	assert.Equal(t, models.RoleAdmin, store.roles["admin@campus.edu"])
}

func TestRateLimiterUnknownEmailStaysStrict(t *testing.T) {
	store := newFakeLimiterStore()
	users := &fakeRoleRepo{roles: map[string]models.UserRole{}}
	r := newLimiterRouter(store, users, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, loginRequest("nobody@campus.edu"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15*time.Minute, store.lastWindow)
}

func TestRateLimiterPreservesRequestBody(t *testing.T) {
	store := newFakeLimiterStore()
	users := &fakeRoleRepo{roles: map[string]models.UserRole{}}

	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(store, users, nil, limiterConfig(), zap.NewNop())
	r := gin.New()
	r.Use(rl.Limit())

	var received []byte
	r.POST("/auth/login", func(c *gin.Context) {
		received, _ = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, loginRequest("someone@campus.edu"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(received, []byte("someone@campus.edu")))
}

func TestRateLimiterFailsOpenWhenStoreDown(t *testing.T) {
	store := newFakeLimiterStore()
	store.failCount = true
	users := &fakeRoleRepo{roles: map[string]models.UserRole{}}
	r := newLimiterRouter(store, users, nil)

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimiterDisabledBypasses(t *testing.T) {
	store := newFakeLimiterStore()
	users := &fakeRoleRepo{roles: map[string]models.UserRole{}}

	gin.SetMode(gin.TestMode)
	cfg := limiterConfig()
	cfg.Enabled = false
	rl := NewRateLimiter(store, users, nil, cfg, zap.NewNop())
	r := gin.New()
	r.Use(rl.Limit())
	r.GET("/courses", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/courses", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, store.counts)
}
