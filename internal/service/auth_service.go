package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/internal/repository"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

const campusIDMaxAttempts = 5

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByRefreshLookup(ctx context.Context, digest string) (*models.User, error)
	ExistsByCampusID(ctx context.Context, campusID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateRefreshToken(ctx context.Context, userID string, hash, lookup *string, expiresAt *time.Time) error
}

type authSessionRepository interface {
	StoreSession(ctx context.Context, refreshToken string, entry models.SessionEntry) error
	ResolveRefreshToken(ctx context.Context, refreshToken string) (string, error)
	UserSnapshot(ctx context.Context, userID string) (*models.SessionEntry, error)
	ClearSession(ctx context.Context, refreshToken, userID string) error
}

// AuthResult bundles everything a login or refresh produces: the response
// body plus the refresh-token plaintext destined for the cookie.
type AuthResult struct {
	Response     *models.AuthResponse
	RefreshToken string
}

// AuthService provides registration, login, refresh rotation and logout.
type AuthService struct {
	repo      authUserRepository
	sessions  authSessionRepository
	tokens    *TokenService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, sessions authSessionRepository, tokens *TokenService, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, sessions: sessions, tokens: tokens, validator: validate, logger: logger}
}

// Register creates a new user account. Role defaults to student when absent
// and the campus id is generated server side.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	role := req.Role
	if role == "" {
		role = models.RoleStudent
	}
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported role")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	campusID, err := s.generateCampusID(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate campus id")
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		CampusID:     campusID,
		Name:         req.Name,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(passwordHash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	return s.establishSession(ctx, user)
}

// Login authenticates a user by email and password.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	return s.establishSession(ctx, user)
}

// Refresh rotates the refresh token presented in the cookie and issues a new
// access token. Resolution tries the session cache first and falls back to
// the indexed lookup digest, so sessions survive a cache flush.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing refresh token")
	}

	user, err := s.resolveRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if !s.tokens.VerifyRefreshToken(user, refreshToken) {
		// Stored token no longer matches or has expired; clear any cached
		// session so the stale mapping cannot be replayed.
		if cerr := s.sessions.ClearSession(ctx, refreshToken, user.ID); cerr != nil {
			s.logger.Warn("failed to clear stale session", zap.Error(cerr))
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "refresh token expired or revoked")
	}

	// Rotation: invalidate the presented token before issuing its successor.
	if err := s.sessions.ClearSession(ctx, refreshToken, user.ID); err != nil {
		s.logger.Warn("failed to clear rotated session", zap.Error(err))
	}

	return s.establishSession(ctx, user)
}

// Logout revokes the session bound to the presented refresh token. Unknown
// tokens are not an error; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	user, err := s.resolveRefreshToken(ctx, refreshToken)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrForbidden.Code {
			return nil
		}
		return err
	}

	if err := s.repo.UpdateRefreshToken(ctx, user.ID, nil, nil, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	if err := s.sessions.ClearSession(ctx, refreshToken, user.ID); err != nil {
		s.logger.Warn("failed to clear session on logout", zap.Error(err))
	}
	return nil
}

// CurrentUser resolves the authenticated user, preferring the cached
// snapshot over a database read.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.UserInfo, error) {
	if entry, err := s.sessions.UserSnapshot(ctx, userID); err == nil {
		return &models.UserInfo{
			ID:       entry.UserID,
			CampusID: entry.CampusID,
			Name:     entry.Name,
			Email:    entry.Email,
			Role:     entry.Role,
		}, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("user snapshot lookup failed", zap.Error(err))
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	info := user.Public()
	return &info, nil
}

func (s *AuthService) establishSession(ctx context.Context, user *models.User) (*AuthResult, error) {
	accessToken, expiresAt, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, err := s.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	entry := models.SessionEntry{
		UserID:   user.ID,
		CampusID: user.CampusID,
		Name:     user.Name,
		Email:    user.Email,
		Role:     user.Role,
	}
	if err := s.sessions.StoreSession(ctx, refreshToken, entry); err != nil {
		// The database row is authoritative; a cache write failure only
		// costs the fast path on the next refresh.
		s.logger.Warn("failed to cache session", zap.Error(err))
	}

	return &AuthResult{
		Response: &models.AuthResponse{
			AccessToken: accessToken,
			ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
			User:        user.Public(),
			IssuedAt:    time.Now().UTC(),
		},
		RefreshToken: refreshToken,
	}, nil
}

func (s *AuthService) resolveRefreshToken(ctx context.Context, refreshToken string) (*models.User, error) {
	userID, err := s.sessions.ResolveRefreshToken(ctx, refreshToken)
	if err == nil {
		user, ferr := s.repo.FindByID(ctx, userID)
		if ferr == nil {
			return user, nil
		}
		if !errors.Is(ferr, sql.ErrNoRows) {
			return nil, appErrors.Wrap(ferr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
		}
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("refresh token cache lookup failed", zap.Error(err))
	}

	user, err := s.repo.FindByRefreshLookup(ctx, RefreshLookupDigest(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "refresh token not recognized")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve refresh token")
	}
	return user, nil
}

func (s *AuthService) generateCampusID(ctx context.Context) (string, error) {
	year := time.Now().UTC().Year()
	for attempt := 0; attempt < campusIDMaxAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return "", fmt.Errorf("generate campus id: %w", err)
		}
		candidate := fmt.Sprintf("%d%04d", year, n.Int64())
		exists, err := s.repo.ExistsByCampusID(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("campus id space exhausted after %d attempts", campusIDMaxAttempts)
}
