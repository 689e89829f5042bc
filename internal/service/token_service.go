package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushub/institute-api/internal/models"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

type tokenUserRepository interface {
	UpdateRefreshToken(ctx context.Context, userID string, hash, lookup *string, expiresAt *time.Time) error
}

// TokenConfig defines signing and lifetime parameters.
type TokenConfig struct {
	Secret            string
	AccessExpiry      time.Duration
	RefreshExpiry     time.Duration
	Issuer            string
}

// TokenService mints access tokens and rotates opaque refresh tokens. Access
// tokens are stateless HS256 JWTs; refresh tokens are random values of which
// only a bcrypt hash (verification) and a SHA-256 digest (lookup) are ever
// persisted.
type TokenService struct {
	repo   tokenUserRepository
	config TokenConfig
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(repo tokenUserRepository, config TokenConfig) *TokenService {
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = time.Hour
	}
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &TokenService{repo: repo, config: config}
}

// AccessExpiry exposes the configured access-token lifetime.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.config.AccessExpiry
}

// RefreshExpiry exposes the configured refresh-token lifetime.
func (s *TokenService) RefreshExpiry() time.Duration {
	return s.config.RefreshExpiry
}

// IssueAccessToken signs a short-lived JWT carrying the user id and role.
func (s *TokenService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessExpiry)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefreshToken generates a fresh opaque token, persists its bcrypt hash,
// lookup digest and absolute expiry on the user row, and returns the
// plaintext. The plaintext is available only to the caller; it is never
// stored anywhere.
func (s *TokenService) IssueRefreshToken(ctx context.Context, user *models.User) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}
	hash := string(hashed)
	lookup := RefreshLookupDigest(plaintext)
	expiresAt := time.Now().UTC().Add(s.config.RefreshExpiry)

	if err := s.repo.UpdateRefreshToken(ctx, user.ID, &hash, &lookup, &expiresAt); err != nil {
		return "", err
	}

	user.RefreshTokenHash = &hash
	user.RefreshTokenLookup = &lookup
	user.RefreshTokenExpiresAt = &expiresAt

	return plaintext, nil
}

// VerifyRefreshToken reports whether the candidate matches the user's stored
// refresh token and the stored expiry has not passed.
func (s *TokenService) VerifyRefreshToken(user *models.User, candidate string) bool {
	if user.RefreshTokenHash == nil || user.RefreshTokenExpiresAt == nil {
		return false
	}
	if time.Now().UTC().After(*user.RefreshTokenExpiresAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*user.RefreshTokenHash), []byte(candidate)) == nil
}

// ValidateAccessToken parses and validates an access token returning claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// RefreshLookupDigest computes the deterministic digest stored alongside the
// bcrypt hash so refresh tokens can be found by value on cache misses.
func RefreshLookupDigest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
