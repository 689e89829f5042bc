package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campushub/institute-api/internal/models"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = fmt.Errorf("duplicate record")

const userColumns = `id, campus_id, name, email, password_hash, role, refresh_token_hash, refresh_token_lookup, refresh_token_expires_at, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new repository instance.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// List returns users matching filters with pagination metadata.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	base := "FROM users WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, string(*filter.Role))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d OR campus_id LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"email":      true,
		"campus_id":  true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", userColumns, base, sortBy, order, size, offset)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// FindByID returns a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns a user by email (emails are stored lower-case).
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByRefreshLookup returns the user holding the given refresh-token
// lookup digest. Used as the cache-miss fallback during refresh/logout.
func (r *UserRepository) FindByRefreshLookup(ctx context.Context, digest string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE refresh_token_lookup = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, digest); err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByCampusID checks whether a campus id is already taken.
func (r *UserRepository) ExistsByCampusID(ctx context.Context, campusID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM users WHERE campus_id = $1 LIMIT 1`, campusID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check campus id: %w", err)
	}
	return true, nil
}

// Create persists a new user. A unique-constraint violation on email or
// campus id is reported as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(user.Email)

	const query = `INSERT INTO users (id, campus_id, name, email, password_hash, role, created_at, updated_at)
		VALUES (:id, :campus_id, :name, :email, :password_hash, :role, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateRefreshToken stores the rotated refresh-token hash, lookup digest and
// expiry for the user. All three are nil on logout.
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, userID string, hash, lookup *string, expiresAt *time.Time) error {
	const query = `UPDATE users SET refresh_token_hash = $2, refresh_token_lookup = $3, refresh_token_expires_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, hash, lookup, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	return nil
}

// RoleByEmail resolves only the role for the given email.
func (r *UserRepository) RoleByEmail(ctx context.Context, email string) (models.UserRole, error) {
	var role models.UserRole
	if err := r.db.GetContext(ctx, &role, `SELECT role FROM users WHERE email = $1 LIMIT 1`, strings.ToLower(email)); err != nil {
		return "", err
	}
	return role, nil
}

// CountByIDsAndRole returns how many of the given ids belong to users with
// the required role. Callers compare against len(ids) to validate references.
func (r *UserRepository) CountByIDsAndRole(ctx context.Context, ids []string, role models.UserRole) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM users WHERE role = ? AND id IN (?)`, string(role), ids)
	if err != nil {
		return 0, fmt.Errorf("build role count query: %w", err)
	}
	query = r.db.Rebind(query)
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
