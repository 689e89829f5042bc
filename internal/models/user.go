package models

import "time"

// UserRole represents the available roles.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// Valid returns true when the role is a supported value.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table. The refresh
// token is never stored in plaintext: RefreshTokenHash is the bcrypt hash used
// for verification and RefreshTokenLookup is a deterministic SHA-256 digest
// used only for indexed lookup on cache misses.
type User struct {
	ID                    string     `db:"id" json:"id"`
	CampusID              string     `db:"campus_id" json:"campus_id"`
	Name                  string     `db:"name" json:"name"`
	Email                 string     `db:"email" json:"email"`
	PasswordHash          string     `db:"password_hash" json:"-"`
	Role                  UserRole   `db:"role" json:"role"`
	RefreshTokenHash      *string    `db:"refresh_token_hash" json:"-"`
	RefreshTokenLookup    *string    `db:"refresh_token_lookup" json:"-"`
	RefreshTokenExpiresAt *time.Time `db:"refresh_token_expires_at" json:"-"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Public returns the externally visible fields for auth responses.
func (u *User) Public() UserInfo {
	return UserInfo{
		ID:       u.ID,
		CampusID: u.CampusID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
