package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushub/institute-api/internal/models"
)

func newUserMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "campus_id", "name", "email", "password_hash", "role", "refresh_token_hash", "refresh_token_lookup", "refresh_token_expires_at", "created_at", "updated_at"})
}

func TestUserRepositoryFindByEmailLowercases(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := userRows().AddRow("u1", "20260001", "Asha", "asha@example.com", "hash", "student", nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM users WHERE email = \\$1").
		WithArgs("asha@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "Asha@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByRefreshLookup(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := userRows().AddRow("u1", "20260001", "Asha", "asha@example.com", "hash", "student", "bc", "digest", time.Now().Add(time.Hour), time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM users WHERE refresh_token_lookup = \\$1").
		WithArgs("digest").
		WillReturnRows(rows)

	user, err := repo.FindByRefreshLookup(context.Background(), "digest")
	require.NoError(t, err)
	require.NotNil(t, user.RefreshTokenLookup)
	assert.Equal(t, "digest", *user.RefreshTokenLookup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{CampusID: "20260001", Name: "Asha", Email: "Asha@Example.com", PasswordHash: "hash", Role: models.RoleStudent}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "asha@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Email: "dup@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateRefreshTokenClears(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET refresh_token_hash = $2, refresh_token_lookup = $3, refresh_token_expires_at = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("u1", nil, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateRefreshToken(context.Background(), "u1", nil, nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryExistsByCampusID(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT 1 FROM users WHERE campus_id = \\$1").
		WithArgs("20260001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM users WHERE campus_id = \\$1").
		WithArgs("20269999").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	taken, err := repo.ExistsByCampusID(context.Background(), "20260001")
	require.NoError(t, err)
	assert.True(t, taken)

	free, err := repo.ExistsByCampusID(context.Background(), "20269999")
	require.NoError(t, err)
	assert.False(t, free)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCountByIDsAndRole(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users WHERE role = \\$1 AND id IN").
		WithArgs("teacher", "t1", "t2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountByIDsAndRole(context.Background(), []string{"t1", "t2"}, models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCountByIDsAndRoleEmpty(t *testing.T) {
	db, _, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	count, err := repo.CountByIDsAndRole(context.Background(), nil, models.RoleStudent)
	require.NoError(t, err)
	assert.Zero(t, count)
}
