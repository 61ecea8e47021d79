package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func setupUserRepo(t *testing.T) (*PostgresUserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresUserRepo(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "name", "mfa_enabled",
		"totp_secret", "totp_confirmed", "created_at", "updated_at",
	})
}

func TestGetByEmail(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(userRows().AddRow("u1", "alice@example.com", "hash", "admin", true, "JBSWY3DPEHPK3PXP", false, fixedNow, fixedNow))

	user, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "admin", user.Role)
	assert.True(t, user.MFAEnabled)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", user.TOTPSecret)
	assert.False(t, user.TOTPConfirmed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_DatabaseError(t *testing.T) {
	repo, mock := setupUserRepo(t)

	boom := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE u.id = $1")).
		WithArgs("u1").
		WillReturnError(boom)

	_, err := repo.GetByID(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestCreate(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM roles WHERE name = $1")).
		WithArgs("user").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r1"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("bob@example.com", "hash", "r1", true, sql.NullString{}, false, fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u2"))

	user := &domain.User{Email: "bob@example.com", PasswordHash: "hash", Role: "user", MFAEnabled: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, fixedNow, user.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UnknownRole(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM roles WHERE name = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	err := repo.Create(context.Background(), &domain.User{Role: "ghost"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateTOTP(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users")).
		WithArgs(sql.NullString{String: "JBSWY3DPEHPK3PXP", Valid: true}, true, fixedNow, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateTOTP(context.Background(), "u1", "JBSWY3DPEHPK3PXP", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTOTP_NotFound(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateTOTP(context.Background(), "missing", "", false)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogSecurityEvent(t *testing.T) {
	repo, mock := setupUserRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(sql.NullString{}, domain.EventLoginFailed, "10.0.0.1", []byte("{}"), fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.LogSecurityEvent(context.Background(), "", domain.EventLoginFailed, "10.0.0.1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
