package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// userColumns is shared by every user lookup; roles are joined to avoid N+1 queries.
const userColumns = `
		SELECT u.id, u.email, u.password_hash, r.name, u.mfa_enabled,
		       COALESCE(u.totp_secret, ''), u.totp_confirmed, u.created_at, u.updated_at
		FROM users u
		JOIN roles r ON u.role_id = r.id
`

// PostgresUserRepo implements domain.UserRepository using PostgreSQL.
type PostgresUserRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresUserRepo creates a new repository instance.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, now: time.Now}
}

// GetByEmail retrieves a user by their email address.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, userColumns+"WHERE u.email = $1", email)
}

// GetByID retrieves a user by their UUID.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, userColumns+"WHERE u.id = $1", id)
}

func (r *PostgresUserRepo) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.MFAEnabled,
		&user.TOTPSecret,
		&user.TOTPConfirmed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return user, nil
}

// Create inserts a new user into the database.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	// 1. Resolve Role Name to ID
	var roleID string
	err := r.db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = $1", user.Role).Scan(&roleID)
	if err != nil {
		return fmt.Errorf("role '%s' not found: %w", user.Role, err)
	}

	// 2. Insert User
	query := `
		INSERT INTO users (email, password_hash, role_id, mfa_enabled, totp_secret, totp_confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt

	err = r.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		roleID,
		user.MFAEnabled,
		nullString(user.TOTPSecret),
		user.TOTPConfirmed,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateTOTP stores the user's TOTP key and whether it has been confirmed.
func (r *PostgresUserRepo) UpdateTOTP(ctx context.Context, userID, secret string, confirmed bool) error {
	query := `
		UPDATE users
		SET totp_secret = $1, totp_confirmed = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, nullString(secret), confirmed, r.now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update totp key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update totp key: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// LogSecurityEvent inserts an immutable record into the audit_logs table.
func (r *PostgresUserRepo) LogSecurityEvent(ctx context.Context, userID, eventType, ip string, metadata map[string]interface{}) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil || metadata == nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (user_id, event_type, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	// The schema allows user_id to be NULL (e.g. anonymous failed login).
	_, err = r.db.ExecContext(ctx, query, nullString(userID), eventType, ip, metaJSON, r.now())
	return err
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
