package domain

import (
	"context"
	"time"
)

// User represents the central identity entity of the system.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`    // Never expose the password hash in JSON
	Role          string    `json:"role"` // RBAC Role (admin, user, etc.)
	MFAEnabled    bool      `json:"mfa_enabled"`
	TOTPSecret    string    `json:"-"` // base32 TOTP key
	TOTPConfirmed bool      `json:"totp_confirmed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AuthResponse defines the payload returned after a successful login.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Challenge is the server side of a pending second factor. Its ID travels
// to the client inside the StateField.
type Challenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Security event types written to the audit log.
const (
	EventLoginFailed  = "LOGIN_FAILED"
	EventLoginSuccess = "LOGIN_SUCCESS"
	EventMFAFailed    = "MFA_FAILED"
	EventMFAReplay    = "MFA_REPLAY"
	EventMFAEnrolled  = "MFA_ENROLLED"
	EventLogout       = "LOGOUT"
)

// UserRepository defines the contract for user data persistence.
// This interface will be implemented in the 'internal/repository' package.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error

	// UpdateTOTP stores the user's TOTP key and its enrollment state.
	UpdateTOTP(ctx context.Context, userID, secret string, confirmed bool) error

	// LogSecurityEvent is used for the Audit Logs requirement
	LogSecurityEvent(ctx context.Context, userID, eventType, ip string, metadata map[string]interface{}) error
}

// TokenRepository defines how we handle opaque refresh tokens (usually in Redis).
type TokenRepository interface {
	StoreRefreshToken(ctx context.Context, userID string, token string, ttl time.Duration) error
	GetUserIDByRefreshToken(ctx context.Context, token string) (string, error)
	DeleteRefreshToken(ctx context.Context, token string) error
}

// ChallengeRepository keeps pending MFA challenges between the password and
// the code step.
type ChallengeRepository interface {
	StoreChallenge(ctx context.Context, ch *Challenge, ttl time.Duration) error
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	DeleteChallenge(ctx context.Context, id string) error
	// CountFailedAttempt records one wrong code for the challenge and returns
	// the number recorded so far.
	CountFailedAttempt(ctx context.Context, id string, ttl time.Duration) (int64, error)
}

// CodeUsageRepository tracks TOTP codes that were already accepted so that a
// code cannot be replayed while it is still valid.
type CodeUsageRepository interface {
	// MarkCodeUsed records the code and reports false if it was already recorded.
	MarkCodeUsed(ctx context.Context, userID, code string, ttl time.Duration) (bool, error)
}
