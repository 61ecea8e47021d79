package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
	"github.com/FilipeAphrody/sentinel-mfa/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidMFACode     = errors.New("invalid mfa code")
	ErrCodeAlreadyUsed    = errors.New("mfa code already used")
	ErrChallengeExpired   = errors.New("mfa challenge expired or unknown")
	ErrInvalidTOTPKey     = errors.New("stored totp key is invalid")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrTooManyAttempts    = errors.New("too many invalid mfa codes")
)

// Options holds the token lifetimes and issuer used by the use case.
type Options struct {
	JWTSecret    string
	JWTIssuer    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ChallengeTTL time.Duration
	// MaxCodeAttempts is the number of wrong codes that closes a challenge.
	MaxCodeAttempts int
}

func (o *Options) applyDefaults() {
	if o.JWTIssuer == "" {
		o.JWTIssuer = "sentinel-auth"
	}
	if o.AccessTTL == 0 {
		o.AccessTTL = 15 * time.Minute
	}
	if o.RefreshTTL == 0 {
		o.RefreshTTL = 24 * time.Hour
	}
	if o.ChallengeTTL == 0 {
		o.ChallengeTTL = 5 * time.Minute
	}
	if o.MaxCodeAttempts <= 0 {
		o.MaxCodeAttempts = 5
	}
}

type AuthUsecase struct {
	userRepo      domain.UserRepository
	tokenRepo     domain.TokenRepository
	challengeRepo domain.ChallengeRepository
	codeRepo      domain.CodeUsageRepository
	totp          *security.TOTP
	opts          Options
	log           *zap.Logger
	now           func() time.Time
}

// Repositories groups the storage the use case depends on.
type Repositories struct {
	Users      domain.UserRepository
	Tokens     domain.TokenRepository
	Challenges domain.ChallengeRepository
	Codes      domain.CodeUsageRepository
}

func NewAuthUsecase(repos Repositories, totp *security.TOTP, opts Options, log *zap.Logger) *AuthUsecase {
	opts.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthUsecase{
		userRepo:      repos.Users,
		tokenRepo:     repos.Tokens,
		challengeRepo: repos.Challenges,
		codeRepo:      repos.Codes,
		totp:          totp,
		opts:          opts,
		log:           log,
		now:           time.Now,
	}
}

// Login handles the first step of authentication: validating credentials.
// Users with MFA enabled get a *domain.InsufficientCredentialsError listing
// the code field to render, which exposes the key while they are enrolling.
func (u *AuthUsecase) Login(ctx context.Context, email, password string) (*domain.AuthResponse, error) {
	user, err := u.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// 1. Verify Password using Argon2id
	match, err := security.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		u.audit(ctx, user.ID, domain.EventLoginFailed)
		return nil, ErrInvalidCredentials
	}

	// 2. If no MFA, generate the session immediately
	if !user.MFAEnabled {
		return u.generateSession(ctx, user)
	}

	// 3. Otherwise a code is required; make sure the user has a key first.
	key, err := u.getKey(ctx, user)
	if err != nil {
		return nil, err
	}

	field, err := u.codeField(key)
	if err != nil {
		return nil, err
	}

	ch := &domain.Challenge{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: u.now().UTC(),
	}
	if err := u.challengeRepo.StoreChallenge(ctx, ch, u.opts.ChallengeTTL); err != nil {
		return nil, err
	}

	expected := domain.ExpectedCredentials{Code: field, State: domain.NewStateField(ch.ID)}
	if !key.Confirmed {
		return nil, &domain.InsufficientCredentialsError{
			Message:        "TOTP enrollment must be completed before authentication can continue",
			TranslationKey: domain.MsgEnrollRequired,
			Expected:       expected,
		}
	}
	return nil, &domain.InsufficientCredentialsError{
		Message:        "A TOTP authentication code is required before login can continue",
		TranslationKey: domain.MsgCodeRequired,
		Expected:       expected,
	}
}

// CodeField rebuilds the code field of a pending challenge.
func (u *AuthUsecase) CodeField(ctx context.Context, challengeID string) (domain.CodeField, error) {
	_, user, err := u.loadChallenge(ctx, challengeID)
	if err != nil {
		return domain.CodeField{}, err
	}
	key, err := u.getKey(ctx, user)
	if err != nil {
		return domain.CodeField{}, err
	}
	return u.codeField(key)
}

// VerifyMFA handles the second step: validating the TOTP code. The first
// valid code confirms a key that is still being enrolled.
func (u *AuthUsecase) VerifyMFA(ctx context.Context, challengeID, code string) (*domain.AuthResponse, error) {
	ch, user, err := u.loadChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	// Validate TOTP Code
	if !u.totp.Validate(code, user.TOTPSecret, u.now()) {
		u.audit(ctx, user.ID, domain.EventMFAFailed)
		return nil, u.failedAttempt(ctx, ch)
	}

	fresh, err := u.codeRepo.MarkCodeUsed(ctx, user.ID, code, u.totp.ValidityWindow())
	if err != nil {
		return nil, err
	}
	if !fresh {
		u.audit(ctx, user.ID, domain.EventMFAReplay)
		return nil, ErrCodeAlreadyUsed
	}

	if !user.TOTPConfirmed {
		if err := u.userRepo.UpdateTOTP(ctx, user.ID, user.TOTPSecret, true); err != nil {
			return nil, fmt.Errorf("failed to confirm totp key: %w", err)
		}
		user.TOTPConfirmed = true
		u.audit(ctx, user.ID, domain.EventMFAEnrolled)
	}

	if err := u.challengeRepo.DeleteChallenge(ctx, ch.ID); err != nil {
		u.log.Warn("failed to delete consumed challenge", zap.String("challenge", ch.ID), zap.Error(err))
	}

	return u.generateSession(ctx, user)
}

// Refresh rotates a refresh token and issues a new session.
func (u *AuthUsecase) Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error) {
	userID, err := u.tokenRepo.GetUserIDByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	if err := u.tokenRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, err
	}
	return u.generateSession(ctx, user)
}

// Logout revokes a refresh token.
func (u *AuthUsecase) Logout(ctx context.Context, refreshToken string) error {
	userID, err := u.tokenRepo.GetUserIDByRefreshToken(ctx, refreshToken)
	if err != nil {
		return ErrInvalidRefresh
	}
	if err := u.tokenRepo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return err
	}
	u.audit(ctx, userID, domain.EventLogout)
	return nil
}

func (u *AuthUsecase) loadChallenge(ctx context.Context, challengeID string) (*domain.Challenge, *domain.User, error) {
	ch, err := u.challengeRepo.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, nil, ErrChallengeExpired
	}
	user, err := u.userRepo.GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if user.TOTPSecret == "" {
		return nil, nil, ErrChallengeExpired
	}
	return ch, user, nil
}

// failedAttempt counts a wrong code against ch and closes the challenge once
// MaxCodeAttempts is reached.
func (u *AuthUsecase) failedAttempt(ctx context.Context, ch *domain.Challenge) error {
	n, err := u.challengeRepo.CountFailedAttempt(ctx, ch.ID, u.opts.ChallengeTTL)
	if err != nil {
		return err
	}
	if n < int64(u.opts.MaxCodeAttempts) {
		return ErrInvalidMFACode
	}
	if err := u.challengeRepo.DeleteChallenge(ctx, ch.ID); err != nil {
		return err
	}
	u.log.Warn("challenge closed after too many invalid codes", zap.String("user_id", ch.UserID))
	return ErrTooManyAttempts
}

// getKey returns the user's key, generating and storing one if none exists.
func (u *AuthUsecase) getKey(ctx context.Context, user *domain.User) (domain.TOTPKey, error) {
	if user.TOTPSecret == "" {
		key, err := u.totp.GenerateKey(user.Email)
		if err != nil {
			return domain.TOTPKey{}, err
		}
		secret := security.EncodeSecret(key)
		if err := u.userRepo.UpdateTOTP(ctx, user.ID, secret, false); err != nil {
			return domain.TOTPKey{}, fmt.Errorf("failed to store totp key: %w", err)
		}
		user.TOTPSecret = secret
		user.TOTPConfirmed = false
		u.log.Info("generated totp key", zap.String("user_id", user.ID))
		return key, nil
	}

	key, err := security.DecodeKey(user.Email, user.TOTPSecret, user.TOTPConfirmed)
	if err != nil {
		u.log.Warn("totp key of user is not valid base32", zap.String("user_id", user.ID))
		return domain.TOTPKey{}, ErrInvalidTOTPKey
	}
	return key, nil
}

// codeField exposes the key only until it has been confirmed.
func (u *AuthUsecase) codeField(key domain.TOTPKey) (domain.CodeField, error) {
	if key.Confirmed {
		return domain.NewCodeField(), nil
	}
	return u.totp.ExposeKey(key)
}

func (u *AuthUsecase) audit(ctx context.Context, userID, event string) {
	if err := u.userRepo.LogSecurityEvent(ctx, userID, event, "", nil); err != nil {
		u.log.Warn("failed to write audit event", zap.String("event", event), zap.Error(err))
	}
}

// generateSession creates the JWT Access Token and the Opaque Refresh Token.
func (u *AuthUsecase) generateSession(ctx context.Context, user *domain.User) (*domain.AuthResponse, error) {
	// 1. Generate Access Token (JWT)
	accessToken, err := security.GenerateAccessToken(user.ID, user.Role, u.opts.JWTIssuer, u.opts.JWTSecret, u.opts.AccessTTL)
	if err != nil {
		return nil, err
	}

	// 2. Generate Refresh Token (Opaque)
	refreshToken, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}

	// 3. Store Refresh Token in Redis
	if err := u.tokenRepo.StoreRefreshToken(ctx, user.ID, refreshToken, u.opts.RefreshTTL); err != nil {
		return nil, err
	}

	// 4. Log successful login
	u.audit(ctx, user.ID, domain.EventLoginSuccess)

	return &domain.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(u.opts.AccessTTL / time.Second),
	}, nil
}
