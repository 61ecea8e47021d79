package security

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
)

// ErrInvalidTOTPSecret is returned when a stored secret is not valid base32.
var ErrInvalidTOTPSecret = errors.New("totp secret is not valid base32")

// Google Authenticator requires Base32 without padding.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// qrSize is the edge length in pixels of generated QR codes.
const qrSize = 200

// TOTPOptions configures key generation and validation.
type TOTPOptions struct {
	Issuer     string
	Period     uint
	Skew       uint
	Digits     otp.Digits
	Algorithm  otp.Algorithm
	SecretSize uint
}

// TOTP generates, exposes and validates TOTP keys.
type TOTP struct {
	opts TOTPOptions
}

// NewTOTP applies defaults: 6 digits unless 8 is requested, a 30 second
// period, a skew of one period, SHA1 and 20 byte secrets.
func NewTOTP(opts TOTPOptions) *TOTP {
	if opts.Issuer == "" {
		opts.Issuer = "SentinelAuth"
	}
	if opts.Digits != otp.DigitsSix && opts.Digits != otp.DigitsEight {
		opts.Digits = otp.DigitsSix
	}
	if opts.Period == 0 {
		opts.Period = 30
	}
	if opts.Skew == 0 {
		opts.Skew = 1
	}
	if opts.SecretSize == 0 {
		opts.SecretSize = 20 // RFC 4226/6238 recommendation
	}
	return &TOTP{opts: opts}
}

// ValidityWindow is how long a single code keeps being accepted.
func (t *TOTP) ValidityWindow() time.Duration {
	return time.Duration(t.opts.Period*(2*t.opts.Skew+1)) * time.Second
}

// GenerateKey creates a fresh, unconfirmed key for the given account.
func (t *TOTP) GenerateKey(account string) (domain.TOTPKey, error) {
	key, err := totp.Generate(t.generateOpts(account, nil))
	if err != nil {
		return domain.TOTPKey{}, fmt.Errorf("failed to generate totp key: %w", err)
	}
	secret, err := b32.DecodeString(key.Secret())
	if err != nil {
		return domain.TOTPKey{}, fmt.Errorf("failed to decode generated secret: %w", err)
	}
	return domain.TOTPKey{Username: account, Secret: secret}, nil
}

// DecodeKey parses a stored base32 secret.
func DecodeKey(account, secret string, confirmed bool) (domain.TOTPKey, error) {
	normalized := strings.TrimRight(strings.ToUpper(strings.TrimSpace(secret)), "=")
	raw, err := b32.DecodeString(normalized)
	if err != nil || len(raw) == 0 {
		return domain.TOTPKey{}, ErrInvalidTOTPSecret
	}
	return domain.TOTPKey{Username: account, Secret: raw, Confirmed: confirmed}, nil
}

// EncodeSecret returns the base32 form of a key, as stored and displayed.
func EncodeSecret(key domain.TOTPKey) string {
	return b32.EncodeToString(key.Secret)
}

// OTPKey builds the otpauth representation of an existing key.
func (t *TOTP) OTPKey(key domain.TOTPKey) (*otp.Key, error) {
	k, err := totp.Generate(t.generateOpts(key.Username, key.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to build totp key: %w", err)
	}
	return k, nil
}

// ExposeKey returns a code field carrying every detail of the key so the
// user can enroll it in an authenticator application.
func (t *TOTP) ExposeKey(key domain.TOTPKey) (domain.CodeField, error) {
	k, err := t.OTPKey(key)
	if err != nil {
		return domain.CodeField{}, err
	}
	qr, err := QRCodeDataURI(k)
	if err != nil {
		return domain.CodeField{}, err
	}

	field := domain.NewCodeField()
	field.Secret = k.Secret()
	field.KeyURI = k.URL()
	field.QRCode = qr
	field.Username = k.AccountName()
	field.Issuer = k.Issuer()
	field.Digits = k.Digits().Length()
	field.Period = k.Period()
	field.Mode = k.Algorithm().String()
	return field, nil
}

// Validate checks if the provided code is valid for the given secret at the given time.
func (t *TOTP) Validate(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    t.opts.Period,
		Skew:      t.opts.Skew,
		Digits:    t.opts.Digits,
		Algorithm: t.opts.Algorithm,
	})
	return ok && err == nil
}

// GenerateCode returns the code for the given secret and time.
func (t *TOTP) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), totp.ValidateOpts{
		Period:    t.opts.Period,
		Digits:    t.opts.Digits,
		Algorithm: t.opts.Algorithm,
	})
}

func (t *TOTP) generateOpts(account string, secret []byte) totp.GenerateOpts {
	return totp.GenerateOpts{
		Issuer:      t.opts.Issuer,
		AccountName: account,
		Period:      t.opts.Period,
		SecretSize:  t.opts.SecretSize,
		Secret:      secret,
		Digits:      t.opts.Digits,
		Algorithm:   t.opts.Algorithm,
	}
}

// QRCodeDataURI renders the key URI as a PNG data URI for <img> tags.
func QRCodeDataURI(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
