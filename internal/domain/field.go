package domain

import (
	"errors"
)

const (
	// CodeFieldName is the request parameter carrying the user's TOTP code.
	CodeFieldName = "sentinel-totp-code"
	// CodeFieldType identifies the authentication code field to the form host.
	CodeFieldType = "SENTINEL_TOTP_CODE"

	// StateFieldName is the request parameter carrying the challenge state.
	StateFieldName = "sentinel-mfa-state"
	// StateFieldType identifies the invisible state field.
	StateFieldType = "SENTINEL_MFA_STATE"
)

// Translation keys sent along with an InsufficientCredentialsError.
const (
	MsgEnrollRequired     = "TOTP.INFO_ENROLL_REQUIRED"
	MsgCodeRequired       = "TOTP.INFO_CODE_REQUIRED"
	MsgVerificationFailed = "TOTP.INFO_VERIFICATION_FAILED"
	MsgCodeReused         = "TOTP.INFO_CODE_REUSED"
	MsgStateExpired       = "TOTP.INFO_STATE_EXPIRED"
	MsgTooManyAttempts    = "TOTP.INFO_TOO_MANY_ATTEMPTS"
)

// ErrMFARequired matches every InsufficientCredentialsError.
var ErrMFARequired = errors.New("mfa_challenge_required")

// Field is the header shared by every field descriptor rendered by a form host.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CodeField describes the field prompting for the code generated by the
// user's authenticator. The key details are only populated while the user
// is enrolling; otherwise the field only asks for the code.
type CodeField struct {
	Field

	// Secret is the base32 TOTP key, if exposed.
	Secret string `json:"secret,omitempty"`
	// KeyURI is the otpauth:// URI of the key, if exposed.
	KeyURI string `json:"keyUri,omitempty"`
	// QRCode is a data URI of a PNG QR code encoding KeyURI.
	QRCode string `json:"qrCode,omitempty"`

	Username string `json:"username,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
	Digits   int    `json:"digits,omitempty"`
	Period   uint64 `json:"period,omitempty"`
	// Mode is the HMAC algorithm name, e.g. "SHA1".
	Mode string `json:"mode,omitempty"`
}

// NewCodeField returns a code field that exposes no key.
func NewCodeField() CodeField {
	return CodeField{Field: Field{Name: CodeFieldName, Type: CodeFieldType}}
}

// KeyExposed reports whether the field carries key material.
func (f CodeField) KeyExposed() bool {
	return f.Secret != ""
}

// StateField is the invisible field that lets the client and the server pick
// the conversation back up at the code step.
type StateField struct {
	Field
	State string `json:"state"`
}

// NewStateField wraps a challenge ID.
func NewStateField(state string) StateField {
	return StateField{
		Field: Field{Name: StateFieldName, Type: StateFieldType},
		State: state,
	}
}

// ExpectedCredentials lists the fields a form host must render before
// authentication can continue.
type ExpectedCredentials struct {
	Code  CodeField  `json:"code"`
	State StateField `json:"state"`
}

// InsufficientCredentialsError is returned when login cannot complete until
// the user submits the Expected fields.
type InsufficientCredentialsError struct {
	Message        string
	TranslationKey string
	Expected       ExpectedCredentials
}

func (e *InsufficientCredentialsError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrMFARequired) hold.
func (e *InsufficientCredentialsError) Is(target error) bool {
	return target == ErrMFARequired
}
