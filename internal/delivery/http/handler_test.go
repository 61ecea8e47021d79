package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
	"github.com/FilipeAphrody/sentinel-mfa/internal/usecase"
	"github.com/FilipeAphrody/sentinel-mfa/pkg/security"
)

const testSecret = "test-jwt-secret"

type fakeAuth struct {
	loginResp *domain.AuthResponse
	loginErr  error

	field    domain.CodeField
	fieldErr error

	verifyResp *domain.AuthResponse
	verifyErr  error
	gotState   string
	gotCode    string

	refreshResp *domain.AuthResponse
	refreshErr  error
	logoutErr   error
}

func (f *fakeAuth) Login(context.Context, string, string) (*domain.AuthResponse, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) CodeField(context.Context, string) (domain.CodeField, error) {
	return f.field, f.fieldErr
}

func (f *fakeAuth) VerifyMFA(_ context.Context, state, code string) (*domain.AuthResponse, error) {
	f.gotState, f.gotCode = state, code
	return f.verifyResp, f.verifyErr
}

func (f *fakeAuth) Refresh(context.Context, string) (*domain.AuthResponse, error) {
	return f.refreshResp, f.refreshErr
}

func (f *fakeAuth) Logout(context.Context, string) error {
	return f.logoutErr
}

func newTestServer(t *testing.T, svc AuthService) *echo.Echo {
	t.Helper()

	e := echo.New()
	v, err := NewValidator()
	require.NoError(t, err)
	e.Validator = v
	r, err := NewRenderer()
	require.NoError(t, err)
	e.Renderer = r

	g := e.Group("/v1")
	NewAuthHandler(g, svc, zap.NewNop())
	NewMFAHandler(g, svc, zap.NewNop())
	NewAccountHandler(g, testSecret)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func enrollingField() domain.CodeField {
	f := domain.NewCodeField()
	f.Secret = "JBSWY3DPEHPK3PXP"
	f.KeyURI = "otpauth://totp/SentinelAuth:alice@example.com?secret=JBSWY3DPEHPK3PXP&issuer=SentinelAuth"
	f.QRCode = "data:image/png;base64,iVBORw0KGgo="
	f.Username = "alice@example.com"
	f.Issuer = "SentinelAuth"
	f.Digits = 6
	f.Period = 30
	f.Mode = "SHA1"
	return f
}

func TestLogin(t *testing.T) {
	session := &domain.AuthResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 900}
	insufficient := &domain.InsufficientCredentialsError{
		Message:        "A TOTP authentication code is required before login can continue",
		TranslationKey: domain.MsgCodeRequired,
		Expected: domain.ExpectedCredentials{
			Code:  domain.NewCodeField(),
			State: domain.NewStateField("challenge-1"),
		},
	}

	tests := []struct {
		name   string
		body   string
		svc    *fakeAuth
		status int
	}{
		{"session", `{"email":"a@example.com","password":"pw"}`, &fakeAuth{loginResp: session}, http.StatusOK},
		{"mfa required", `{"email":"a@example.com","password":"pw"}`, &fakeAuth{loginErr: insufficient}, http.StatusAccepted},
		{"bad credentials", `{"email":"a@example.com","password":"pw"}`, &fakeAuth{loginErr: usecase.ErrInvalidCredentials}, http.StatusUnauthorized},
		{"internal", `{"email":"a@example.com","password":"pw"}`, &fakeAuth{loginErr: errors.New("db down")}, http.StatusInternalServerError},
		{"invalid email", `{"email":"nope","password":"pw"}`, &fakeAuth{}, http.StatusBadRequest},
		{"malformed", `{`, &fakeAuth{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestServer(t, tt.svc), http.MethodPost, "/v1/login", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestLogin_InsufficientCredentialsBody(t *testing.T) {
	svc := &fakeAuth{loginErr: &domain.InsufficientCredentialsError{
		Message:        "enroll",
		TranslationKey: domain.MsgEnrollRequired,
		Expected: domain.ExpectedCredentials{
			Code:  enrollingField(),
			State: domain.NewStateField("challenge-1"),
		},
	}}

	rec := do(newTestServer(t, svc), http.MethodPost, "/v1/login", `{"email":"a@example.com","password":"pw"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Message             string `json:"message"`
		TranslatableMessage struct {
			Key string `json:"key"`
		} `json:"translatableMessage"`
		Fields []map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "enroll", body.Message)
	assert.Equal(t, domain.MsgEnrollRequired, body.TranslatableMessage.Key)
	require.Len(t, body.Fields, 2)
	assert.Equal(t, domain.CodeFieldType, body.Fields[0]["type"])
	assert.Equal(t, "JBSWY3DPEHPK3PXP", body.Fields[0]["secret"])
	assert.Equal(t, domain.StateFieldName, body.Fields[1]["name"])
	assert.Equal(t, "challenge-1", body.Fields[1]["state"])
}

func TestVerifyMFA(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"success", nil, http.StatusOK, ""},
		{"wrong code", usecase.ErrInvalidMFACode, http.StatusUnauthorized, domain.MsgVerificationFailed},
		{"replay", usecase.ErrCodeAlreadyUsed, http.StatusUnauthorized, domain.MsgCodeReused},
		{"expired", usecase.ErrChallengeExpired, http.StatusGone, domain.MsgStateExpired},
		{"too many attempts", usecase.ErrTooManyAttempts, http.StatusTooManyRequests, domain.MsgTooManyAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeAuth{verifyResp: &domain.AuthResponse{AccessToken: "a"}, verifyErr: tt.err}
			rec := do(newTestServer(t, svc), http.MethodPost, "/v1/mfa/verify", `{"state":"challenge-1","code":"123456"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "challenge-1", svc.gotState)
			assert.Equal(t, "123456", svc.gotCode)
			if tt.key != "" {
				assert.Contains(t, rec.Body.String(), tt.key)
			}
		})
	}
}

func TestVerifyMFA_Form(t *testing.T) {
	svc := &fakeAuth{verifyResp: &domain.AuthResponse{AccessToken: "a"}}
	e := newTestServer(t, svc)

	form := url.Values{domain.StateFieldName: {"challenge-2"}, domain.CodeFieldName: {"654321"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/mfa/verify", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge-2", svc.gotState)
	assert.Equal(t, "654321", svc.gotCode)
}

func TestVerifyMFA_RejectsNonNumericCode(t *testing.T) {
	rec := do(newTestServer(t, &fakeAuth{}), http.MethodPost, "/v1/mfa/verify", `{"state":"s","code":"12a456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code"`)
}

func TestRefreshAndLogout(t *testing.T) {
	ok := &fakeAuth{refreshResp: &domain.AuthResponse{AccessToken: "a"}}
	bad := &fakeAuth{refreshErr: usecase.ErrInvalidRefresh, logoutErr: usecase.ErrInvalidRefresh}
	body := `{"refresh_token":"tok"}`

	assert.Equal(t, http.StatusOK, do(newTestServer(t, ok), http.MethodPost, "/v1/token/refresh", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(newTestServer(t, bad), http.MethodPost, "/v1/token/refresh", body).Code)
	assert.Equal(t, http.StatusNoContent, do(newTestServer(t, ok), http.MethodPost, "/v1/logout", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(newTestServer(t, bad), http.MethodPost, "/v1/logout", body).Code)
	assert.Equal(t, http.StatusBadRequest, do(newTestServer(t, ok), http.MethodPost, "/v1/logout", `{}`).Code)
}

func TestField_Enrolling(t *testing.T) {
	e := newTestServer(t, &fakeAuth{field: enrollingField()})

	hidden := do(e, http.MethodGet, "/v1/mfa/field?state=challenge-1", "")
	require.Equal(t, http.StatusOK, hidden.Code)
	assert.Contains(t, hidden.Body.String(), `src="data:image/png;base64,iVBORw0KGgo="`)
	assert.Contains(t, hidden.Body.String(), `field?details=shown&amp;state=challenge-1`)
	assert.Contains(t, hidden.Body.String(), `field/open?state=challenge-1`)
	assert.NotContains(t, hidden.Body.String(), "totp-secret-group")

	shown := do(e, http.MethodGet, "/v1/mfa/field?state=challenge-1&details=shown", "")
	require.Equal(t, http.StatusOK, shown.Code)
	for _, group := range []string{"JBSW", "Y3DP", "EHPK", "3PXP"} {
		assert.Contains(t, shown.Body.String(), `<span class="totp-secret-group">`+group+`</span>`)
	}
	assert.Contains(t, shown.Body.String(), "SHA1")
	assert.Contains(t, shown.Body.String(), "Hide details")
}

func TestField_Confirmed(t *testing.T) {
	e := newTestServer(t, &fakeAuth{field: domain.NewCodeField()})

	rec := do(e, http.MethodGet, "/v1/mfa/field?state=challenge-1&details=shown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "totp-enroll")
	assert.NotContains(t, rec.Body.String(), "totp-secret-group")
	assert.Contains(t, rec.Body.String(), `name="`+domain.CodeFieldName+`"`)
	assert.Contains(t, rec.Body.String(), `value="challenge-1"`)
}

func TestField_Errors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, do(newTestServer(t, &fakeAuth{}), http.MethodGet, "/v1/mfa/field", "").Code)

	expired := &fakeAuth{fieldErr: usecase.ErrChallengeExpired}
	assert.Equal(t, http.StatusGone, do(newTestServer(t, expired), http.MethodGet, "/v1/mfa/field?state=x", "").Code)
	assert.Equal(t, http.StatusGone, do(newTestServer(t, expired), http.MethodPost, "/v1/mfa/field/open?state=x", "").Code)
}

func TestOpen(t *testing.T) {
	field := enrollingField()
	rec := do(newTestServer(t, &fakeAuth{field: field}), http.MethodPost, "/v1/mfa/field/open?state=challenge-1", "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, field.KeyURI, rec.Header().Get(echo.HeaderLocation))
}

func TestOpen_NoKey(t *testing.T) {
	rec := do(newTestServer(t, &fakeAuth{field: domain.NewCodeField()}), http.MethodPost, "/v1/mfa/field/open?state=challenge-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderLocation))
}

func TestMe(t *testing.T) {
	e := newTestServer(t, &fakeAuth{})

	token := func(role string) string {
		tok, err := security.GenerateAccessToken("user-1", role, "sentinel-auth", testSecret, time.Minute)
		require.NoError(t, err)
		return tok
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"user", "Bearer " + token("user"), http.StatusOK},
		{"admin", "Bearer " + token("admin"), http.StatusOK},
		{"guest", "Bearer " + token("guest"), http.StatusForbidden},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"user_id":"user-1"`)
			}
		})
	}
}
