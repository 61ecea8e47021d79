package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
	"github.com/FilipeAphrody/sentinel-mfa/internal/usecase"
)

// AuthService is the use case surface the handlers depend on.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*domain.AuthResponse, error)
	CodeField(ctx context.Context, challengeID string) (domain.CodeField, error)
	VerifyMFA(ctx context.Context, challengeID, code string) (*domain.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase AuthService
	log     *zap.Logger
}

// NewAuthHandler registers the authentication routes to the provided echo group.
func NewAuthHandler(e *echo.Group, u AuthService, log *zap.Logger) {
	handler := &AuthHandler{usecase: u, log: log}

	e.POST("/login", handler.Login)
	e.POST("/mfa/verify", handler.VerifyMFA)
	e.POST("/token/refresh", handler.Refresh)
	e.POST("/logout", handler.Logout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// mfaRequest resumes a challenge; state is the value of the state field.
// The form tags match the field names of the rendered code field.
type mfaRequest struct {
	State string `json:"state" form:"sentinel-mfa-state" validate:"required"`
	Code  string `json:"code" form:"sentinel-totp-code" validate:"required,numeric,min=6,max=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// translatableMessage lets the client localize a message by key.
type translatableMessage struct {
	Key string `json:"key"`
}

// insufficientCredentialsResponse is the 202 body listing the fields that
// must be submitted next.
type insufficientCredentialsResponse struct {
	Message             string              `json:"message"`
	TranslatableMessage translatableMessage `json:"translatableMessage"`
	Type                string              `json:"type"`
	Fields              []any               `json:"fields"`
}

// Login handles the initial authentication request.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	resp, err := h.usecase.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		var insufficient *domain.InsufficientCredentialsError
		switch {
		case errors.As(err, &insufficient):
			return c.JSON(http.StatusAccepted, insufficientCredentialsResponse{
				Message:             insufficient.Message,
				TranslatableMessage: translatableMessage{Key: insufficient.TranslationKey},
				Type:                "INSUFFICIENT_CREDENTIALS",
				Fields:              []any{insufficient.Expected.Code, insufficient.Expected.State},
			})
		case errors.Is(err, usecase.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return h.internalError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// VerifyMFA handles the second step of authentication for users with MFA enabled.
func (h *AuthHandler) VerifyMFA(c echo.Context) error {
	var req mfaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	resp, err := h.usecase.VerifyMFA(c.Request().Context(), req.State, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidMFACode):
			return mfaError(c, http.StatusUnauthorized, err, domain.MsgVerificationFailed)
		case errors.Is(err, usecase.ErrCodeAlreadyUsed):
			return mfaError(c, http.StatusUnauthorized, err, domain.MsgCodeReused)
		case errors.Is(err, usecase.ErrChallengeExpired):
			return mfaError(c, http.StatusGone, err, domain.MsgStateExpired)
		case errors.Is(err, usecase.ErrTooManyAttempts):
			return mfaError(c, http.StatusTooManyRequests, err, domain.MsgTooManyAttempts)
		case errors.Is(err, usecase.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return h.internalError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new session.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	resp, err := h.usecase.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidRefresh) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return h.internalError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the given refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	if err := h.usecase.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		if errors.Is(err, usecase.ErrInvalidRefresh) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return h.internalError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) internalError(c echo.Context, err error) error {
	h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

func mfaError(c echo.Context, status int, err error, key string) error {
	return c.JSON(status, echo.Map{
		"error":               err.Error(),
		"translatableMessage": translatableMessage{Key: key},
	})
}

func validationFailed(c echo.Context, err error) error {
	var fields ValidationError
	if errors.As(err, &fields) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fields})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
}
