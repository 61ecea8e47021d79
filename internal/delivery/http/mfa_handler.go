package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-mfa/internal/presenter"
	"github.com/FilipeAphrody/sentinel-mfa/internal/usecase"
)

// MFAHandler renders the code field of a pending challenge for browsers.
type MFAHandler struct {
	usecase AuthService
	log     *zap.Logger
}

// NewMFAHandler registers the code field routes.
func NewMFAHandler(e *echo.Group, u AuthService, log *zap.Logger) {
	handler := &MFAHandler{usecase: u, log: log}

	e.GET("/mfa/field", handler.Field)
	e.POST("/mfa/field/open", handler.Open)
}

// Field renders the code field. details=shown reveals the raw key and the
// TOTP parameters; the page links back to itself to toggle them.
func (h *MFAHandler) Field(c echo.Context) error {
	state := c.QueryParam("state")
	if state == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing state"})
	}
	field, err := h.usecase.CodeField(c.Request().Context(), state)
	if err != nil {
		return h.fieldError(c, err)
	}

	p := presenter.NewCodeField(field, nil)

	if c.QueryParam("details") == "shown" {
		p.ShowDetails()
	} else {
		p.HideDetails()
	}

	return c.Render(http.StatusOK, codeFieldTemplate, newFieldView(p, state))
}

// Open hands the key URI to the browser, which dispatches otpauth:// to a
// locally installed authenticator.
func (h *MFAHandler) Open(c echo.Context) error {
	state := c.QueryParam("state")
	if state == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing state"})
	}
	field, err := h.usecase.CodeField(c.Request().Context(), state)
	if err != nil {
		return h.fieldError(c, err)
	}

	opener := &redirectOpener{c: c}
	presenter.NewCodeField(field, opener).OpenKeyURI()
	return opener.err
}

func (h *MFAHandler) fieldError(c echo.Context, err error) error {
	if errors.Is(err, usecase.ErrChallengeExpired) {
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
	}
	h.log.Error("failed to load code field", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// redirectOpener opens a URI by redirecting the current request to it.
type redirectOpener struct {
	c   echo.Context
	err error
}

func (o *redirectOpener) OpenURI(uri string) {
	if uri == "" {
		o.err = o.c.JSON(http.StatusNotFound, echo.Map{"error": "no key to open"})
		return
	}
	o.err = o.c.Redirect(http.StatusFound, uri)
}
