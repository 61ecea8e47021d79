package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewAccountHandler registers the routes that require an access token.
func NewAccountHandler(e *echo.Group, jwtSecret string) {
	e.GET("/me", Me, JWTMiddleware(jwtSecret), RoleMiddleware("user"))
}

// Me echoes the identity carried by the access token.
func Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": c.Get(ContextUserID),
		"role":    c.Get(ContextRole),
	})
}
