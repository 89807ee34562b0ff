package middleware // package middleware contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the caller's identity into the request context under
// "user_id" (uint64), "username" and "role". The provided secret must match
// the one used at issuance.
//
// Every failure mode (missing header, malformed token, bad signature,
// expired token) produces the same 401 body. Callers are told they are
// unauthorized and nothing more; in particular an expired token is
// indistinguishable from a corrupted one.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			id, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}

			c.Set("user_id", id.UserID)
			c.Set("username", id.Username)
			c.Set("role", id.Role)
			return next(c)
		}
	}
}
