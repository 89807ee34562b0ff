package middleware

// identity.go holds helpers shared across middleware files for reading the
// authenticated caller out of the Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// callerKey returns a stable string identifying the authenticated caller for
// limiter keying. Unauthenticated requests all share the "guest" bucket.
func callerKey(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case uint64:
		return strconv.FormatUint(v, 10)
	case string:
		if v != "" {
			return v
		}
	}
	return "guest"
}
