package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accesshub/cloud-access-gateway/internal/utils"
)

const testSecret = "middleware-test-secret"

func runJWT(t *testing.T, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTAuth(testSecret)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, h(c))
	return rec, c
}

func TestJWTAuthValidToken(t *testing.T) {
	tok, err := utils.NewAccessToken(testSecret, utils.Identity{UserID: 9, Username: "carol", Role: "admin"}, 60)
	require.NoError(t, err)

	rec, c := runJWT(t, "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(9), c.Get("user_id"))
	assert.Equal(t, "carol", c.Get("username"))
	assert.Equal(t, "admin", c.Get("role"))
}

func TestJWTAuthUniformRejection(t *testing.T) {
	expired, err := utils.NewAccessToken(testSecret, utils.Identity{UserID: 9, Username: "carol", Role: "user"}, -61)
	require.NoError(t, err)
	wrongKey, err := utils.NewAccessToken("another-secret", utils.Identity{UserID: 9, Username: "carol", Role: "user"}, 60)
	require.NoError(t, err)

	cases := map[string]string{
		"no header":     "",
		"not bearer":    "Basic abc123",
		"garbage token": "Bearer nonsense",
		"expired token": "Bearer " + expired.Token,
		"wrong secret":  "Bearer " + wrongKey.Token,
		"empty bearer":  "Bearer ",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := runJWT(t, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
}

func TestRequireRole(t *testing.T) {
	run := func(role interface{}) *httptest.ResponseRecorder {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if role != nil {
			c.Set("role", role)
		}
		h := RequireRole("admin")(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		require.NoError(t, h(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, run("admin").Code)
	assert.Equal(t, http.StatusForbidden, run("user").Code)
	assert.Equal(t, http.StatusForbidden, run(nil).Code)
	assert.Equal(t, http.StatusForbidden, run(42).Code)
}
