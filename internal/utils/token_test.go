package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken(testSecret, Identity{UserID: 42, Username: "alice", Role: "admin"}, 60)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	assert.WithinDuration(t, time.Now().Add(60*time.Minute), tok.Exp, 5*time.Second)

	id, err := ParseAccessToken(testSecret, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, "admin", id.Role)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	_, err := ParseAccessToken(testSecret, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	tok, err := NewAccessToken("other-secret", Identity{UserID: 1, Username: "bob", Role: "user"}, 60)
	require.NoError(t, err)

	_, err = ParseAccessToken(testSecret, tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsWrongAlgorithm(t *testing.T) {
	// A token signed with "none" must not parse even with a valid claim set.
	claims := jwt.MapClaims{
		"sub": float64(1), "username": "bob", "role": "user",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseAccessToken(testSecret, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenLooksLikeInvalidToken(t *testing.T) {
	// An expired token and a corrupted one fail with the same error value, so
	// callers cannot leak which case occurred.
	expired, err := NewAccessToken(testSecret, Identity{UserID: 42, Username: "alice", Role: "user"}, -61)
	require.NoError(t, err)

	_, errExpired := ParseAccessToken(testSecret, expired.Token)
	_, errCorrupt := ParseAccessToken(testSecret, "A.B.C")

	assert.ErrorIs(t, errExpired, ErrInvalidToken)
	assert.ErrorIs(t, errCorrupt, ErrInvalidToken)
	assert.Equal(t, errExpired, errCorrupt)
}
