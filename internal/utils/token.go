package utils // package utils provides helpers for token issuance and hashing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// Tokens are stateless bearer credentials: there is no server-side session
// or revocation record, so a token stays valid until its exp claim passes.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Identity is the subject information carried inside an access token.
type Identity struct {
	UserID   uint64 // the users.id the token was issued to
	Username string // username at issuance time
	Role     string // role at issuance time ("user" or "admin")
}

// ErrInvalidToken covers every way a token can fail verification: bad
// signature, wrong algorithm, malformed payload, or expiry. Callers must not
// distinguish between these cases; they all mean "unauthorized".
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user. It takes the
// signing secret, the identity to embed, and a TTL in minutes. The claims
// are the standard subject (sub), expiration (exp) and issued-at (iat),
// plus username and role for handlers that need them without a DB lookup.
func NewAccessToken(secret string, id Identity, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":      id.UserID,
		"username": id.Username,
		"role":     id.Role,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies a raw token string and returns the identity it
// carries. Any failure (unparseable token, tampered signature, unexpected
// signing method, or passed expiry) yields ErrInvalidToken so the caller
// cannot leak which check failed.
func ParseAccessToken(secret, raw string) (Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	sub, ok := claims["sub"].(float64)
	if !ok || sub < 0 {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{UserID: uint64(sub)}
	if v, ok := claims["username"].(string); ok {
		id.Username = v
	}
	if v, ok := claims["role"].(string); ok {
		id.Role = v
	}
	return id, nil
}
