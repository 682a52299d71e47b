// Package identity extracts "who am I" from the access token the auth system
// hands out. The chat core never owns identity; it only reads it.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload shared with the backend.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity is the resolved participant behind a session.
type Identity struct {
	ID       string
	Username string
}

var ErrEmptyToken = errors.New("identity: empty token")

// FromToken decodes the identity carried in an access token without verifying
// the signature. The client has no secret; verification is the server's job,
// the client only needs to know which participant it is acting as.
func FromToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrEmptyToken
	}
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("identity: parse token: %w", err)
	}
	if claims.ID == "" {
		return Identity{}, errors.New("identity: token has no subject id")
	}
	return Identity{ID: claims.ID, Username: claims.Username}, nil
}
