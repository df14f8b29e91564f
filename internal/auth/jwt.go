// Package auth is the identity gate for the socket handshake: a signed
// bearer token is verified, then the subject is resolved against the live
// user store. Both steps must succeed before a connection is accepted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
	"github.com/helpdeskhq/chat-service/internal/store"
)

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the verified result handed to the gateway: token claims plus
// the live user record.
type Identity struct {
	Claims *Claims
	User   *models.User
}

type Verifier struct {
	secret []byte
	users  store.Users
}

func NewVerifier(secret string, users store.Users) *Verifier {
	return &Verifier{secret: []byte(secret), users: users}
}

// Verify parses and validates the token, then loads the user. The user
// must exist, be active and not soft-deleted. Read-only; no side effects.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", apperr.ErrAuthentication)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", apperr.ErrAuthentication)
	}
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return nil, fmt.Errorf("token has no subject: %w", apperr.ErrAuthentication)
	}
	user, err := v.users.FindActive(ctx, uid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
			return nil, fmt.Errorf("unknown or inactive user: %w", apperr.ErrAuthentication)
		}
		return nil, err
	}
	return &Identity{Claims: claims, User: user}, nil
}
