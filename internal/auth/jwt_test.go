package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/helpdeskhq/chat-service/internal/apperr"
	"github.com/helpdeskhq/chat-service/internal/models"
	"github.com/helpdeskhq/chat-service/internal/store"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID string, ttl time.Duration) string {
	t.Helper()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestVerifyAcceptsLiveUser(t *testing.T) {
	mem := store.NewMemory()
	uid := mem.SeedUser(&models.User{Name: "alice", Role: "agent", IsActive: true})
	v := NewVerifier(testSecret, mem)

	ident, err := v.Verify(context.Background(), "Bearer "+signToken(t, uid, time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ident.User.Role != "agent" || ident.Claims.UserID != uid {
		t.Errorf("identity = %+v", ident)
	}
}

func TestVerifyRejections(t *testing.T) {
	mem := store.NewMemory()
	active := mem.SeedUser(&models.User{Name: "alice", IsActive: true})
	inactive := mem.SeedUser(&models.User{Name: "bob", IsActive: false})
	deleted := mem.SeedUser(&models.User{Name: "carol", IsActive: true, IsDeleted: true})
	v := NewVerifier(testSecret, mem)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "Bearer not.a.jwt"},
		{"expired", signToken(t, active, -time.Hour)},
		{"wrong key", mustOtherKeyToken(t, active)},
		{"inactive user", signToken(t, inactive, time.Hour)},
		{"deleted user", signToken(t, deleted, time.Hour)},
		{"unknown user", signToken(t, "64b000000000000000000000", time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tc.token)
			if !errors.Is(err, apperr.ErrAuthentication) {
				t.Errorf("err = %v, want ErrAuthentication", err)
			}
		})
	}
}

func mustOtherKeyToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: userID})
	s, err := tok.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}
