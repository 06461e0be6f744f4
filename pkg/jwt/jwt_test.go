package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager("secret", "chys-auth", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tok, exp, err := m.GenerateAccessToken("u1", "u1@chys.app", "luna", []string{"user"})
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry = %v", exp)
	}

	claims, err := m.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "luna" || claims.Type != "access" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestManagerRejects(t *testing.T) {
	m, _ := NewManager("secret", "chys-auth", time.Hour)
	other, _ := NewManager("other", "chys-auth", time.Hour)
	foreign, _ := NewManager("secret", "someone-else", time.Hour)

	forged, _, _ := other.GenerateAccessToken("u1", "", "", nil)
	wrongIssuer, _, _ := foreign.GenerateAccessToken("u1", "", "", nil)

	expiredClaims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chys-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		UserID: "u1",
		Type:   "access",
	}
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("secret"))

	refreshClaims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "chys-auth"}, UserID: "u1", Type: "refresh"}
	refresh, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte("secret"))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"wrong issuer", wrongIssuer, ErrInvalidToken},
		{"expired", expired, ErrExpiredToken},
		{"refresh token", refresh, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateToken(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewManager("", "x", 0); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("NewManager(\"\") error = %v", err)
	}
}
