package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthService_GenerateAndValidateToken(t *testing.T) {
	authService := NewAuthService("test-secret", time.Hour)

	tests := []struct {
		name        string
		spotifyID   string
		accessToken string
	}{
		{"regular user", "user-123", "BQD-access"},
		{"unicode id", "üser", "BQD-other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := authService.GenerateToken(tt.spotifyID, tt.accessToken)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}

			if token == "" {
				t.Fatal("GenerateToken() returned empty token")
			}

			claims, err := authService.ValidateToken(token)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}

			if claims.SpotifyID != tt.spotifyID {
				t.Errorf("SpotifyID = %v, want %v", claims.SpotifyID, tt.spotifyID)
			}

			if claims.AccessToken != tt.accessToken {
				t.Errorf("AccessToken = %v, want %v", claims.AccessToken, tt.accessToken)
			}
		})
	}
}

func TestAuthService_InvalidToken(t *testing.T) {
	authService := NewAuthService("test-secret", time.Hour)

	_, err := authService.ValidateToken("invalid-token")
	if err == nil {
		t.Error("ValidateToken() should return error for invalid token")
	}
}

func TestAuthService_WrongSecret(t *testing.T) {
	authService1 := NewAuthService("secret-1", time.Hour)
	authService2 := NewAuthService("secret-2", time.Hour)

	token, _ := authService1.GenerateToken("user-123", "BQD")

	_, err := authService2.ValidateToken(token)
	if err == nil {
		t.Error("ValidateToken() should return error for token signed with different secret")
	}
}

func TestAuthService_ExpiredToken(t *testing.T) {
	authService := NewAuthService("test-secret", -time.Hour)

	token, _ := authService.GenerateToken("user-123", "BQD")

	_, err := authService.ValidateToken(token)
	if err == nil {
		t.Error("ValidateToken() should return error for expired token")
	}
}

func TestAuthService_RejectsForeignIssuer(t *testing.T) {
	claims := Claims{
		SpotifyID:   "user-123",
		AccessToken: "BQD",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))

	if _, err := NewAuthService("test-secret", time.Hour).ValidateToken(token); err == nil {
		t.Error("ValidateToken() should reject tokens from another issuer")
	}
}

func TestAuthService_RejectsMissingAccessToken(t *testing.T) {
	authService := NewAuthService("test-secret", time.Hour)
	token, _ := authService.GenerateToken("user-123", "")

	if _, err := authService.ValidateToken(token); err == nil {
		t.Error("ValidateToken() should reject tokens without an access token")
	}
}
