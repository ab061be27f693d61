// Package services contains the core business logic for moodtunes: identity
// tokens, Spotify access, and credential persistence.
package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "moodtunes"

// Claims represents the identity token payload. It carries the Spotify user
// and the Spotify access token used for catalog and playlist calls.
type Claims struct {
	SpotifyID   string `json:"spotifyId"`
	AccessToken string `json:"accessToken"`
	jwt.RegisteredClaims
}

// AuthService handles identity token generation and validation.
type AuthService struct {
	secret        []byte
	tokenDuration time.Duration
}

// NewAuthService creates an AuthService with the given signing secret and token lifetime.
func NewAuthService(secret string, tokenDuration time.Duration) *AuthService {
	return &AuthService{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
	}
}

// GenerateToken creates a signed JWT embedding the Spotify access token.
func (s *AuthService) GenerateToken(spotifyID, accessToken string) (string, error) {
	now := time.Now()
	claims := Claims{
		SpotifyID:   spotifyID,
		AccessToken: accessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   spotifyID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken verifies the JWT signature and expiry, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.AccessToken == "" {
			return nil, errors.New("token carries no access token")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
