package services

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// SpotifyScopes are requested on login: profile read for the user id plus
// playlist creation.
var SpotifyScopes = []string{"user-read-private", "playlist-modify-public", "playlist-modify-private"}

// OAuthService runs the Spotify authorization-code flow.
type OAuthService struct {
	config *oauth2.Config
}

// NewOAuthService configures the flow against endpoint, normally
// golang.org/x/oauth2/spotify.Endpoint.
func NewOAuthService(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint) *OAuthService {
	return &OAuthService{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       SpotifyScopes,
			Endpoint:     endpoint,
		},
	}
}

// AuthCodeURL returns the Spotify consent URL carrying state.
func (s *OAuthService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for access and refresh tokens.
func (s *OAuthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange failed: %w", err)
	}
	return tok, nil
}
