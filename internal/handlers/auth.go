package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/moodtunes/backend/internal/logging"
)

const (
	stateCookieName = "moodtunes_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// OAuthFlow is the Spotify authorization-code flow.
type OAuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// ProfileFetcher resolves the Spotify user owning an access token.
type ProfileFetcher interface {
	CurrentUserID(ctx context.Context, accessToken string) (string, error)
}

// CredentialSaver persists a user's Spotify tokens.
type CredentialSaver interface {
	Save(ctx context.Context, spotifyID string, tok *oauth2.Token) error
}

// TokenIssuer mints identity tokens.
type TokenIssuer interface {
	GenerateToken(spotifyID, accessToken string) (string, error)
}

// AuthHandler runs the login redirect and OAuth callback.
type AuthHandler struct {
	oauth       OAuthFlow
	profiles    ProfileFetcher
	credentials CredentialSaver
	issuer      TokenIssuer
	frontendURL string
	secure      bool
	timeout     time.Duration
}

// NewAuthHandler creates an AuthHandler. The state cookie is marked Secure
// when baseURL is served over https.
func NewAuthHandler(oauth OAuthFlow, profiles ProfileFetcher, credentials CredentialSaver, issuer TokenIssuer, baseURL, frontendURL string, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AuthHandler{
		oauth:       oauth,
		profiles:    profiles,
		credentials: credentials,
		issuer:      issuer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		secure:      strings.HasPrefix(baseURL, "https://"),
		timeout:     timeout,
	}
}

// Login redirects the browser to Spotify's consent page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback exchanges the authorization code, stores the user's tokens and
// sends the browser to the dashboard with a fresh identity token.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventOAuthStateMismatch, "oauth state mismatch")
		writeError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: h.secure})

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	token, err := h.authenticate(ctx, code)
	if err != nil {
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "Authentication failed", err)
		return
	}

	http.Redirect(w, r, h.frontendURL+"/dashboard?token="+url.QueryEscape(token), http.StatusFound)
}

func (h *AuthHandler) authenticate(ctx context.Context, code string) (string, error) {
	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	spotifyID, err := h.profiles.CurrentUserID(ctx, tok.AccessToken)
	if err != nil {
		return "", err
	}

	ctx = logging.WithSpotifyID(ctx, spotifyID)
	if err := h.credentials.Save(ctx, spotifyID, tok); err != nil {
		return "", err
	}

	signed, err := h.issuer.GenerateToken(spotifyID, tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, nil
}
