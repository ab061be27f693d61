package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/moodtunes/backend/internal/crypto"
	"github.com/moodtunes/backend/internal/db"
)

// ErrCredentialNotFound is returned when no tokens are stored for a user.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialService persists sealed Spotify tokens per user.
type CredentialService struct {
	queries *db.Queries
	sealer  *crypto.Sealer
	now     func() time.Time
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(queries *db.Queries, sealer *crypto.Sealer) *CredentialService {
	return &CredentialService{queries: queries, sealer: sealer, now: time.Now}
}

// Save stores tok for spotifyID. An empty refresh token keeps the one already on file.
func (s *CredentialService) Save(ctx context.Context, spotifyID string, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("refusing to store empty token")
	}

	access, err := s.sealer.Seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	var expiry sql.NullInt64
	if !tok.Expiry.IsZero() {
		expiry = sql.NullInt64{Int64: tok.Expiry.Unix(), Valid: true}
	}

	err = s.queries.UpsertCredential(ctx, db.UpsertCredentialParams{
		SpotifyID:    spotifyID,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenExpiry:  expiry,
		Now:          s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Get loads and unseals the tokens stored for spotifyID.
func (s *CredentialService) Get(ctx context.Context, spotifyID string) (*oauth2.Token, error) {
	cred, err := s.queries.GetCredential(ctx, spotifyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	access, err := s.sealer.Open(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	refresh, err := s.sealer.Open(cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to open refresh token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	if cred.TokenExpiry.Valid {
		tok.Expiry = time.Unix(cred.TokenExpiry.Int64, 0)
	}
	return tok, nil
}
