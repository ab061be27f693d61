package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// searchLimit is how many tracks seed each generated playlist.
const searchLimit = 10

// APIError is a non-2xx answer from the Spotify Web API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// SpotifyService calls the Spotify Web API on behalf of a user, authenticating
// each request with that user's access token.
type SpotifyService struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// PlaylistRequest describes the playlist to generate.
type PlaylistRequest struct {
	Query       string
	Name        string
	Description string
	Public      bool
}

// Playlist is a created playlist.
type Playlist struct {
	ID         string
	URL        string
	TrackCount int
}

type spotifyUser struct {
	ID string `json:"id"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []struct {
			URI string `json:"uri"`
		} `json:"items"`
	} `json:"tracks"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type spotifyPlaylist struct {
	ID           string `json:"id"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

// NewSpotifyService creates a client for the API at baseURL
// (https://api.spotify.com/v1 in production).
func NewSpotifyService(baseURL string, maxRetries int, baseBackoff time.Duration) *SpotifyService {
	return &SpotifyService{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
	}
}

// clientFor returns an HTTP client that sets the user's bearer token.
func (s *SpotifyService) clientFor(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

// call sends a JSON request and decodes a JSON response into out (if non-nil).
func (s *SpotifyService) call(ctx context.Context, accessToken, operation, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// #nosec G107 -- URL built from the configured Spotify API base URL
	resp, err := doWithRetry(s.clientFor(ctx, accessToken), req, s.maxRetries, s.baseBackoff)
	if err != nil {
		return fmt.Errorf("spotify %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// CurrentUserID returns the Spotify id of the token's owner.
func (s *SpotifyService) CurrentUserID(ctx context.Context, accessToken string) (string, error) {
	var me spotifyUser
	if err := s.call(ctx, accessToken, "me", http.MethodGet, "/me", nil, &me); err != nil {
		return "", err
	}
	if me.ID == "" {
		return "", fmt.Errorf("spotify me response carried no user id")
	}
	return me.ID, nil
}

// SearchTrackURIs returns the URIs of up to limit tracks matching query.
func (s *SpotifyService) SearchTrackURIs(ctx context.Context, accessToken, query string, limit int) ([]string, error) {
	if limit <= 0 || limit > 50 {
		limit = searchLimit
	}

	path := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var resp spotifySearchResponse
	if err := s.call(ctx, accessToken, "search", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	uris := make([]string, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		if item.URI != "" {
			uris = append(uris, item.URI)
		}
	}
	return uris, nil
}

// CreatePlaylist creates a playlist owned by the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, accessToken, name, description string, public bool) (*Playlist, error) {
	var created spotifyPlaylist
	in := createPlaylistRequest{Name: name, Description: description, Public: public}
	if err := s.call(ctx, accessToken, "create playlist", http.MethodPost, "/me/playlists", in, &created); err != nil {
		return nil, err
	}
	return &Playlist{ID: created.ID, URL: created.ExternalURLs.Spotify}, nil
}

// AddTracks appends track URIs to a playlist.
func (s *SpotifyService) AddTracks(ctx context.Context, accessToken, playlistID string, uris []string) error {
	path := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	return s.call(ctx, accessToken, "add tracks", http.MethodPost, path, addTracksRequest{URIs: uris}, nil)
}

// BuildPlaylist searches for tracks matching req.Query, creates a playlist
// and fills it. A search with no results still yields an empty playlist.
func (s *SpotifyService) BuildPlaylist(ctx context.Context, accessToken string, req PlaylistRequest) (*Playlist, error) {
	uris, err := s.SearchTrackURIs(ctx, accessToken, req.Query, searchLimit)
	if err != nil {
		return nil, err
	}

	playlist, err := s.CreatePlaylist(ctx, accessToken, req.Name, req.Description, req.Public)
	if err != nil {
		return nil, err
	}

	if len(uris) > 0 {
		if err := s.AddTracks(ctx, accessToken, playlist.ID, uris); err != nil {
			return nil, err
		}
	}
	playlist.TrackCount = len(uris)
	return playlist, nil
}
