package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"

	"github.com/moodtunes/backend/internal/audio"
	"github.com/moodtunes/backend/internal/broker"
	"github.com/moodtunes/backend/internal/config"
	"github.com/moodtunes/backend/internal/metrics"
	"github.com/moodtunes/backend/internal/middleware"
	"github.com/moodtunes/backend/internal/models"
	"github.com/moodtunes/backend/internal/services"
	"github.com/moodtunes/backend/internal/uploads"
)

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) (*httptest.Server, *broker.Broker) {
	t.Helper()

	cfg := &config.Config{
		BaseURL:            "http://localhost:3000",
		FrontendURL:        "http://localhost:3000",
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout:     time.Second,
		MaxUploadBytes:     1 << 20,
		PushSendBuffer:     4,
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := broker.New(m)

	store, err := uploads.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	deps := Dependencies{
		Auth: services.NewAuthService("test-secret", time.Hour),
		OAuth: services.NewOAuthService("client-id", "client-secret", cfg.RedirectURL(), oauth2.Endpoint{
			AuthURL:  "https://accounts.spotify.test/authorize",
			TokenURL: "https://accounts.spotify.test/api/token",
		}),
		Spotify:     services.NewSpotifyService("http://127.0.0.1:1", 1, time.Millisecond),
		SessionIDs:  services.NewSessionIDService(func(id string) bool { return b.Subscribers(id) > 0 }),
		Broker:      b,
		Uploads:     store,
		Prober:      audio.MP3Probe{},
		Metrics:     m,
		Gatherer:    reg,
		RateLimiter: limiter,
	}

	srv := httptest.NewServer(New(cfg, deps))
	t.Cleanup(srv.Close)
	return srv, b
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK, `"status":"ok"`},
		{"new session", http.MethodGet, "/sessions/new", "", http.StatusOK, `"sessionId"`},
		{"login redirects", http.MethodGet, "/login", "", http.StatusFound, ""},
		{"callback without code", http.MethodGet, "/callback", "", http.StatusBadRequest, ""},
		{"suggest without token", http.MethodPost, "/suggest", `{"prompt":"happy"}`, http.StatusUnauthorized, `"No token provided"`},
		{"analyze without token", http.MethodPost, "/analyze-audio", "", http.StatusUnauthorized, ""},
		{"root without upgrade", http.MethodGet, "/", "", http.StatusBadRequest, ""},
		{"preflight", http.MethodOptions, "/suggest", "", http.StatusNoContent, ""},
	}

	client := noRedirectClient()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			resp, err := client.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			if tt.wantBody != "" && !strings.Contains(string(body), tt.wantBody) {
				t.Errorf("body = %s, want to contain %s", body, tt.wantBody)
			}
		})
	}
}

func TestSuggestWithInvalidToken(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/suggest", strings.NewReader(`{"prompt":"happy"}`))
	req.Header.Set("Authorization", "Bearer forged")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestLoginRedirectCarriesScopes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := noRedirectClient().Get(srv.URL + "/login")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "accounts.spotify.test" {
		t.Errorf("redirect host = %q", loc.Host)
	}
	scope := loc.Query().Get("scope")
	for _, want := range services.SpotifyScopes {
		if !strings.Contains(scope, want) {
			t.Errorf("scope %q missing from %q", want, scope)
		}
	}
	if loc.Query().Get("redirect_uri") != "http://localhost:3000/callback" {
		t.Errorf("redirect_uri = %q", loc.Query().Get("redirect_uri"))
	}
}

func TestPushOverRootAndWS(t *testing.T) {
	srv, b := newTestServer(t, nil)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	for _, path := range []string{"/", "/ws"} {
		conn, _, err := websocket.DefaultDialer.Dial(base+path, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", path, err)
		}
		conn.WriteJSON(models.PushCommand{Action: models.ActionJoin, SessionID: "r" + path})

		var welcome models.WelcomeMessage
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&welcome); err != nil {
			t.Fatalf("welcome on %s: %v", path, err)
		}
		if b.Subscribers("r"+path) != 1 {
			t.Errorf("connection on %s not registered", path)
		}
		conn.Close()
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "moodtunes_") {
		t.Errorf("metrics output missing moodtunes collectors:\n%s", body)
	}
}

func TestRateLimitApplies(t *testing.T) {
	srv, _ := newTestServer(t, middleware.NewRateLimiter(2, time.Hour))

	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/sessions/new")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health should bypass the limiter, got %d", resp.StatusCode)
	}
}
