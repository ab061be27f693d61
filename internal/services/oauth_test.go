package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestOAuthService_AuthCodeURL(t *testing.T) {
	svc := NewOAuthService("client-id", "secret", "http://localhost:3000/callback", oauth2.Endpoint{
		AuthURL:  "https://accounts.example.com/authorize",
		TokenURL: "https://accounts.example.com/api/token",
	})

	raw := svc.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}

	q := u.Query()
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-123" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("redirect_uri") != "http://localhost:3000/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if scope := q.Get("scope"); scope != strings.Join(SpotifyScopes, " ") {
		t.Errorf("scope = %q", scope)
	}
}

func TestOAuthService_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "client-id" {
			t.Errorf("expected client credentials in basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"BQD-access","token_type":"Bearer","refresh_token":"AQD-refresh","expires_in":3600}`))
	}))
	defer srv.Close()

	svc := NewOAuthService("client-id", "secret", "http://localhost/callback", oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/api/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	})

	tok, err := svc.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken != "BQD-access" || tok.RefreshToken != "AQD-refresh" {
		t.Errorf("token = %+v", tok)
	}
	if tok.Expiry.IsZero() {
		t.Error("expected expiry to be set")
	}

	if _, err := svc.Exchange(context.Background(), "bad-code"); err == nil {
		t.Error("Exchange() should fail for a rejected code")
	}
}
