package brokerage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		MarketDataURL:    srv.URL,
		AuthURL:          srv.URL,
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RefreshTokenLife: 7 * 24 * time.Hour,
	}, zerolog.Nop())
	return client, srv
}

func TestRefreshToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/oauth/token" {
			t.Errorf("path = %q, want /v1/oauth/token", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			t.Error("missing or wrong basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":1800}`))
	}))

	result, err := client.RefreshToken(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken() error: %v", err)
	}
	if result.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q", result.AccessToken)
	}
	if result.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q", result.RefreshToken)
	}
	if result.ExpiresIn != 30*time.Minute {
		t.Errorf("ExpiresIn = %v, want 30m", result.ExpiresIn)
	}
	if result.RefreshExpiresIn != 7*24*time.Hour {
		t.Errorf("RefreshExpiresIn = %v, want 168h", result.RefreshExpiresIn)
	}
}

func TestRefreshTokenUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.RefreshToken(context.Background(), "old-refresh")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("RefreshToken() error = %v, want ErrUnauthorized", err)
	}
}

func TestUserPreferences(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"streamerInfo":[{
			"streamerSocketUrl":"wss://stream.example.com",
			"schwabClientCustomerId":"cust-1",
			"schwabClientCorrelId":"corr-1",
			"schwabClientChannel":"N9",
			"schwabClientFunctionId":"APIAPP"}]}`))
	}))

	info, err := client.UserPreferences(context.Background(), "tok")
	if err != nil {
		t.Fatalf("UserPreferences() error: %v", err)
	}
	if info.SocketURL != "wss://stream.example.com" {
		t.Errorf("SocketURL = %q", info.SocketURL)
	}
	if info.CustomerID != "cust-1" || info.CorrelID != "corr-1" {
		t.Errorf("ids = %q/%q", info.CustomerID, info.CorrelID)
	}
}

func TestQuote(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "$SPX" {
			t.Errorf("symbols = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"$SPX":{"quote":{"lastPrice":5901.25}}}`))
	}))

	price, err := client.Quote(context.Background(), "tok", "$SPX")
	if err != nil {
		t.Fatalf("Quote() error: %v", err)
	}
	if price != 5901.25 {
		t.Errorf("price = %v, want 5901.25", price)
	}
}

func TestQuoteUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Quote(context.Background(), "stale-tok", "$SPX")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Quote() error = %v, want ErrUnauthorized", err)
	}
}

func TestMarketHours(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"option":{"EQO":{"isOpen":true,"sessionHours":{
			"regularMarket":[{"start":"2025-01-15T09:30:00-05:00","end":"2025-01-15T16:00:00-05:00"}]}}}}`))
	}))

	windows, err := client.MarketHours(context.Background(), "tok", "option", "2025-01-15")
	if err != nil {
		t.Fatalf("MarketHours() error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("len(windows) = %d, want 1", len(windows))
	}
	w0 := windows[0]
	if w0.SessionType != "REGULAR" || !w0.IsOpen {
		t.Errorf("window = %+v", w0)
	}
	if w0.EndTime.Sub(w0.StartTime) != 6*time.Hour+30*time.Minute {
		t.Errorf("window length = %v", w0.EndTime.Sub(w0.StartTime))
	}
}
