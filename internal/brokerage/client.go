// Package brokerage is the HTTP client for the broker's REST API:
// token refresh, streamer bootstrap, quotes and market hours.
package brokerage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/auth"
	"optionflow/internal/domain"
)

// ErrUnauthorized is returned on a 401 response. The caller decides
// whether to force a token re-read and retry.
var ErrUnauthorized = errors.New("unauthorized")

const defaultRequestTimeout = 15 * time.Second

// Config holds the endpoints and credentials for one broker account.
type Config struct {
	MarketDataURL  string
	AuthURL        string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration

	// RefreshTokenLife is how long a newly rotated refresh token stays
	// valid. The token endpoint does not echo this back.
	RefreshTokenLife time.Duration
}

// Client calls the broker's REST API with bounded timeouts.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a broker API client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log.With().Str("component", "brokerage").Logger(),
	}
}

// Compile-time interface check.
var _ auth.RefreshClient = (*Client)(nil)

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*auth.RefreshResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh token call: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}

	return &auth.RefreshResult{
		AccessToken:      body.AccessToken,
		RefreshToken:     body.RefreshToken,
		ExpiresIn:        time.Duration(body.ExpiresIn) * time.Second,
		RefreshExpiresIn: c.cfg.RefreshTokenLife,
	}, nil
}

// StreamerInfo holds the streaming login parameters published through
// the user-preferences endpoint.
type StreamerInfo struct {
	SocketURL  string
	CustomerID string
	CorrelID   string
	Channel    string
	FunctionID string
}

// UserPreferences fetches the streamer bootstrap parameters.
func (c *Client) UserPreferences(ctx context.Context, accessToken string) (*StreamerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.MarketDataURL+"/userPreference", nil)
	if err != nil {
		return nil, fmt.Errorf("build user preferences request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user preferences call: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("user preferences: %w", err)
	}

	var body struct {
		StreamerInfo []struct {
			StreamerSocketURL      string `json:"streamerSocketUrl"`
			SchwabClientCustomerID string `json:"schwabClientCustomerId"`
			SchwabClientCorrelID   string `json:"schwabClientCorrelId"`
			SchwabClientChannel    string `json:"schwabClientChannel"`
			SchwabClientFunctionID string `json:"schwabClientFunctionId"`
		} `json:"streamerInfo"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode user preferences: %w", err)
	}
	if len(body.StreamerInfo) == 0 {
		return nil, fmt.Errorf("user preferences response has no streamer info")
	}

	info := body.StreamerInfo[0]
	return &StreamerInfo{
		SocketURL:  info.StreamerSocketURL,
		CustomerID: info.SchwabClientCustomerID,
		CorrelID:   info.SchwabClientCorrelID,
		Channel:    info.SchwabClientChannel,
		FunctionID: info.SchwabClientFunctionID,
	}, nil
}

// Quote fetches the last traded price for one symbol.
func (c *Client) Quote(ctx context.Context, accessToken, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/quotes?symbols=%s", c.cfg.MarketDataURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("quote call: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, fmt.Errorf("quote %s: %w", symbol, err)
	}

	var body map[string]struct {
		Quote struct {
			LastPrice float64 `json:"lastPrice"`
		} `json:"quote"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode quote response: %w", err)
	}

	entry, ok := body[symbol]
	if !ok || entry.Quote.LastPrice <= 0 {
		return 0, fmt.Errorf("quote response has no usable price for %s", symbol)
	}
	return entry.Quote.LastPrice, nil
}

// MarketHours fetches the session windows for one market and date.
// The external calendar loader persists these; this client only fetches.
func (c *Client) MarketHours(ctx context.Context, accessToken, market, marketDate string) ([]*domain.SessionWindow, error) {
	endpoint := fmt.Sprintf("%s/markets/%s?date=%s", c.cfg.MarketDataURL, url.PathEscape(market), url.QueryEscape(marketDate))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build market hours request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market hours call: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("market hours %s: %w", market, err)
	}

	var body map[string]map[string]struct {
		IsOpen       bool `json:"isOpen"`
		SessionHours map[string][]struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"sessionHours"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode market hours: %w", err)
	}

	var windows []*domain.SessionWindow
	for _, products := range body {
		for _, product := range products {
			for session, hours := range product.SessionHours {
				for _, h := range hours {
					windows = append(windows, &domain.SessionWindow{
						MarketDate:  marketDate,
						SessionType: sessionTypeFromAPI(session),
						StartTime:   h.Start,
						EndTime:     h.End,
						IsOpen:      product.IsOpen,
					})
				}
			}
			if len(product.SessionHours) == 0 {
				// Closed days publish no hours at all.
				windows = append(windows, &domain.SessionWindow{
					MarketDate:  marketDate,
					SessionType: domain.SessionRegular,
					IsOpen:      false,
				})
			}
		}
	}
	return windows, nil
}

func sessionTypeFromAPI(s string) string {
	switch s {
	case "preMarket":
		return domain.SessionPreMarket
	case "postMarket":
		return domain.SessionPostMarket
	default:
		return domain.SessionRegular
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
