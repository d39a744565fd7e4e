package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnexpected is the caller-facing form of any transport, status, or
// decoding failure. The original failure is logged, not wrapped, so error
// messages shown to users never leak response internals.
var ErrUnexpected = errors.New("unexpected error communicating with the authorization service")

const (
	tokenPath   = "/o/token/"
	profilePath = "/api/me/"
)

// Token is the authorization service's response to a token grant.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Profile identifies the user an access token belongs to.
type Profile struct {
	Username string `json:"username"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for all requests.
// If not provided, a client with a 30 second timeout is used.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client issues requests against a single authorization service.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
}

// New creates a Client for the service at baseURL acting as clientID.
func New(baseURL, clientID string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client ID cannot be empty")
	}

	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		clientID: clientID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExchangeCode trades an authorization code and its PKCE verifier for
// token material.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {redirectURI},
	}
	return c.token(ctx, form)
}

// Refresh trades a refresh token for fresh token material.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"refresh_token": {refreshToken},
	}
	return c.token(ctx, form)
}

// token POSTs a form-encoded grant to the token endpoint and decodes the
// response.
func (c *Client) token(ctx context.Context, form url.Values) (*Token, error) {
	endpoint := c.baseURL + tokenPath
	grantType := form.Get("grant_type")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response was received, so the transport error carries nothing
		// sensitive and may be surfaced as-is.
		slog.ErrorContext(ctx, "token request failed", "grant_type", grantType, "error", err)
		return nil, fmt.Errorf("requesting token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.ErrorContext(ctx, "reading token response failed", "grant_type", grantType, "error", err)
		return nil, ErrUnexpected
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.ErrorContext(ctx, "token endpoint returned an error",
			"grant_type", grantType, "status", resp.StatusCode, "body", string(body))
		return nil, ErrUnexpected
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		slog.ErrorContext(ctx, "decoding token response failed", "grant_type", grantType, "error", err)
		return nil, ErrUnexpected
	}
	if token.AccessToken == "" {
		slog.ErrorContext(ctx, "token response carries no access token", "grant_type", grantType)
		return nil, ErrUnexpected
	}

	return &token, nil
}

// FetchProfile returns the profile of the user the access token belongs to.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	endpoint := c.baseURL + profilePath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "profile request failed", "error", err)
		return nil, fmt.Errorf("requesting profile: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.ErrorContext(ctx, "reading profile response failed", "error", err)
		return nil, ErrUnexpected
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.ErrorContext(ctx, "profile endpoint returned an error",
			"status", resp.StatusCode, "body", string(body))
		return nil, ErrUnexpected
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		slog.ErrorContext(ctx, "decoding profile response failed", "error", err)
		return nil, ErrUnexpected
	}
	if profile.Username == "" {
		slog.ErrorContext(ctx, "profile response carries no username")
		return nil, ErrUnexpected
	}

	return &profile, nil
}
