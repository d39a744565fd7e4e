package authclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/florianilch/authgate/internal/authclient"
)

// mockTransport captures HTTP requests and returns canned responses
type mockTransport struct {
	capturedRequest *http.Request
	capturedBody    []byte
	responseBody    string
	responseStatus  int
	err             error
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.capturedRequest = req
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		m.capturedBody = body
		if err := req.Body.Close(); err != nil {
			return nil, err
		}
	}

	if m.err != nil {
		return nil, m.err
	}

	return &http.Response{
		StatusCode: m.responseStatus,
		Body:       io.NopCloser(strings.NewReader(m.responseBody)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

func newClient(t *testing.T, transport *mockTransport) *authclient.Client {
	t.Helper()
	client, err := authclient.New("https://service.example", "client-1",
		authclient.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return client
}

func capturedForm(t *testing.T, transport *mockTransport) url.Values {
	t.Helper()
	form, err := url.ParseQuery(string(transport.capturedBody))
	if err != nil {
		t.Fatalf("request body is not form-encoded: %v", err)
	}
	return form
}

func TestExchangeCode(t *testing.T) {
	transport := &mockTransport{
		responseStatus: http.StatusOK,
		responseBody:   `{"access_token":"T1","refresh_token":"R1","expires_in":3600}`,
	}
	client := newClient(t, transport)

	token, err := client.ExchangeCode(context.Background(), "ABC", "verifier-1", "http://127.0.0.1:43117/callback")
	if err != nil {
		t.Fatalf("ExchangeCode() failed: %v", err)
	}

	if token.AccessToken != "T1" || token.RefreshToken != "R1" || token.ExpiresIn != 3600 {
		t.Errorf("unexpected token: %+v", token)
	}

	req := transport.capturedRequest
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if got := req.URL.String(); got != "https://service.example/o/token/" {
		t.Errorf("URL = %s, want https://service.example/o/token/", got)
	}
	if got := req.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}

	form := capturedForm(t, transport)
	for key, want := range map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     "client-1",
		"code":          "ABC",
		"code_verifier": "verifier-1",
		"redirect_uri":  "http://127.0.0.1:43117/callback",
	} {
		if got := form.Get(key); got != want {
			t.Errorf("form[%s] = %q, want %q", key, got, want)
		}
	}
}

func TestRefresh(t *testing.T) {
	transport := &mockTransport{
		responseStatus: http.StatusOK,
		responseBody:   `{"access_token":"T2","refresh_token":"R2","expires_in":1800}`,
	}
	client := newClient(t, transport)

	token, err := client.Refresh(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if token.AccessToken != "T2" {
		t.Errorf("AccessToken = %q, want T2", token.AccessToken)
	}

	form := capturedForm(t, transport)
	if got := form.Get("grant_type"); got != "refresh_token" {
		t.Errorf("grant_type = %q, want refresh_token", got)
	}
	if got := form.Get("refresh_token"); got != "R1" {
		t.Errorf("refresh_token = %q, want R1", got)
	}
	if form.Has("code_verifier") {
		t.Error("refresh request must not carry a code_verifier")
	}
}

func TestTokenErrorsAreNormalized(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{
			name:      "server error status",
			transport: &mockTransport{responseStatus: http.StatusInternalServerError, responseBody: `{"error":"boom"}`},
		},
		{
			name:      "unauthorized status",
			transport: &mockTransport{responseStatus: http.StatusUnauthorized, responseBody: `{"error":"invalid_grant"}`},
		},
		{
			name:      "malformed body",
			transport: &mockTransport{responseStatus: http.StatusOK, responseBody: `not json`},
		},
		{
			name:      "missing access token",
			transport: &mockTransport{responseStatus: http.StatusOK, responseBody: `{"refresh_token":"R1"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient(t, tt.transport)

			_, err := client.Refresh(context.Background(), "R1")
			if !errors.Is(err, authclient.ErrUnexpected) {
				t.Errorf("error = %v, want ErrUnexpected", err)
			}
			// Response internals never reach the caller's error message
			if strings.Contains(err.Error(), "boom") || strings.Contains(err.Error(), "invalid_grant") {
				t.Errorf("error message leaks response detail: %v", err)
			}
		})
	}
}

func TestTokenTransportErrorIsSurfaced(t *testing.T) {
	transport := &mockTransport{err: errors.New("connection refused")}
	client := newClient(t, transport)

	_, err := client.Refresh(context.Background(), "R1")
	if err == nil {
		t.Fatal("Refresh() succeeded, want error")
	}
	if errors.Is(err, authclient.ErrUnexpected) {
		t.Errorf("connection failure should not be normalized: %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("transport message not surfaced: %v", err)
	}
}

func TestFetchProfile(t *testing.T) {
	transport := &mockTransport{
		responseStatus: http.StatusOK,
		responseBody:   `{"username":"alice"}`,
	}
	client := newClient(t, transport)

	profile, err := client.FetchProfile(context.Background(), "T1")
	if err != nil {
		t.Fatalf("FetchProfile() failed: %v", err)
	}
	if profile.Username != "alice" {
		t.Errorf("Username = %q, want alice", profile.Username)
	}

	req := transport.capturedRequest
	if req.Method != http.MethodGet {
		t.Errorf("method = %s, want GET", req.Method)
	}
	if got := req.URL.String(); got != "https://service.example/api/me/" {
		t.Errorf("URL = %s, want https://service.example/api/me/", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer T1" {
		t.Errorf("Authorization = %q, want Bearer T1", got)
	}
}

func TestFetchProfileErrorIsNormalized(t *testing.T) {
	transport := &mockTransport{responseStatus: http.StatusForbidden, responseBody: `{"detail":"nope"}`}
	client := newClient(t, transport)

	_, err := client.FetchProfile(context.Background(), "T1")
	if !errors.Is(err, authclient.ErrUnexpected) {
		t.Errorf("error = %v, want ErrUnexpected", err)
	}
}
