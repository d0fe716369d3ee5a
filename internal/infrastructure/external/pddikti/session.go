// Package pddikti implements the PDDikti admin portal client.
// This package handles the multi-step login handshake against the registry
// and the authenticated student search and detail lookups that follow it.
package pddikti

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HTTP SESSION
// One outbound identity: pooled connections plus the cookie state the portal
// establishes on the sign-in page and expects back on every later request.
// ══════════════════════════════════════════════════════════════════════════════

// SessionConfig contains configuration for an HTTP session.
type SessionConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Origin is sent as Origin/Referer on API requests (the portal checks it).
	Origin string

	// UserAgent identifies the session to the portal.
	UserAgent string
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig(origin string) SessionConfig {
	return SessionConfig{
		Timeout:   30 * time.Second,
		Origin:    origin,
		UserAgent: "Mozilla/5.0",
	}
}

// Session is a cookie-carrying HTTP client shared by the authentication
// pipeline and the query client.
type Session struct {
	config     SessionConfig
	httpClient *http.Client
}

// NewSession creates a new Session with a fresh cookie jar.
func NewSession(config SessionConfig) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0"
	}

	return &Session{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Jar:     jar,
		},
	}, nil
}

// Get issues a GET request and returns status and body.
func (s *Session) Get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	s.setHeaders(req, false)
	return s.do(req)
}

// PostForm issues a form-encoded POST request and returns status and body.
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	s.setHeaders(req, true)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	return s.do(req)
}

// setHeaders applies the browser profile the portal expects.
func (s *Session) setHeaders(req *http.Request, api bool) {
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if api || s.config.Origin == "" {
		req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if s.config.Origin != "" {
		req.Header.Set("Origin", s.config.Origin)
		req.Header.Set("Referer", s.config.Origin+"/")
	}
}

// do executes the request and drains the body.
func (s *Session) do(req *http.Request) (int, []byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}
