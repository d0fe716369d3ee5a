package pddikti

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUERY CLIENT
// Issues authenticated search and detail lookups. The session is acquired
// lazily on first use, cached in memory, and discarded on rejection; the
// discard-and-reauthenticate sequence is one critical section so concurrent
// queries cannot both trigger a redundant handshake.
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the query client.
type ClientConfig struct {
	// APIURL is the portal's API host.
	APIURL string

	// RoleID is repeated as a query parameter on every authenticated request.
	RoleID string

	// SearchLimit caps the number of rows per search.
	SearchLimit int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(apiURL string) ClientConfig {
	return ClientConfig{
		APIURL:      apiURL,
		RoleID:      "3",
		SearchLimit: 20,
	}
}

// Client is the authenticated registry query client.
type Client struct {
	config  ClientConfig
	session *Session
	auth    *Authenticator
	logger  *slog.Logger

	// Cached session. Guarded by mu; the check/discard/reauthenticate
	// sequence must happen under the lock as a single step.
	mu      sync.Mutex
	current *AuthSession
}

// NewClient creates a query client sharing the authenticator's HTTP session.
func NewClient(config ClientConfig, session *Session, auth *Authenticator) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.RoleID == "" {
		config.RoleID = "3"
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 20
	}

	return &Client{
		config:  config,
		session: session,
		auth:    auth,
		logger:  config.Logger,
	}
}

// activeSession returns the cached session, running the login handshake if
// none is held.
func (c *Client) activeSession(ctx context.Context) (*AuthSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return c.current, nil
	}

	sess, err := c.auth.Login(ctx)
	if err != nil {
		return nil, err
	}
	c.current = sess
	return sess, nil
}

// discard drops the cached session, but only if it is still the one the
// caller used. A concurrent query that already replaced it must not have its
// fresh session thrown away.
func (c *Client) discard(used *AuthSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == used {
		c.current = nil
	}
}

// SessionAge returns how long the current session has been held, or zero
// when no session is cached.
func (c *Client) SessionAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return time.Since(c.current.CreatedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH
// ══════════════════════════════════════════════════════════════════════════════

// Search runs a keyword search over student records. A rejected session is
// discarded and re-authenticated exactly once; a second rejection surfaces as
// ErrSessionExpired. Any other HTTP failure yields an empty result set.
func (c *Client) Search(ctx context.Context, keyword string) ([]SearchResult, error) {
	var results []SearchResult
	err := c.withSession(ctx, func(sess *AuthSession) (int, []byte, error) {
		searchURL := fmt.Sprintf("%s/mahasiswa/result?limit=%d&page=0&id_pengguna=%s&id_role=%s&pm=%s",
			c.config.APIURL, c.config.SearchLimit,
			url.QueryEscape(sess.UserID), url.QueryEscape(c.config.RoleID), url.QueryEscape(sess.Token))
		form := url.Values{
			"data[keyword]": {keyword},
			"data[id_sp]":   {""},
			"data[id_sms]":  {""},
			"data[vld]":     {"0"},
		}

		status, body, err := c.session.PostForm(ctx, searchURL, form)
		if err != nil {
			return 0, nil, &NetworkError{Step: "search", Err: err}
		}
		if status != 200 {
			return status, body, nil
		}

		var envelope searchEnvelopeDTO
		if err := json.Unmarshal(body, &envelope); err != nil {
			return status, body, fmt.Errorf("pddikti: decode search response: %w", err)
		}
		results = envelope.Result.Data
		return status, body, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("search completed", "keyword", keyword, "results", len(results))
	return results, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DETAIL
// ══════════════════════════════════════════════════════════════════════════════

// Detail fetches the full record for one registration id. Session handling
// matches Search; any non-authentication HTTP failure yields an empty record.
func (c *Client) Detail(ctx context.Context, registrationID string) (StudentDetail, error) {
	detail := StudentDetail{}
	err := c.withSession(ctx, func(sess *AuthSession) (int, []byte, error) {
		detailURL := fmt.Sprintf("%s/mahasiswa/detail/%s?id_pengguna=%s&id_unit=%s&id_role=%s&pm=%s",
			c.config.APIURL, url.PathEscape(registrationID),
			url.QueryEscape(sess.UserID), url.QueryEscape(sess.OrgID),
			url.QueryEscape(c.config.RoleID), url.QueryEscape(sess.Token))

		status, body, err := c.session.Get(ctx, detailURL)
		if err != nil {
			return 0, nil, &NetworkError{Step: "detail", Err: err}
		}
		if status != 200 {
			return status, body, nil
		}

		var envelope detailEnvelopeDTO
		if err := json.Unmarshal(body, &envelope); err != nil {
			return status, body, fmt.Errorf("pddikti: decode detail response: %w", err)
		}
		if envelope.Result != nil {
			detail = envelope.Result
		}
		return status, body, nil
	})
	if err != nil {
		return nil, err
	}

	return detail, nil
}

// withSession runs one authenticated request, re-authenticating at most once
// when the registry rejects the session mid-query.
func (c *Client) withSession(ctx context.Context, do func(sess *AuthSession) (int, []byte, error)) error {
	sess, err := c.activeSession(ctx)
	if err != nil {
		return err
	}

	status, body, err := do(sess)
	if err != nil {
		return err
	}
	if !isAuthRejection(status) {
		if status != 200 {
			// Degrades to an empty result; the next query starts fresh.
			c.logger.Warn("registry request failed",
				"status", status, "body", bodySnippet(body))
		}
		return nil
	}

	// Rejected: discard and retry with a fresh session, once.
	c.logger.Warn("session rejected by registry, re-authenticating", "status", status)
	c.discard(sess)

	sess, err = c.activeSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	status, body, err = do(sess)
	if err != nil {
		return err
	}
	if isAuthRejection(status) {
		c.discard(sess)
		return fmt.Errorf("%w: status %d", ErrSessionExpired, status)
	}
	if status != 200 {
		c.logger.Warn("registry request failed after re-authentication",
			"status", status, "body", bodySnippet(body))
	}
	return nil
}

// bodySnippet bounds error-page bodies so one log line stays readable.
func bodySnippet(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
