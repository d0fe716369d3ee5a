package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nant-dev/pddikti-bot/internal/domain/access"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/pddikti"
	"github.com/nant-dev/pddikti-bot/internal/infrastructure/external/telegram"
	ifacetg "github.com/nant-dev/pddikti-bot/internal/interface/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST FAKES
// The handlers send through a real telegram.Client, so tests run a fake Bot
// API server and inspect what was sent.
// ══════════════════════════════════════════════════════════════════════════════

type sentMessage struct {
	Method string
	Body   map[string]any
}

func (m sentMessage) text() string {
	s, _ := m.Body["text"].(string)
	return s
}

type botAPIRecorder struct {
	server *httptest.Server

	mu   sync.Mutex
	sent []sentMessage
}

func newBotAPIRecorder(t *testing.T) *botAPIRecorder {
	t.Helper()

	rec := &botAPIRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[len("/bottest-token/"):]

		var body map[string]any
		if r.ContentLength > 0 {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		}

		rec.mu.Lock()
		rec.sent = append(rec.sent, sentMessage{Method: method, Body: body})
		rec.mu.Unlock()

		if method == "answerCallbackQuery" {
			fmt.Fprint(w, `{"ok":true,"result":true}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":1,"type":"private"}}}`)
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (rec *botAPIRecorder) client(t *testing.T) *telegram.Client {
	t.Helper()
	cfg := telegram.DefaultClientConfig("test-token")
	cfg.BaseURL = rec.server.URL
	cfg.Timeout = 5 * time.Second
	return telegram.NewClient(cfg)
}

func (rec *botAPIRecorder) sentMessages(method string) []sentMessage {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []sentMessage
	for _, m := range rec.sent {
		if m.Method == method {
			out = append(out, m)
		}
	}
	return out
}

func (rec *botAPIRecorder) lastText(t *testing.T) string {
	t.Helper()
	msgs := rec.sentMessages("sendMessage")
	require.NotEmpty(t, msgs, "no message was sent")
	return msgs[len(msgs)-1].text()
}

// memoryStore is an in-memory access.UserStore.
type memoryStore struct {
	mu    sync.Mutex
	users []access.AllowedUser
}

func (s *memoryStore) Grant(ctx context.Context, user access.AllowedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == user.ID {
			return access.ErrAlreadyAllowed
		}
	}
	s.users = append(s.users, user)
	return nil
}

func (s *memoryStore) Revoke(ctx context.Context, id access.TelegramID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return access.ErrNotAllowed
}

func (s *memoryStore) IsAllowed(ctx context.Context, id access.TelegramID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) List(ctx context.Context) ([]access.AllowedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]access.AllowedUser(nil), s.users...), nil
}

// memoryLog is an in-memory access.ActivityLog.
type memoryLog struct {
	mu      sync.Mutex
	entries []access.ActivityEntry
}

func (l *memoryLog) Record(ctx context.Context, entry access.ActivityEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryLog) Recent(ctx context.Context, limit int) ([]access.ActivityEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]access.ActivityEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (l *memoryLog) actions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeRegistry is a scripted handler.Registry.
type fakeRegistry struct {
	mu          sync.Mutex
	results     []pddikti.SearchResult
	searchErr   error
	detail      pddikti.StudentDetail
	detailErr   error
	searchCalls int
	detailCalls int
}

func (r *fakeRegistry) Search(ctx context.Context, keyword string) ([]pddikti.SearchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchCalls++
	return r.results, r.searchErr
}

func (r *fakeRegistry) Detail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detailCalls++
	return r.detail, r.detailErr
}

// memoryCache is an in-memory handler.SearchCache.
type memoryCache struct {
	mu       sync.Mutex
	searches map[string][]pddikti.SearchResult
	details  map[string]pddikti.StudentDetail
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		searches: map[string][]pddikti.SearchResult{},
		details:  map[string]pddikti.StudentDetail{},
	}
}

var errCacheMiss = fmt.Errorf("cache miss")

func (c *memoryCache) GetSearch(ctx context.Context, keyword string) ([]pddikti.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.searches[keyword]; ok {
		return r, nil
	}
	return nil, errCacheMiss
}

func (c *memoryCache) SetSearch(ctx context.Context, keyword string, results []pddikti.SearchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches[keyword] = results
	return nil
}

func (c *memoryCache) GetDetail(ctx context.Context, registrationID string) (pddikti.StudentDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.details[registrationID]; ok {
		return d, nil
	}
	return nil, errCacheMiss
}

func (c *memoryCache) SetDetail(ctx context.Context, registrationID string, detail pddikti.StudentDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[registrationID] = detail
	return nil
}

// commandCtx builds a CommandContext for one incoming command.
func commandCtx(client *telegram.Client, userID int64, username, args string) ifacetg.CommandContext {
	return ifacetg.CommandContext{
		TelegramID: userID,
		Username:   username,
		ChatID:     userID,
		Args:       args,
		Message: &telegram.Message{
			Chat: &telegram.Chat{ID: userID, Type: "private"},
			From: &telegram.User{ID: userID, Username: username},
		},
		Client: client,
	}
}
