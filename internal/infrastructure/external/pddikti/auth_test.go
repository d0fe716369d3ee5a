package pddikti

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves the portal sign-in page and the API endpoints from one
// httptest server, so PortalURL and APIURL can both point at it.
type fakeRegistry struct {
	server *httptest.Server

	mu          sync.Mutex
	loginStatus int
	loginBody   string
	tokenBody   string
	loginCalls  int
	steps       []string
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()

	f := &fakeRegistry{
		loginStatus: 200,
		loginBody:   `{"result":{"session_data":{"i_iduser":12345,"i_idunit":"ORG01"}}}`,
		tokenBody:   `{"result":{"session_data":{"pm":"token-abc"}}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		f.step("signin")
		fmt.Fprint(w, "<html>signin</html>")
	})
	mux.HandleFunc("/login/login", func(w http.ResponseWriter, r *http.Request) {
		f.step("login")
		f.mu.Lock()
		f.loginCalls++
		status, body := f.loginStatus, f.loginBody
		f.mu.Unlock()

		require.NoError(t, r.ParseForm())
		user, err := base64.StdEncoding.DecodeString(r.PostForm.Get("data[username]"))
		require.NoError(t, err)
		assert.Equal(t, "operator", string(user))
		assert.Equal(t, "false", r.PostForm.Get("data[issso]"))

		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/isverified/", func(w http.ResponseWriter, r *http.Request) {
		f.step("isverified")
		assert.Equal(t, "/isverified/12345", r.URL.Path)
		fmt.Fprint(w, `{"result":true}`)
	})
	mux.HandleFunc("/login/roles/1", func(w http.ResponseWriter, r *http.Request) {
		f.step("roles")
		assert.Equal(t, "adm", r.URL.Query().Get("login"))
		fmt.Fprint(w, `{"result":[]}`)
	})
	mux.HandleFunc("/login/setlogin/", func(w http.ResponseWriter, r *http.Request) {
		f.step("setlogin")
		assert.True(t, strings.HasPrefix(r.URL.Path, "/login/setlogin/3/ORG01"))
		assert.Equal(t, "12345", r.URL.Query().Get("id_pengguna"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "operator", r.PostForm.Get("data[i_username]"))

		f.mu.Lock()
		body := f.tokenBody
		f.mu.Unlock()
		fmt.Fprint(w, body)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRegistry) step(name string) {
	f.mu.Lock()
	f.steps = append(f.steps, name)
	f.mu.Unlock()
}

func (f *fakeRegistry) seenSteps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.steps...)
}

func (f *fakeRegistry) setLogin(status int, body string) {
	f.mu.Lock()
	f.loginStatus = status
	f.loginBody = body
	f.mu.Unlock()
}

func (f *fakeRegistry) setToken(body string) {
	f.mu.Lock()
	f.tokenBody = body
	f.mu.Unlock()
}

func newTestAuthenticator(t *testing.T, f *fakeRegistry) (*Authenticator, *Session) {
	t.Helper()

	session, err := NewSession(DefaultSessionConfig(f.server.URL))
	require.NoError(t, err)

	cfg := DefaultAuthConfig("operator", "secret")
	cfg.PortalURL = f.server.URL
	cfg.APIURL = f.server.URL
	auth, err := NewAuthenticator(cfg, session)
	require.NoError(t, err)

	return auth, session
}

func TestAuthenticator_LoginRunsAllSteps(t *testing.T) {
	registry := newFakeRegistry(t)
	auth, _ := newTestAuthenticator(t, registry)

	sess, err := auth.Login(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "12345", sess.UserID)
	assert.Equal(t, "ORG01", sess.OrgID)
	assert.Equal(t, "token-abc", sess.Token)
	assert.False(t, sess.CreatedAt.IsZero())

	assert.Equal(t, []string{"signin", "login", "isverified", "roles", "setlogin"}, registry.seenSteps())
}

func TestAuthenticator_RejectedCredentials(t *testing.T) {
	registry := newFakeRegistry(t)
	registry.setLogin(401, `{"error":"bad credentials"}`)
	auth, _ := newTestAuthenticator(t, registry)

	sess, err := auth.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginRejected)
	assert.Nil(t, sess)

	// The handshake stops at the rejected step.
	assert.Equal(t, []string{"signin", "login"}, registry.seenSteps())
}

func TestAuthenticator_IncompleteSessionData(t *testing.T) {
	registry := newFakeRegistry(t)
	registry.setLogin(200, `{"result":{"session_data":{"i_iduser":12345}}}`)
	auth, _ := newTestAuthenticator(t, registry)

	sess, err := auth.Login(context.Background())
	require.ErrorIs(t, err, ErrLoginRejected)
	assert.Nil(t, sess)
}

func TestAuthenticator_MissingToken(t *testing.T) {
	registry := newFakeRegistry(t)
	registry.setToken(`{"result":{"session_data":{}}}`)
	auth, _ := newTestAuthenticator(t, registry)

	sess, err := auth.Login(context.Background())
	require.ErrorIs(t, err, ErrTokenMissing)
	assert.Nil(t, sess)
}

func TestAuthenticator_NumericAndStringIDs(t *testing.T) {
	// The registry is inconsistent about identifier types; both spellings must
	// produce the same session.
	registry := newFakeRegistry(t)
	registry.setLogin(200, `{"result":{"session_data":{"i_iduser":"12345","i_idunit":"ORG01"}}}`)
	auth, _ := newTestAuthenticator(t, registry)

	sess, err := auth.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345", sess.UserID)
	assert.Equal(t, "ORG01", sess.OrgID)
}

func TestAuthenticator_RequiresCredentials(t *testing.T) {
	session, err := NewSession(DefaultSessionConfig("http://example.invalid"))
	require.NoError(t, err)

	_, err = NewAuthenticator(AuthConfig{}, session)
	assert.Error(t, err)
}
