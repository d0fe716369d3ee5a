package pddikti

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryRegistry extends the handshake endpoints with search and detail,
// scripting per-call statuses so session-rejection paths can be exercised.
type queryRegistry struct {
	server *httptest.Server

	mu             sync.Mutex
	logins         int
	searchStatuses []int
	searchCalls    int
	detailStatuses []int
	detailCalls    int
	errorBody      string
	lastKeyword    string
	lastToken      string
}

func newQueryRegistry(t *testing.T) *queryRegistry {
	t.Helper()

	q := &queryRegistry{}

	mux := http.NewServeMux()
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>signin</html>")
	})
	mux.HandleFunc("/login/login", func(w http.ResponseWriter, r *http.Request) {
		q.mu.Lock()
		q.logins++
		n := q.logins
		q.mu.Unlock()
		// A distinct token per handshake proves re-authentication happened.
		fmt.Fprintf(w, `{"result":{"session_data":{"i_iduser":"12345","i_idunit":"ORG01","pm":"unused-%d"}}}`, n)
	})
	mux.HandleFunc("/isverified/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":true}`)
	})
	mux.HandleFunc("/login/roles/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":[]}`)
	})
	mux.HandleFunc("/login/setlogin/", func(w http.ResponseWriter, r *http.Request) {
		q.mu.Lock()
		n := q.logins
		q.mu.Unlock()
		fmt.Fprintf(w, `{"result":{"session_data":{"pm":"token-%d"}}}`, n)
	})
	mux.HandleFunc("/mahasiswa/result", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		q.mu.Lock()
		i := q.searchCalls
		q.searchCalls++
		q.lastKeyword = r.PostForm.Get("data[keyword]")
		q.lastToken = r.URL.Query().Get("pm")
		var status int
		if i < len(q.searchStatuses) {
			status = q.searchStatuses[i]
		} else {
			status = 200
		}
		errorBody := q.errorBody
		q.mu.Unlock()

		if status != 200 {
			w.WriteHeader(status)
			fmt.Fprint(w, errorBody)
			return
		}
		fmt.Fprint(w, `{"result":{"data":[
			{"id_reg_pd":"reg-1","nm_pd":"Budi Santoso","nipd":"2011001","namapt":"Universitas A","namaprodi":"Informatika"},
			{"id_reg_pd":"reg-2","nm_pd":"Budi Hartono","nipd":"2011002","namapt":"Universitas B","namaprodi":"Matematika"}
		]}}`)
	})
	mux.HandleFunc("/mahasiswa/detail/", func(w http.ResponseWriter, r *http.Request) {
		q.mu.Lock()
		i := q.detailCalls
		q.detailCalls++
		var status int
		if i < len(q.detailStatuses) {
			status = q.detailStatuses[i]
		} else {
			status = 200
		}
		q.mu.Unlock()

		if status != 200 {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, `{"result":{"nm_pd":"Budi Santoso","nipd":"2011001","jk":"L"}}`)
	})

	q.server = httptest.NewServer(mux)
	t.Cleanup(q.server.Close)
	return q
}

func (q *queryRegistry) loginCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.logins
}

func (q *queryRegistry) lastSearch() (keyword, token string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastKeyword, q.lastToken
}

func newTestClient(t *testing.T, q *queryRegistry) *Client {
	t.Helper()

	session, err := NewSession(DefaultSessionConfig(q.server.URL))
	require.NoError(t, err)

	authCfg := DefaultAuthConfig("operator", "secret")
	authCfg.PortalURL = q.server.URL
	authCfg.APIURL = q.server.URL
	auth, err := NewAuthenticator(authCfg, session)
	require.NoError(t, err)

	return NewClient(DefaultClientConfig(q.server.URL), session, auth)
}

func TestClient_SearchAuthenticatesLazily(t *testing.T) {
	registry := newQueryRegistry(t)
	client := newTestClient(t, registry)

	results, err := client.Search(context.Background(), "budi")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "reg-1", results[0].RegistrationID)
	assert.Equal(t, "Budi Santoso", results[0].Name)
	assert.Equal(t, "2011001", results[0].NIM)
	keyword, token := registry.lastSearch()
	assert.Equal(t, "budi", keyword)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, 1, registry.loginCount())
}

func TestClient_SessionIsReusedAcrossQueries(t *testing.T) {
	registry := newQueryRegistry(t)
	client := newTestClient(t, registry)

	_, err := client.Search(context.Background(), "budi")
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "siti")
	require.NoError(t, err)

	assert.Equal(t, 1, registry.loginCount())
}

func TestClient_RejectedSessionReauthenticatesOnce(t *testing.T) {
	registry := newQueryRegistry(t)
	registry.searchStatuses = []int{401, 200}
	client := newTestClient(t, registry)

	results, err := client.Search(context.Background(), "budi")
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.Equal(t, 2, registry.loginCount())
	_, token := registry.lastSearch()
	assert.Equal(t, "token-2", token)
}

func TestClient_SecondRejectionSurfacesAsExpired(t *testing.T) {
	registry := newQueryRegistry(t)
	registry.searchStatuses = []int{403, 403}
	client := newTestClient(t, registry)

	_, err := client.Search(context.Background(), "budi")
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 2, registry.loginCount())

	// The rejected session was discarded; the next query authenticates fresh.
	_, err = client.Search(context.Background(), "budi")
	require.NoError(t, err)
	assert.Equal(t, 3, registry.loginCount())
}

func TestClient_ServerErrorDegradesToEmptyResult(t *testing.T) {
	registry := newQueryRegistry(t)
	registry.searchStatuses = []int{500}
	client := newTestClient(t, registry)

	results, err := client.Search(context.Background(), "budi")
	require.NoError(t, err)
	assert.Empty(t, results)

	// A 500 is not an auth rejection, so no re-authentication happened.
	assert.Equal(t, 1, registry.loginCount())
}

func TestClient_ServerErrorLogsResponseBody(t *testing.T) {
	registry := newQueryRegistry(t)
	registry.searchStatuses = []int{500}
	registry.errorBody = `{"error":"sistem sedang maintenance"}`
	client := newTestClient(t, registry)

	var buf bytes.Buffer
	client.logger = slog.New(slog.NewTextHandler(&buf, nil))

	results, err := client.Search(context.Background(), "budi")
	require.NoError(t, err)
	assert.Empty(t, results)

	logged := buf.String()
	assert.Contains(t, logged, "status=500")
	assert.Contains(t, logged, "sistem sedang maintenance")
}

func TestClient_Detail(t *testing.T) {
	registry := newQueryRegistry(t)
	client := newTestClient(t, registry)

	detail, err := client.Detail(context.Background(), "reg-1")
	require.NoError(t, err)

	assert.Equal(t, "Budi Santoso", detail.StringField("nm_pd"))
	assert.Equal(t, "2011001", detail.StringField("nipd"))
	assert.Equal(t, "", detail.StringField("missing"))
}

func TestClient_DetailRejectionReauthenticates(t *testing.T) {
	registry := newQueryRegistry(t)
	registry.detailStatuses = []int{401, 200}
	client := newTestClient(t, registry)

	detail, err := client.Detail(context.Background(), "reg-1")
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", detail.StringField("nm_pd"))
	assert.Equal(t, 2, registry.loginCount())
}

func TestClient_SessionAge(t *testing.T) {
	registry := newQueryRegistry(t)
	client := newTestClient(t, registry)

	assert.Zero(t, client.SessionAge())

	_, err := client.Search(context.Background(), "budi")
	require.NoError(t, err)
	assert.Greater(t, client.SessionAge().Nanoseconds(), int64(0))
}
