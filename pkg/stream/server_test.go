package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/folderwatch/pkg/journal"
	"github.com/0xmhha/folderwatch/pkg/watcher"
)

func newTestServer(t *testing.T, store journal.Store) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(0)
	srv := httptest.NewServer(NewRouter(NewServer(Config{
		Hub:          hub,
		Store:        store,
		Root:         "/watched",
		WriteTimeout: time.Second,
	})))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func seed(t *testing.T, store journal.Store, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, store.Append(&journal.Entry{
			Root:   "/watched",
			Action: watcher.ActionModified,
			Name:   name,
		}))
	}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEntry(t *testing.T, conn *websocket.Conn) journal.Entry {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var e journal.Entry
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestRouter_Healthz(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health healthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "/watched", health.Root)
}

func TestRouter_Changes(t *testing.T) {
	store := journal.NewMemoryStore(0)
	seed(t, store, "a", "b", "c", "d")
	_, srv := newTestServer(t, store)

	tests := []struct {
		name   string
		query  string
		status int
		want   []string
	}{
		{"all", "", http.StatusOK, []string{"a", "b", "c", "d"}},
		{"newest two", "?limit=2", http.StatusOK, []string{"c", "d"}},
		{"since", "?since=2", http.StatusOK, []string{"c", "d"}},
		{"since with limit", "?since=1&limit=1", http.StatusOK, []string{"b"}},
		{"since past end", "?since=10", http.StatusOK, []string{}},
		{"bad limit", "?limit=zero", http.StatusBadRequest, nil},
		{"negative limit", "?limit=-1", http.StatusBadRequest, nil},
		{"bad since", "?since=-1", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, srv.URL+"/api/v1/changes"+tt.query)
			require.Equal(t, tt.status, resp.StatusCode, string(body))
			if tt.want == nil {
				assert.Contains(t, string(body), `"error"`)
				return
			}

			var entries []journal.Entry
			require.NoError(t, json.Unmarshal(body, &entries))
			got := make([]string, 0, len(entries))
			for _, e := range entries {
				got = append(got, e.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouter_ChangesActionIsText(t *testing.T) {
	store := journal.NewMemoryStore(0)
	seed(t, store, "a")
	_, srv := newTestServer(t, store)

	_, body := get(t, srv.URL+"/api/v1/changes")
	assert.Contains(t, string(body), `"action":"MODIFIED"`)
}

func TestRouter_Summary(t *testing.T) {
	store := journal.NewMemoryStore(0)
	seed(t, store, "hot", "hot", "hot", "cold")
	require.NoError(t, store.Append(&journal.Entry{Root: "/watched", Action: watcher.ActionOverflow}))
	_, srv := newTestServer(t, store)

	resp, body := get(t, srv.URL+"/api/v1/summary?top=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary summaryResponse
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, 5, summary.Stats.Count)
	assert.Equal(t, 1, summary.Stats.Overflows)
	assert.Equal(t, 4, summary.Stats.ByAction["MODIFIED"])
	require.Len(t, summary.Top, 1)
	assert.Equal(t, "hot", summary.Top[0].Name)
}

func TestRouter_JournalDisabled(t *testing.T) {
	_, srv := newTestServer(t, nil)

	for _, path := range []string{"/api/v1/changes", "/api/v1/summary", "/api/v1/stream?since=0"} {
		resp, _ := get(t, srv.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestRouter_NotFound(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, _ := get(t, srv.URL+"/api/v2/changes")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_LiveEntries(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish(journal.Entry{Seq: 1, Root: "/watched", Action: watcher.ActionAdded, Name: "new.txt"})
	hub.Publish(journal.Entry{Seq: 2, Root: "/watched", Action: watcher.ActionOverflow})

	first := readEntry(t, conn)
	assert.Equal(t, watcher.ActionAdded, first.Action)
	assert.Equal(t, "new.txt", first.Name)

	second := readEntry(t, conn)
	assert.Equal(t, watcher.ActionOverflow, second.Action)
	assert.Empty(t, second.Name)
}

func TestStream_ReplaysBacklog(t *testing.T) {
	store := journal.NewMemoryStore(0)
	seed(t, store, "a", "b", "c")
	hub, srv := newTestServer(t, store)

	conn := dial(t, srv, "?since=1")
	assert.Equal(t, "b", readEntry(t, conn).Name)
	assert.Equal(t, "c", readEntry(t, conn).Name)

	// An entry already replayed is not sent twice.
	hub.Publish(journal.Entry{Seq: 3, Root: "/watched", Action: watcher.ActionModified, Name: "c"})
	hub.Publish(journal.Entry{Seq: 4, Root: "/watched", Action: watcher.ActionModified, Name: "d"})
	assert.Equal(t, "d", readEntry(t, conn).Name)
}

func TestStream_ClientDisconnectUnsubscribes(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 },
		time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestStream_HubCloseEndsStream(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 },
		time.Second, 5*time.Millisecond)
	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 100, false},
		{"5", 5, false},
		{"5000", maxLimit, false},
		{"0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.in, defaultLimit)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
