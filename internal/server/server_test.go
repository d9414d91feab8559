package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/greadersync/internal/database"
	"github.com/bryan-buckman/greadersync/internal/mirror"
	"github.com/bryan-buckman/greadersync/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	syncRes  mirror.SyncResult
	syncErr  error
	pushRes  mirror.PushResult
	pushErr  error
	pushes   int
	remote   uint64
	countErr error
}

func (f *fakeSyncer) Sync(ctx context.Context) (mirror.SyncResult, error) {
	return f.syncRes, f.syncErr
}

func (f *fakeSyncer) Push(ctx context.Context) (mirror.PushResult, error) {
	f.pushes++
	return f.pushRes, f.pushErr
}

func (f *fakeSyncer) RemoteUnreadCount(ctx context.Context) (uint64, error) {
	return f.remote, f.countErr
}

type fixture struct {
	db     *database.DB
	syncer *fakeSyncer
	srv    *Server
	feedID int64
	items  []int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	folderID, err := db.GetOrCreateFolder("Tech")
	require.NoError(t, err)
	feedID, err := db.UpsertFeed(&model.Feed{FolderID: &folderID, StreamID: "feed/https://go.dev/blog/feed.atom", Title: "Go Blog", LastSeen: time.Now()})
	require.NoError(t, err)
	loose, err := db.UpsertFeed(&model.Feed{StreamID: "feed/9", Title: "Loose", LastSeen: time.Now()})
	require.NoError(t, err)

	f := &fixture{db: db, syncer: &fakeSyncer{}, feedID: feedID}
	now := time.Now()
	for i, remote := range []string{"a", "b", "c"} {
		feed := feedID
		if i == 2 {
			feed = loose
		}
		id, _, err := db.AddItem(&model.Item{RemoteID: remote, FeedID: feed, Title: remote, PublishedAt: now, FetchedAt: now, SeenAt: now})
		require.NoError(t, err)
		f.items = append(f.items, id)
	}
	f.srv = New(db, f.syncer, nil)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode(t, rec)["status"])
}

func TestItems(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["items"], 3)

	rec = f.do(t, http.MethodGet, "/api/items?feed="+itoa(f.feedID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec)["items"], 2)

	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/items?feed=9999", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/items?feed=x", "").Code)
	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/items?unread=maybe", "").Code)
}

func TestMarkRead_PushesBestEffort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.syncer.pushRes = mirror.PushResult{Pending: 1}
	f.syncer.pushErr = errors.New("upstream down")

	rec := f.do(t, http.MethodPost, "/api/mark-read", `{"item_ids":[`+itoa(f.items[0])+`]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "upstream down", body["push_error"])
	require.Equal(t, 1, f.syncer.pushes)

	pending, err := f.db.GetPendingReads()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	rec = f.do(t, http.MethodGet, "/api/items?unread=true", "")
	require.Len(t, decode(t, rec)["items"], 2)

	require.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/mark-read", "{").Code)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.syncer.syncRes = mirror.SyncResult{Pull: mirror.PullResult{Pages: 2, NewItems: 5}, Push: mirror.PushResult{Pushed: 1}}

	rec := f.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.EqualValues(t, 5, body["new_items"])
	require.EqualValues(t, 1, body["pushed"])

	f.syncer.syncErr = errors.New("login: token not found")
	rec = f.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "login: token not found", decode(t, rec)["error"])
}

func TestUnreadCount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.syncer.remote = 42

	body := decode(t, f.do(t, http.MethodGet, "/api/unread-count", ""))
	require.EqualValues(t, 3, body["local"])
	require.EqualValues(t, 42, body["remote"])

	f.syncer.countErr = errors.New("unread count: invalid response body")
	body = decode(t, f.do(t, http.MethodGet, "/api/unread-count", ""))
	require.EqualValues(t, 3, body["local"])
	require.NotContains(t, body, "remote")
	require.Equal(t, "unread count: invalid response body", body["remote_error"])
}

func TestSettings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/settings", ""))
	require.EqualValues(t, 15, body["polling_interval"])
	require.NotContains(t, body, "last_sync")

	body = decode(t, f.do(t, http.MethodPost, "/api/settings", `{"polling_interval":3}`))
	require.EqualValues(t, database.MinPollingIntervalMinutes, body["polling_interval"])

	f.do(t, http.MethodPost, "/api/settings", `{"polling_interval":60}`)
	require.NoError(t, f.db.SetLastSync(time.Now()))
	body = decode(t, f.do(t, http.MethodGet, "/api/settings", ""))
	require.EqualValues(t, 60, body["polling_interval"])
	require.Contains(t, body, "last_sync")
}

func TestCleanup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.db.MarkItemsRead(f.items[:2]))
	require.NoError(t, f.db.MarkReadSynced(f.items[:1]))

	body := decode(t, f.do(t, http.MethodPost, "/api/cleanup", ""))
	require.EqualValues(t, 1, body["deleted"])
}

func TestSidebarAndExport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	body := decode(t, f.do(t, http.MethodGet, "/api/sidebar", ""))
	require.Len(t, body["folders"], 1)
	require.Len(t, body["unfiled"], 1)

	rec := f.do(t, http.MethodGet, "/api/export-opml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), `xmlUrl="https://go.dev/blog/feed.atom"`)
	require.Contains(t, rec.Body.String(), `text="Loose"`)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
