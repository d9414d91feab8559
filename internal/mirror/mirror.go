// Package mirror keeps a local copy of the server's unread items and pushes
// local read marks back upstream.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bryan-buckman/greadersync/internal/database"
	"github.com/bryan-buckman/greadersync/internal/greader"
)

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel item writers for PostgreSQL
	MaxConcurrencyPostgres = 10
	// MaxConcurrencySQLite is the number of parallel item writers for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
	// DefaultMaxPages caps a single pull.
	DefaultMaxPages = 200
)

// ErrPageLimit is returned when a pull stops before the stream is exhausted.
var ErrPageLimit = errors.New("page limit reached before end of stream")

// Client is the narrow Google Reader surface the mirror needs.
// *greader.Session satisfies it.
type Client interface {
	ListUnread(ctx context.Context, continuation string) (*greader.ListResponse, error)
	MarkItemRead(ctx context.Context, itemID string) (string, error)
	UnreadCount(ctx context.Context) (uint64, error)
}

// tokenResetter is implemented by clients that cache credentials.
type tokenResetter interface {
	ClearTokens()
}

// Options tune a Mirror. Zero values pick defaults.
type Options struct {
	MaxPages     int
	RequestDelay time.Duration
	Metrics      *Metrics
	Logger       *slog.Logger
}

// Mirror syncs a Store with a Google Reader server. Calls on the client are
// serialized because a greader.Session is not safe for concurrent use; a
// caller waiting for its turn gives up when its context ends.
type Mirror struct {
	client      Client
	db          database.Store
	turn        chan struct{}
	pacer       *pacer
	concurrency int
	maxPages    int
	metrics     *Metrics
	log         *slog.Logger
	now         func() time.Time
}

// New creates a mirror with writer concurrency based on database type.
func New(client Client, db database.Store, opts Options) *Mirror {
	concurrency := MaxConcurrencySQLite
	if db.SupportsHighConcurrency() {
		concurrency = MaxConcurrencyPostgres
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mirror{
		client:      client,
		db:          db,
		turn:        make(chan struct{}, 1),
		pacer:       newPacer(opts.RequestDelay),
		concurrency: concurrency,
		maxPages:    opts.MaxPages,
		metrics:     opts.Metrics,
		log:         opts.Logger,
		now:         time.Now,
	}
}

// PullResult summarizes one pull.
type PullResult struct {
	Pages      int
	Items      int
	NewItems   int
	Reconciled int64
}

// PushResult summarizes one push.
type PushResult struct {
	Pushed  int
	Pending int
}

// Pull drains the unread stream page by page into the store. After a
// complete drain, local unread items the server no longer reported are
// marked read.
func (m *Mirror) Pull(ctx context.Context) (PullResult, error) {
	if err := m.acquire(ctx); err != nil {
		return PullResult{}, fmt.Errorf("pull: %w", err)
	}
	defer m.release()
	return m.pull(ctx)
}

func (m *Mirror) pull(ctx context.Context) (PullResult, error) {
	start := m.now()
	var res PullResult
	cursor := ""
	for {
		if res.Pages >= m.maxPages {
			m.metrics.Failures.WithLabelValues("pull").Inc()
			return res, fmt.Errorf("pull: %w (%d pages)", ErrPageLimit, m.maxPages)
		}
		if err := m.pacer.wait(ctx); err != nil {
			return res, fmt.Errorf("pull: %w", err)
		}
		page, err := m.client.ListUnread(ctx, cursor)
		if err != nil {
			m.fail("pull", err)
			return res, fmt.Errorf("pull page %d: %w", res.Pages+1, err)
		}
		res.Pages++
		m.metrics.Pages.Inc()

		added, err := m.storePage(ctx, page.Items, start)
		if err != nil {
			m.metrics.Failures.WithLabelValues("pull").Inc()
			return res, fmt.Errorf("pull page %d: store: %w", res.Pages, err)
		}
		res.Items += len(page.Items)
		res.NewItems += added
		m.metrics.ItemsStored.Add(float64(added))

		if !page.HasMore() {
			break
		}
		if page.Continuation == cursor {
			m.metrics.Failures.WithLabelValues("pull").Inc()
			return res, fmt.Errorf("pull: server repeated continuation %q", cursor)
		}
		cursor = page.Continuation
	}

	reconciled, err := m.db.ReconcileUnread(start)
	if err != nil {
		return res, fmt.Errorf("pull: reconcile: %w", err)
	}
	res.Reconciled = reconciled
	m.log.Info("pulled unread items", "pages", res.Pages, "items", res.Items, "new", res.NewItems, "read_elsewhere", reconciled)
	return res, nil
}

// Push sends pending local read marks upstream. A mark stays pending unless
// the server answers OK. The first request error stops the push.
func (m *Mirror) Push(ctx context.Context) (PushResult, error) {
	if err := m.acquire(ctx); err != nil {
		return PushResult{}, fmt.Errorf("push: %w", err)
	}
	defer m.release()
	return m.push(ctx)
}

func (m *Mirror) push(ctx context.Context) (PushResult, error) {
	pending, err := m.db.GetPendingReads()
	if err != nil {
		return PushResult{}, fmt.Errorf("push: load pending: %w", err)
	}

	var (
		synced  []int64
		pushErr error
	)
	for _, item := range pending {
		if err := m.pacer.wait(ctx); err != nil {
			pushErr = err
			break
		}
		resp, err := m.client.MarkItemRead(ctx, item.RemoteID)
		if err != nil {
			m.fail("push", err)
			pushErr = fmt.Errorf("mark %s: %w", item.RemoteID, err)
			break
		}
		if strings.TrimSpace(resp) != "OK" {
			m.metrics.Failures.WithLabelValues("push").Inc()
			m.log.Warn("server did not acknowledge read mark", "item", item.RemoteID, "response", strings.TrimSpace(resp))
			continue
		}
		synced = append(synced, item.ID)
	}

	if err := m.db.MarkReadSynced(synced); err != nil {
		return PushResult{}, fmt.Errorf("push: record synced: %w", err)
	}
	m.metrics.ReadsPushed.Add(float64(len(synced)))
	res := PushResult{Pushed: len(synced), Pending: len(pending) - len(synced)}
	if len(pending) > 0 {
		m.log.Info("pushed read marks", "pushed", res.Pushed, "pending", res.Pending)
	}
	if pushErr != nil {
		return res, fmt.Errorf("push: %w", pushErr)
	}
	return res, nil
}

// SyncResult combines a push and the pull that follows it.
type SyncResult struct {
	Push PushResult
	Pull PullResult
}

// Sync pushes local read marks, then pulls the unread stream. A failed push
// does not prevent the pull.
func (m *Mirror) Sync(ctx context.Context) (SyncResult, error) {
	if err := m.acquire(ctx); err != nil {
		return SyncResult{}, fmt.Errorf("sync: %w", err)
	}
	defer m.release()

	var res SyncResult
	var pushErr, pullErr error
	res.Push, pushErr = m.push(ctx)
	if pushErr != nil {
		m.log.Warn("push failed", "error", pushErr)
	}
	res.Pull, pullErr = m.pull(ctx)
	if err := errors.Join(pushErr, pullErr); err != nil {
		return res, err
	}

	now := m.now()
	if err := m.db.SetLastSync(now); err != nil {
		return res, fmt.Errorf("record last sync: %w", err)
	}
	m.metrics.LastSync.Set(float64(now.Unix()))
	return res, nil
}

// RemoteUnreadCount asks the server for its unread count. Servers that do not
// implement the endpoint, FreshRSS among them, return a greader.ParseError.
func (m *Mirror) RemoteUnreadCount(ctx context.Context) (uint64, error) {
	if err := m.acquire(ctx); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	defer m.release()
	n, err := m.client.UnreadCount(ctx)
	if err != nil {
		m.fail("unread_count", err)
		return 0, err
	}
	return n, nil
}

// acquire waits for exclusive use of the client or for ctx to end.
func (m *Mirror) acquire(ctx context.Context) error {
	select {
	case m.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mirror) release() {
	<-m.turn
}

// fail counts err and drops cached tokens the server rejected, so the next
// call logs in again.
func (m *Mirror) fail(op string, err error) {
	m.metrics.Failures.WithLabelValues(op).Inc()
	if !errors.Is(err, greader.ErrUnauthorized) {
		return
	}
	if r, ok := m.client.(tokenResetter); ok {
		m.log.Warn("server rejected auth token, clearing session", "op", op)
		r.ClearTokens()
	}
}
