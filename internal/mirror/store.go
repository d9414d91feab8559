package mirror

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/greadersync/internal/greader"
	"github.com/bryan-buckman/greadersync/internal/model"
)

const (
	labelPrefix     = "user/-/label/"
	unknownStreamID = "feed/unknown"
)

// storePage persists one page of items. Feeds are resolved first, then the
// items are written sequentially (SQLite) or by a worker pool (PostgreSQL).
// Returns the number of new items.
func (m *Mirror) storePage(ctx context.Context, items []greader.Item, seen time.Time) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	feedIDs, err := m.resolveFeeds(items, seen)
	if err != nil {
		return 0, err
	}

	records := make([]*model.Item, 0, len(items))
	for _, it := range items {
		rec := toItem(it, seen)
		rec.FeedID = feedIDs[streamID(it)]
		records = append(records, rec)
	}

	if m.concurrency <= 1 {
		return m.storeSequential(ctx, records)
	}
	return m.storeParallel(ctx, records)
}

// resolveFeeds upserts every distinct origin of the page and returns their ids.
func (m *Mirror) resolveFeeds(items []greader.Item, seen time.Time) (map[string]int64, error) {
	ids := make(map[string]int64)
	for _, it := range items {
		sid := streamID(it)
		if _, ok := ids[sid]; ok {
			continue
		}
		feed := toFeed(it, seen)
		if label := folderName(it.Categories); label != "" {
			folderID, err := m.db.GetOrCreateFolder(label)
			if err != nil {
				return nil, fmt.Errorf("folder %s: %w", label, err)
			}
			feed.FolderID = &folderID
		}
		id, err := m.db.UpsertFeed(feed)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", sid, err)
		}
		ids[sid] = id
	}
	return ids, nil
}

// storeSequential writes items one at a time (for SQLite).
func (m *Mirror) storeSequential(ctx context.Context, items []*model.Item) (int, error) {
	added := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		_, isNew, err := m.db.AddItem(item)
		if err != nil {
			return added, fmt.Errorf("item %s: %w", item.RemoteID, err)
		}
		if isNew {
			added++
		}
	}
	return added, nil
}

type storeResult struct {
	remoteID string
	isNew    bool
	err      error
}

// storeParallel writes items using a worker pool (for PostgreSQL).
func (m *Mirror) storeParallel(ctx context.Context, items []*model.Item) (int, error) {
	var wg sync.WaitGroup
	itemChan := make(chan *model.Item, len(items))
	resultChan := make(chan storeResult, len(items))

	workers := m.concurrency
	if workers > len(items) {
		workers = len(items)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemChan {
				if ctx.Err() != nil {
					resultChan <- storeResult{remoteID: item.RemoteID, err: ctx.Err()}
					continue
				}
				_, isNew, err := m.db.AddItem(item)
				resultChan <- storeResult{remoteID: item.RemoteID, isNew: isNew, err: err}
			}
		}()
	}

	for _, item := range items {
		itemChan <- item
	}
	close(itemChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	added := 0
	var firstErr error
	for r := range resultChan {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("item %s: %w", r.remoteID, r.err)
			}
			continue
		}
		if r.isNew {
			added++
		}
	}
	return added, firstErr
}

func streamID(it greader.Item) string {
	if sid := it.Origin["streamId"]; sid != "" {
		return sid
	}
	return unknownStreamID
}

// folderName returns the first user label of an item, or "".
func folderName(categories []string) string {
	for _, c := range categories {
		if name, ok := strings.CutPrefix(c, labelPrefix); ok && name != "" {
			return name
		}
	}
	return ""
}

func toFeed(it greader.Item, seen time.Time) *model.Feed {
	sid := streamID(it)
	title := it.Origin["title"]
	if title == "" {
		title = sid
	}
	return &model.Feed{
		StreamID: sid,
		Title:    title,
		HTMLURL:  it.Origin["htmlUrl"],
		LastSeen: seen,
	}
}

func toItem(it greader.Item, seen time.Time) *model.Item {
	rec := &model.Item{
		RemoteID:  it.ID,
		Title:     it.Title,
		Author:    it.Author,
		FetchedAt: seen,
		SeenAt:    seen,
	}
	if rec.Author == "" && it.Summary.Author != nil {
		rec.Author = *it.Summary.Author
	}
	if it.Summary.Content != nil {
		rec.Content = *it.Summary.Content
	}
	switch {
	case len(it.Canonical) > 0:
		rec.Link = it.Canonical[0].Href
	case len(it.Alternate) > 0:
		rec.Link = it.Alternate[0].Href
	}
	switch {
	case it.Published != nil:
		rec.PublishedAt = time.Unix(int64(*it.Published), 0)
	case it.Updated != nil:
		rec.PublishedAt = time.Unix(int64(*it.Updated), 0)
	default:
		rec.PublishedAt = seen
	}
	rec.CrawledAt = crawlTime(it)
	return rec
}

// crawlTime prefers crawlTimeMsec and falls back to timestampUsec.
func crawlTime(it greader.Item) time.Time {
	if it.CrawlTimeMsec != nil {
		if ms, err := strconv.ParseInt(*it.CrawlTimeMsec, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	if it.TimestampUsec != nil {
		if us, err := strconv.ParseInt(*it.TimestampUsec, 10, 64); err == nil {
			return time.UnixMicro(us)
		}
	}
	return time.Time{}
}
