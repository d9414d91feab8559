package database

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/bryan-buckman/greadersync/internal/model"
)

// nullTime stores zero times as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		var f model.Feed
		var lastSeen sql.NullTime
		if err := rows.Scan(&f.ID, &f.FolderID, &f.StreamID, &f.Title, &f.HTMLURL, &lastSeen); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			f.LastSeen = lastSeen.Time
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		var it model.Item
		var content, link sql.NullString
		var publishedAt, crawledAt, fetchedAt sql.NullTime
		var seenAt int64
		if err := rows.Scan(&it.ID, &it.RemoteID, &it.FeedID, &it.Title, &it.Author, &content, &link,
			&publishedAt, &crawledAt, &fetchedAt, &seenAt, &it.IsRead, &it.ReadSynced); err != nil {
			return nil, err
		}
		it.Content = content.String
		it.Link = link.String
		if publishedAt.Valid {
			it.PublishedAt = publishedAt.Time
		}
		if crawledAt.Valid {
			it.CrawledAt = crawledAt.Time
		}
		if fetchedAt.Valid {
			it.FetchedAt = fetchedAt.Time
		}
		it.SeenAt = time.UnixMilli(seenAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

// groupFeeds builds the sidebar tree from any Store.
func groupFeeds(s Store) ([]model.FolderWithFeeds, error) {
	folders, err := s.GetFolders()
	if err != nil {
		return nil, err
	}
	feeds, err := s.GetAllFeeds()
	if err != nil {
		return nil, err
	}
	byFolder := make(map[int64][]model.Feed)
	for _, f := range feeds {
		if f.FolderID != nil {
			byFolder[*f.FolderID] = append(byFolder[*f.FolderID], f)
		}
	}
	result := make([]model.FolderWithFeeds, 0, len(folders))
	for _, folder := range folders {
		result = append(result, model.FolderWithFeeds{Folder: folder, Feeds: byFolder[folder.ID]})
	}
	return result, nil
}

func lastSync(s Store) (time.Time, error) {
	val, err := s.GetSetting(model.SettingLastSync)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}
