// Package database provides SQLite storage for the unread mirror.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bryan-buckman/greadersync/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the poller and API handlers.
	conn.SetMaxOpenConns(1)
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false for SQLite.
func (db *DB) SupportsHighConcurrency() bool {
	return false
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		folder_id INTEGER REFERENCES folders(id),
		stream_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		html_url TEXT DEFAULT '',
		last_seen DATETIME
	);
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id TEXT NOT NULL UNIQUE,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		author TEXT DEFAULT '',
		content TEXT,
		link TEXT,
		published_at DATETIME,
		crawled_at DATETIME,
		fetched_at DATETIME NOT NULL,
		seen_at INTEGER NOT NULL,
		is_read INTEGER DEFAULT 0,
		read_synced INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_items_pending ON items(is_read, read_synced);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default polling interval (15 minutes minimum).
	INSERT OR IGNORE INTO settings (key, value) VALUES ('polling_interval_minutes', '15');
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Folder Methods ---

// GetFolders returns all folders ordered by name.
func (db *DB) GetFolders() ([]model.Folder, error) {
	rows, err := db.conn.Query("SELECT id, name FROM folders ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// GetOrCreateFolder finds a folder by name, or creates it.
func (db *DB) GetOrCreateFolder(name string) (int64, error) {
	if _, err := db.conn.Exec("INSERT INTO folders (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name); err != nil {
		return 0, err
	}
	var id int64
	err := db.conn.QueryRow("SELECT id FROM folders WHERE name = ?", name).Scan(&id)
	return id, err
}

// --- Feed Methods ---

// UpsertFeed inserts the feed or refreshes the stored copy with the same
// stream id. Returns the ID.
func (db *DB) UpsertFeed(feed *model.Feed) (int64, error) {
	_, err := db.conn.Exec(`
		INSERT INTO feeds (folder_id, stream_id, title, html_url, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(stream_id) DO UPDATE SET
			folder_id = excluded.folder_id,
			title = excluded.title,
			html_url = excluded.html_url,
			last_seen = excluded.last_seen`,
		feed.FolderID, feed.StreamID, feed.Title, feed.HTMLURL, nullTime(feed.LastSeen))
	if err != nil {
		return 0, err
	}
	var id int64
	err = db.conn.QueryRow("SELECT id FROM feeds WHERE stream_id = ?", feed.StreamID).Scan(&id)
	return id, err
}

const feedColumns = "id, folder_id, stream_id, title, html_url, last_seen"

// GetAllFeeds returns all feeds ordered by title.
func (db *DB) GetAllFeeds() ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT " + feedColumns + " FROM feeds ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// GetUnfiledFeeds returns feeds without a folder.
func (db *DB) GetUnfiledFeeds() ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT " + feedColumns + " FROM feeds WHERE folder_id IS NULL ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// GetFeedByID returns a single feed.
func (db *DB) GetFeedByID(feedID int64) (*model.Feed, error) {
	rows, err := db.conn.Query("SELECT "+feedColumns+" FROM feeds WHERE id = ?", feedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	feeds, err := scanFeeds(rows)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, ErrNotFound
	}
	return &feeds[0], nil
}

// GetFoldersWithFeeds returns every folder with its feeds.
func (db *DB) GetFoldersWithFeeds() ([]model.FolderWithFeeds, error) {
	return groupFeeds(db)
}

// --- Item Methods ---

// AddItem records an unread item reported by the server. A known item only
// has its seen_at refreshed. Returns ID and whether it was new.
func (db *DB) AddItem(item *model.Item) (int64, bool, error) {
	seen := item.SeenAt.UnixMilli()
	res, err := db.conn.Exec("UPDATE items SET seen_at = ? WHERE remote_id = ?", seen, item.RemoteID)
	if err != nil {
		return 0, false, err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		var id int64
		err := db.conn.QueryRow("SELECT id FROM items WHERE remote_id = ?", item.RemoteID).Scan(&id)
		return id, false, err
	}

	res, err = db.conn.Exec(`
		INSERT INTO items (remote_id, feed_id, title, author, content, link, published_at, crawled_at, fetched_at, seen_at, is_read, read_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
		ON CONFLICT(remote_id) DO NOTHING`,
		item.RemoteID, item.FeedID, item.Title, item.Author, item.Content, item.Link,
		nullTime(item.PublishedAt), nullTime(item.CrawledAt), item.FetchedAt.UTC(), seen)
	if err != nil {
		return 0, false, err
	}
	id, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return id, affected > 0, nil
}

const itemColumns = "id, remote_id, feed_id, title, author, content, link, published_at, crawled_at, fetched_at, seen_at, is_read, read_synced"

// GetItems returns items for a feed, ordered by published date desc.
func (db *DB) GetItems(feedID int64, onlyUnread bool) ([]model.Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE feed_id = ?"
	if onlyUnread {
		query += " AND is_read = 0"
	}
	query += " ORDER BY published_at DESC"
	rows, err := db.conn.Query(query, feedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetAllItems returns all items for the home stream.
func (db *DB) GetAllItems(onlyUnread bool) ([]model.Item, error) {
	query := "SELECT " + itemColumns + " FROM items"
	if onlyUnread {
		query += " WHERE is_read = 0"
	}
	query += " ORDER BY published_at DESC"
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// GetItemByID returns a single item.
func (db *DB) GetItemByID(itemID int64) (*model.Item, error) {
	rows, err := db.conn.Query("SELECT "+itemColumns+" FROM items WHERE id = ?", itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

// UnreadCount returns the number of locally unread items.
func (db *DB) UnreadCount() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM items WHERE is_read = 0").Scan(&n)
	return n, err
}

// MarkItemsRead marks multiple items as read and queues them for push.
func (db *DB) MarkItemsRead(itemIDs []int64) error {
	return db.execEach("UPDATE items SET is_read = 1, read_synced = 0 WHERE id = ? AND is_read = 0", itemIDs)
}

// GetPendingReads returns items read locally but not yet acknowledged upstream.
func (db *DB) GetPendingReads() ([]model.Item, error) {
	rows, err := db.conn.Query("SELECT " + itemColumns + " FROM items WHERE is_read = 1 AND read_synced = 0 ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// MarkReadSynced records that the server accepted the read marks.
func (db *DB) MarkReadSynced(itemIDs []int64) error {
	return db.execEach("UPDATE items SET read_synced = 1 WHERE id = ?", itemIDs)
}

// ReconcileUnread marks items that a complete pull no longer reports as read
// on the server.
func (db *DB) ReconcileUnread(before time.Time) (int64, error) {
	res, err := db.conn.Exec("UPDATE items SET is_read = 1, read_synced = 1 WHERE is_read = 0 AND seen_at < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupReadItems deletes all items whose read mark reached the server.
func (db *DB) CleanupReadItems() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM items WHERE is_read = 1 AND read_synced = 1")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) execEach(stmtSQL string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(stmtSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// GetPollingInterval returns the polling interval in minutes, with a minimum of 15.
func (db *DB) GetPollingInterval() (int, error) {
	val, err := db.GetSetting(model.SettingPollingInterval)
	if err != nil {
		return MinPollingIntervalMinutes, nil // default
	}
	return parsePollingInterval(val), nil
}

// GetLastSync returns the time of the last completed sync, or the zero time.
func (db *DB) GetLastSync() (time.Time, error) {
	return lastSync(db)
}

// SetLastSync records a completed sync.
func (db *DB) SetLastSync(t time.Time) error {
	return db.SetSetting(model.SettingLastSync, strconv.FormatInt(t.UnixMilli(), 10))
}
