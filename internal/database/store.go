// Package database provides storage backends for the unread mirror.
package database

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bryan-buckman/greadersync/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Folder operations
	GetFolders() ([]model.Folder, error)
	GetOrCreateFolder(name string) (int64, error)

	// Feed operations
	UpsertFeed(feed *model.Feed) (int64, error)
	GetAllFeeds() ([]model.Feed, error)
	GetFeedByID(feedID int64) (*model.Feed, error)
	GetUnfiledFeeds() ([]model.Feed, error)
	GetFoldersWithFeeds() ([]model.FolderWithFeeds, error)

	// Item operations
	AddItem(item *model.Item) (int64, bool, error)
	GetItems(feedID int64, onlyUnread bool) ([]model.Item, error)
	GetAllItems(onlyUnread bool) ([]model.Item, error)
	GetItemByID(itemID int64) (*model.Item, error)
	UnreadCount() (int, error)

	// Read marks. MarkItemsRead queues each newly read item for upstream
	// push; GetPendingReads returns the queue and MarkReadSynced drains it.
	MarkItemsRead(itemIDs []int64) error
	GetPendingReads() ([]model.Item, error)
	MarkReadSynced(itemIDs []int64) error
	// ReconcileUnread marks unread items not seen by a pull since before as
	// read elsewhere.
	ReconcileUnread(before time.Time) (int64, error)
	CleanupReadItems() (int64, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetPollingInterval() (int, error)
	GetLastSync() (time.Time, error)
	SetLastSync(t time.Time) error
}

// MinPollingIntervalMinutes is the floor applied to the stored interval.
const MinPollingIntervalMinutes = 15

func parsePollingInterval(val string) int {
	mins, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return MinPollingIntervalMinutes
	}
	if mins < MinPollingIntervalMinutes {
		mins = MinPollingIntervalMinutes
	}
	return mins
}
