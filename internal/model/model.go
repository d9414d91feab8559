// Package model defines the records of the local unread mirror.
package model

import "time"

// Folder is a reader label (user/-/label/<name>) used to group feeds.
type Folder struct {
	ID   int64
	Name string
}

// Feed is a subscription discovered through the origin of mirrored items.
type Feed struct {
	ID       int64
	FolderID *int64 // nil when the feed carries no label
	StreamID string // e.g. "feed/12" on FreshRSS
	Title    string
	HTMLURL  string
	LastSeen time.Time
}

// Item is a mirrored unread entry.
type Item struct {
	ID          int64
	RemoteID    string // server-assigned item id, used for edit-tag
	FeedID      int64
	Title       string
	Author      string
	Content     string
	Link        string
	PublishedAt time.Time
	CrawledAt   time.Time
	FetchedAt   time.Time // first time the item was mirrored
	SeenAt      time.Time // last pull that reported the item unread
	IsRead      bool
	ReadSynced  bool // read mark acknowledged by the server
}

// FolderWithFeeds represents a folder containing its feeds for the sidebar.
type FolderWithFeeds struct {
	Folder
	Feeds []Feed
}

// Settings key constants.
const (
	SettingPollingInterval = "polling_interval_minutes"
	SettingLastSync        = "last_sync"
)
