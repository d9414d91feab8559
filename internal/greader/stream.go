package greader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Stream and state identifiers used by the reading-list and edit-tag calls.
const (
	ReadingListStream = "user/-/state/com.google/reading-list"
	ReadState         = "user/-/state/com.google/read"
)

var readingListPath = []string{
	"reader", "api", "0", "stream", "contents",
	"user", "-", "state", "com.google", "reading-list",
}

// newest first, already-read items excluded
const readingListQuery = "r=n&xt=" + ReadState

// Link is a URL attached to an item.
type Link struct {
	Href string `json:"href"`
}

// Summary holds the item body.
type Summary struct {
	Content *string `json:"content,omitempty"`
	Author  *string `json:"author,omitempty"`
}

// Item is one entry of a stream as the server reported it.
type Item struct {
	ID            string            `json:"id"`
	CrawlTimeMsec *string           `json:"crawlTimeMsec,omitempty"`
	TimestampUsec *string           `json:"timestampUsec,omitempty"`
	Updated       *uint64           `json:"updated,omitempty"`
	Published     *uint64           `json:"published,omitempty"`
	Title         string            `json:"title"`
	Author        string            `json:"author,omitempty"`
	Canonical     []Link            `json:"canonical"`
	Alternate     []Link            `json:"alternate"`
	Categories    []string          `json:"categories"`
	Origin        map[string]string `json:"origin"`
	Summary       Summary           `json:"summary"`
}

// ListResponse is one page of a stream. A non-empty Continuation is the cursor
// for the next page.
type ListResponse struct {
	ID           string `json:"id"`
	Items        []Item `json:"items"`
	Updated      uint64 `json:"updated"`
	Continuation string `json:"continuation,omitempty"`
}

// HasMore reports whether another page is available.
func (r *ListResponse) HasMore() bool {
	return r.Continuation != ""
}

func (it *Item) UnmarshalJSON(data []byte) error {
	if err := requireFields("item", data,
		"id", "title", "canonical", "alternate", "categories", "origin", "summary"); err != nil {
		return err
	}
	type plain Item
	return json.Unmarshal(data, (*plain)(it))
}

func (r *ListResponse) UnmarshalJSON(data []byte) error {
	if err := requireFields("stream", data, "id", "items", "updated"); err != nil {
		return err
	}
	type plain ListResponse
	return json.Unmarshal(data, (*plain)(r))
}

// requireFields reports the first of fields that is absent or null in data.
func requireFields(object string, data []byte, fields ...string) error {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return err
	}
	for _, f := range fields {
		if raw, ok := present[f]; !ok || bytes.Equal(raw, []byte("null")) {
			return &MissingFieldError{Object: object, Field: f}
		}
	}
	return nil
}

// ListUnread fetches one page of unread items from the reading list. Pass the
// previous page's Continuation to get the next page, or "" for the first one.
// It never follows continuations itself.
func (s *Session) ListUnread(ctx context.Context, continuation string) (*ListResponse, error) {
	if err := s.ensureAuth(ctx); err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}

	query := readingListQuery
	if continuation != "" {
		query = "c=" + url.QueryEscape(continuation) + "&" + query
	}
	c := call{method: http.MethodGet, segments: readingListPath, rawQuery: query, authed: true}
	body, err := s.send(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}

	var page ListResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("list unread: %w", &ParseError{Endpoint: c.name(), Length: len(body), Err: err})
	}
	s.log.Debug("greader unread page", "items", len(page.Items), "more", page.HasMore())
	return &page, nil
}
