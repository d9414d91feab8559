package opml

import (
	"bytes"
	"encoding/xml"
	"testing"
	"time"

	"github.com/bryan-buckman/greadersync/internal/model"
	"github.com/stretchr/testify/require"
)

func TestFeedURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		streamID string
		want     string
	}{
		{"feed/https://example.com/rss", "https://example.com/rss"},
		{"feed/42", ""},
		{"user/-/label/Tech", ""},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FeedURL(tt.streamID), tt.streamID)
	}
}

func TestExport(t *testing.T) {
	t.Parallel()

	folders := []model.FolderWithFeeds{
		{Folder: model.Folder{ID: 1, Name: "Tech"}, Feeds: []model.Feed{
			{ID: 1, StreamID: "feed/https://go.dev/blog/feed.atom", Title: "Go Blog", HTMLURL: "https://go.dev/blog"},
		}},
		{Folder: model.Folder{ID: 2, Name: "Empty"}},
	}
	unfiled := []model.Feed{{ID: 2, StreamID: "feed/7", Title: "Loose"}}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	data, err := Export("Mirror", folders, unfiled, now)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte(xml.Header)))

	var doc OPML
	require.NoError(t, xml.Unmarshal(data, &doc))
	require.Equal(t, "2.0", doc.Version)
	require.Equal(t, "Mirror", doc.Head.Title)
	require.Equal(t, now.Format(time.RFC1123Z), doc.Head.DateCreated)
	require.Len(t, doc.Body.Outlines, 2)

	tech := doc.Body.Outlines[0]
	require.Equal(t, "Tech", tech.Text)
	require.Len(t, tech.Outlines, 1)
	require.Equal(t, "https://go.dev/blog/feed.atom", tech.Outlines[0].XMLURL)
	require.Equal(t, "https://go.dev/blog", tech.Outlines[0].HTMLURL)

	loose := doc.Body.Outlines[1]
	require.Equal(t, "Loose", loose.Text)
	require.Empty(t, loose.XMLURL)
}
