// Package opml exports the mirrored subscription list as OPML.
package opml

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/bryan-buckman/greadersync/internal/model"
)

// feedPrefix marks a stream id that names a subscription by its feed URL.
const feedPrefix = "feed/"

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline is a folder (with children) or a single subscription.
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedURL recovers the feed URL from a stream id such as
// "feed/https://example.com/rss". Other ids yield "".
func FeedURL(streamID string) string {
	u, ok := strings.CutPrefix(streamID, feedPrefix)
	if !ok || !strings.Contains(u, "://") {
		return ""
	}
	return u
}

// Export renders the folder tree and the unfiled feeds. Folders keep the
// order they are given in; empty folders are skipped.
func Export(title string, folders []model.FolderWithFeeds, unfiled []model.Feed, now time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: now.Format(time.RFC1123Z),
		},
	}

	for _, f := range folders {
		if len(f.Feeds) == 0 {
			continue
		}
		folder := Outline{Text: f.Name, Title: f.Name}
		for _, feed := range f.Feeds {
			folder.Outlines = append(folder.Outlines, feedOutline(feed))
		}
		doc.Body.Outlines = append(doc.Body.Outlines, folder)
	}
	for _, feed := range unfiled {
		doc.Body.Outlines = append(doc.Body.Outlines, feedOutline(feed))
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

func feedOutline(f model.Feed) Outline {
	return Outline{
		Text:    f.Title,
		Title:   f.Title,
		Type:    "rss",
		XMLURL:  FeedURL(f.StreamID),
		HTMLURL: f.HTMLURL,
	}
}
