package greader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

var editTagPath = []string{"reader", "api", "0", "edit-tag"}

// MarkItemRead tags itemID as read and returns the server's reply verbatim,
// normally "OK". The write token is fetched on first use and reused after.
func (s *Session) MarkItemRead(ctx context.Context, itemID string) (string, error) {
	if err := s.ensureAuth(ctx); err != nil {
		return "", fmt.Errorf("mark item read: %w", err)
	}
	token, err := s.ensureWriteToken(ctx)
	if err != nil {
		return "", fmt.Errorf("mark item read: %w", err)
	}

	c := call{
		method:   http.MethodPost,
		segments: editTagPath,
		form: url.Values{
			"a": {ReadState},
			"T": {string(token)},
			"i": {itemID},
		},
		authed: true,
	}
	body, err := s.send(ctx, c)
	if err != nil {
		return "", fmt.Errorf("mark item read: %w", err)
	}
	return string(body), nil
}
