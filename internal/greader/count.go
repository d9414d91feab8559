package greader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var unreadCountPath = []string{"reader", "api", "0", "unread-count"}

// UnreadCount returns the server's unread item count. FreshRSS does not
// implement this endpoint and the call fails there with a ParseError.
func (s *Session) UnreadCount(ctx context.Context) (uint64, error) {
	if err := s.ensureAuth(ctx); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	c := call{method: http.MethodGet, segments: unreadCountPath, authed: true}
	body, err := s.send(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", &ParseError{Endpoint: c.name(), Length: len(body), Err: err})
	}
	return n, nil
}
