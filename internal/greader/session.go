// Package greader is a client for the Google Reader API as served by FreshRSS
// and compatible aggregators.
//
// A Session logs in lazily: the first operation that needs an auth token
// performs ClientLogin, and the token is cached for the life of the Session.
// Mutating calls additionally fetch and cache a write token. Neither token
// expires locally; a rejected token surfaces as an AuthError wrapping
// ErrUnauthorized and the caller decides whether to ClearTokens and retry.
//
// A Session is not safe for concurrent use.
package greader

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// AuthToken authorizes read calls. It is sent in the Authorization header.
type AuthToken string

// WriteToken authorizes state-changing calls. It is sent as the T form field.
type WriteToken string

type cached[T ~string] struct {
	value T
	set   bool
}

func (c *cached[T]) store(v T) {
	c.value = v
	c.set = true
}

func (c *cached[T]) clear() {
	var zero T
	c.value = zero
	c.set = false
}

// Session holds credentials, the server base URL and the cached tokens.
type Session struct {
	username string
	password string
	baseURL  *url.URL
	client   *http.Client
	log      *slog.Logger

	auth  cached[AuthToken]
	write cached[WriteToken]
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Session for the server at serverURL, e.g.
// https://example.com/api/greader.php for FreshRSS. A trailing slash is
// dropped. No request is made.
func New(username, password, serverURL string, opts ...Option) (*Session, error) {
	raw := strings.TrimSuffix(serverURL, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigError{URL: serverURL, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &ConfigError{URL: serverURL, Err: errors.New("url must be absolute")}
	}
	u.RawQuery = ""
	u.Fragment = ""

	s := &Session{
		username: username,
		password: password,
		baseURL:  u,
		client:   http.DefaultClient,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseURL returns the normalized server URL.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

// HasAuthToken reports whether an auth token is cached.
func (s *Session) HasAuthToken() bool { return s.auth.set }

// HasWriteToken reports whether a write token is cached.
func (s *Session) HasWriteToken() bool { return s.write.set }

// ClearTokens forgets both tokens. The next operation logs in again.
func (s *Session) ClearTokens() {
	s.auth.clear()
	s.write.clear()
}
