package greader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxBodySize = 32 << 20 // 32 MiB

var errNoAuthToken = errors.New("no auth token cached")

// endpoint returns a copy of the base URL with each segment escaped and
// appended as its own path element.
func (s *Session) endpoint(segments ...string) *url.URL {
	u := *s.baseURL
	p := strings.TrimSuffix(u.Path, "/")
	rp := strings.TrimSuffix(u.EscapedPath(), "/")
	for _, seg := range segments {
		p += "/" + seg
		rp += "/" + url.PathEscape(seg)
	}
	u.Path = p
	u.RawPath = rp
	return &u
}

// call describes one round trip to the server.
type call struct {
	method   string
	segments []string
	rawQuery string
	form     url.Values
	authed   bool
}

func (c call) name() string {
	return strings.Join(c.segments, "/")
}

// send performs c and returns the full response body. A 401 on an
// authenticated call is reported as ErrUnauthorized; any other status is left
// to the caller's body parsing.
func (s *Session) send(ctx context.Context, c call) ([]byte, error) {
	name := c.name()
	u := s.endpoint(c.segments...)
	u.RawQuery = c.rawQuery

	var body io.Reader
	if c.form != nil {
		body = strings.NewReader(c.form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, c.method, u.String(), body)
	if err != nil {
		return nil, &TransportError{Op: name, Err: err}
	}
	if c.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.authed {
		if !s.auth.set || s.auth.value == "" {
			return nil, &AuthError{Op: name, Err: errNoAuthToken}
		}
		req.Header.Set("Authorization", "GoogleLogin auth="+string(s.auth.value))
	}

	s.log.Debug("greader request", "method", c.method, "endpoint", name)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &TransportError{Op: name, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > maxBodySize {
		return nil, &TransportError{Op: name, Err: fmt.Errorf("response exceeds %d bytes", maxBodySize)}
	}
	s.log.Debug("greader response", "endpoint", name, "status", resp.StatusCode, "bytes", len(data))

	if c.authed && resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthError{Op: name, Err: ErrUnauthorized}
	}
	return data, nil
}
