package greader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
)

var (
	clientLoginPath = []string{"accounts", "ClientLogin"}
	writeTokenPath  = []string{"reader", "api", "0", "token"}
)

// Login performs ClientLogin and caches the returned auth token, replacing
// any token cached earlier.
func (s *Session) Login(ctx context.Context) error {
	c := call{
		method:   http.MethodPost,
		segments: clientLoginPath,
		form:     url.Values{"Email": {s.username}, "Passwd": {s.password}},
	}
	body, err := s.send(ctx, c)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token, ok := parseAuthToken(string(body))
	if !ok {
		return fmt.Errorf("login: %w", &AuthError{Op: c.name(), Err: ErrTokenNotFound})
	}
	s.auth.store(token)
	s.log.Debug("greader login succeeded", "server", s.baseURL.Host)
	return nil
}

// FetchWriteToken requests a fresh write token, caches it and returns it.
func (s *Session) FetchWriteToken(ctx context.Context) (WriteToken, error) {
	if err := s.ensureAuth(ctx); err != nil {
		return "", fmt.Errorf("fetch write token: %w", err)
	}
	body, err := s.send(ctx, call{method: http.MethodGet, segments: writeTokenPath, authed: true})
	if err != nil {
		return "", fmt.Errorf("fetch write token: %w", err)
	}
	token := WriteToken(strings.TrimSuffix(string(body), "\n"))
	s.write.store(token)
	return token, nil
}

func (s *Session) ensureAuth(ctx context.Context) error {
	if s.auth.set {
		return nil
	}
	return s.Login(ctx)
}

func (s *Session) ensureWriteToken(ctx context.Context) (WriteToken, error) {
	if s.write.set {
		return s.write.value, nil
	}
	return s.FetchWriteToken(ctx)
}

// parseAuthToken returns the first non-empty run of non-space characters
// that follows a literal "Auth=".
func parseAuthToken(body string) (AuthToken, bool) {
	const marker = "Auth="
	rest := body
	for {
		i := strings.Index(rest, marker)
		if i < 0 {
			return "", false
		}
		rest = rest[i+len(marker):]
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		if end > 0 {
			return AuthToken(rest[:end]), true
		}
	}
}
