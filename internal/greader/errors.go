package greader

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenNotFound is returned when a ClientLogin response carries no Auth= line.
	ErrTokenNotFound = errors.New("auth token not found in login response")
	// ErrUnauthorized is returned when the server rejects the cached auth token.
	ErrUnauthorized = errors.New("server rejected auth token")
)

// ConfigError reports a server URL that cannot be used as a base URL.
type ConfigError struct {
	URL string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid server url %q: %v", e.URL, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError wraps a failure to send a request or read its response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports a failed login or a rejected token.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ParseError reports a response body that did not decode into the expected shape.
type ParseError struct {
	Endpoint string
	Length   int
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response (%d bytes): %v", e.Endpoint, e.Length, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldError is wrapped by ParseError when a required JSON field is absent.
type MissingFieldError struct {
	Object string
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Object, e.Field)
}
