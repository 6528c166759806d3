package postgres

import (
	"errors"
	"regexp"
)

var (
	// ErrNilClient is returned when a method is called on a nil *Client.
	ErrNilClient = errors.New("postgres client is nil")
	// ErrNilContext is returned when a nil context is passed to a blocking call.
	ErrNilContext = errors.New("context is nil")
	// ErrInvalidSetup is returned when pool parameters are missing or of the wrong type.
	ErrInvalidSetup = errors.New("invalid postgres setup")
	// ErrNotConnected is returned when a pool is needed before Connect succeeded.
	ErrNotConnected = errors.New("postgres client is not connected")
	// ErrNilConnection is returned when Cleanup receives no connection.
	ErrNilConnection = errors.New("connection is nil")
	// ErrAcquireExhausted wraps the last acquisition error once every retry failed.
	ErrAcquireExhausted = errors.New("connection acquisition retries exhausted")
	// ErrRegistryClosed is returned by a Registry after Close.
	ErrRegistryClosed = errors.New("pool registry is closed")
	// ErrInvalidDatabaseName is returned when migrations target an unsafe database name.
	ErrInvalidDatabaseName = errors.New("invalid database name")
)

var (
	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
)

// SanitizedError carries an error whose message had credentials redacted.
// The original error stays reachable through errors.Is / errors.As.
type SanitizedError struct {
	Message string
	Err     error
}

// Error returns the redacted message.
func (e *SanitizedError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

// Unwrap returns the original error.
func (e *SanitizedError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func sanitizeSensitiveString(s string) string {
	sanitized := connectionStringCredentialsPattern.ReplaceAllString(s, "://***@")

	return connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")
}

// sanitizeError redacts credentials from err, returning nil for nil.
func sanitizeError(err error) error {
	if err == nil {
		return nil
	}

	return &SanitizedError{Message: sanitizeSensitiveString(err.Error()), Err: err}
}
