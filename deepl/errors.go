package deepl

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned for a rejected authentication key (HTTP 403).
	ErrAuth = errors.New("deepl: authentication failed")
	// ErrQuotaExceeded is returned when the account character quota is used up (HTTP 456).
	ErrQuotaExceeded = errors.New("deepl: quota exceeded")
	// ErrNoKey is returned by New when no key is given.
	ErrNoKey = errors.New("deepl: no authentication key")
)

// Error is any other non-2xx answer.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("deepl: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("deepl: HTTP %d: %s", e.StatusCode, e.Message)
}
