package api

import (
	"errors"
	"fmt"
)

// ErrMissingFile is returned when an InputFile points at a path that does not exist.
var ErrMissingFile = errors.New("input file does not exist")

// Error is a failure reported by the Bot API itself (ok=false).
type Error struct {
	Method          string
	Code            int
	Description     string
	RetryAfter      int
	MigrateToChatID int64
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

// IsAPIError reports whether err carries a remote failure and returns it.
func IsAPIError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
