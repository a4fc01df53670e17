package bot

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChat is returned by conversation-scoped senders when the update has no chat.
	ErrNoChat = errors.New("update has no chat")
	// ErrNoQuery is returned by query answer helpers on updates of another kind.
	ErrNoQuery = errors.New("update has no query to answer")
	// ErrTransportBusy is returned when a second transport is started on the same bot.
	ErrTransportBusy = errors.New("another transport is already running")
	// ErrPanic marks a panic recovered inside the middleware chain.
	ErrPanic = errors.New("middleware panicked")
)

// FetchError is a failed poll for updates. The poller retries it after a backoff.
type FetchError struct {
	Offset int64
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch updates at offset %d: %v", e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DispatchError is an error that escaped the middleware chain for one polled
// update. It stops the polling loop.
type DispatchError struct {
	UpdateID int64
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch update %d: %v", e.UpdateID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
