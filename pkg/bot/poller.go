package bot

import (
	"context"
	"errors"
	"time"

	"tgflow/pkg/bus"
	"tgflow/pkg/update"
)

const (
	transportPolling = "polling"

	defaultPollTimeout  = 30
	defaultPollLimit    = 100
	defaultFetchBackoff = time.Second
)

// PollingState is the cursor and status of the long-polling transport.
type PollingState struct {
	Offset  int64
	Started bool
	Timeout int
	Limit   int
}

// PollingOptions configure StartPolling. Zero values fall back to defaults.
type PollingOptions struct {
	Timeout        int
	Limit          int
	AllowedUpdates []string
	FetchBackoff   time.Duration
}

// DefaultAllowedUpdates asks the server only for kinds the dispatcher can
// normalize.
func DefaultAllowedUpdates() []string {
	allowed := make([]string, 0, len(update.Types))
	for _, t := range update.Types {
		allowed = append(allowed, string(t))
	}
	return allowed
}

// StartPolling runs the long-polling loop until Stop is called, ctx is
// canceled, or a dispatch fails.
//
// Fetch failures are retried with the same offset after FetchBackoff. A
// dispatch failure stops the loop and is returned as *DispatchError; the
// cursor stays on the failed update.
func (b *Bot) StartPolling(ctx context.Context, opts PollingOptions) error {
	if err := b.acquireTransport(transportPolling); err != nil {
		return err
	}
	defer b.releaseTransport(transportPolling)

	if opts.Timeout <= 0 {
		opts.Timeout = defaultPollTimeout
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultPollLimit
	}
	if opts.FetchBackoff <= 0 {
		opts.FetchBackoff = defaultFetchBackoff
	}
	if opts.AllowedUpdates == nil {
		opts.AllowedUpdates = DefaultAllowedUpdates()
	}

	b.pollMu.Lock()
	b.polling.Started = true
	b.polling.Timeout = opts.Timeout
	b.polling.Limit = opts.Limit
	b.pollMu.Unlock()
	defer b.Stop()

	log := b.log.With("transport", transportPolling)
	log.Info("Polling started", "timeout", opts.Timeout, "limit", opts.Limit)
	b.publish(ctx, bus.Event{Type: bus.EventTransportStarted, Transport: transportPolling})
	defer b.publish(ctx, bus.Event{Type: bus.EventTransportStopped, Transport: transportPolling})

	for {
		state := b.PollingState()
		if !state.Started || ctx.Err() != nil {
			log.Info("Polling stopped", "offset", state.Offset)
			return nil
		}

		updates, err := b.client.GetUpdates(ctx, state.Offset, state.Limit, state.Timeout, opts.AllowedUpdates)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			fetchErr := &FetchError{Offset: state.Offset, Err: err}
			log.Warn("Failed to fetch updates, retrying", "error", fetchErr, "backoff", opts.FetchBackoff.String())
			b.publish(ctx, bus.Event{Type: bus.EventPollFailed, Transport: transportPolling, Offset: state.Offset, Error: fetchErr.Error()})

			timer := time.NewTimer(opts.FetchBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		for _, raw := range updates {
			if ctx.Err() != nil {
				break
			}
			if err := b.dispatchPolled(ctx, raw); err != nil {
				b.Stop()
				log.Error("Polling stopped after dispatch failure", "error", err)
				return err
			}
		}
	}
}

// dispatchPolled dispatches one polled update and advances the cursor past
// it only on success.
func (b *Bot) dispatchPolled(ctx context.Context, raw update.Raw) error {
	id, err := raw.ID()
	if err != nil {
		return &DispatchError{Err: err}
	}

	if err := b.Dispatch(ctx, raw, nil); err != nil {
		return &DispatchError{UpdateID: id, Err: err}
	}

	b.advanceOffset(id + 1)
	return nil
}

func (b *Bot) advanceOffset(next int64) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	if next > b.polling.Offset {
		b.polling.Offset = next
	}
}

// PollingState returns a snapshot of the polling cursor and status.
func (b *Bot) PollingState() PollingState {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	return b.polling
}

// Stop asks the polling loop to exit before its next fetch. In-flight
// dispatches are allowed to finish.
func (b *Bot) Stop() {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	b.polling.Started = false
}

// IsDispatchError reports whether err stopped the poller because of a handler failure.
func IsDispatchError(err error) bool {
	var dispatchErr *DispatchError
	return errors.As(err, &dispatchErr)
}
