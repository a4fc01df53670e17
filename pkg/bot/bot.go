package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"tgflow/pkg/api"
	"tgflow/pkg/bus"
	"tgflow/pkg/compose"
	"tgflow/pkg/update"
)

// Client is what the dispatcher needs from the Bot API: generic method
// invocation for handlers and update fetching for the poller.
type Client interface {
	api.Invoker
	GetUpdates(ctx context.Context, offset int64, limit int, timeoutSeconds int, allowed []string) ([]update.Raw, error)
}

// ErrorHandler receives errors that escape the middleware chain. The context
// is nil when the failure happened before one could be built. Returning nil
// marks the update as handled.
type ErrorHandler func(err error, c *Context) error

// Options configure a Bot.
type Options struct {
	// WebhookReply answers the first eligible API call of a webhook update
	// inside the webhook HTTP response instead of a separate request.
	WebhookReply bool
	// Events receives dispatch lifecycle events when set.
	Events *bus.Bus
}

// Bot is the update dispatcher: it normalizes updates, builds a Context and
// runs it through the registered middleware.
type Bot struct {
	client Client
	opts   Options
	log    *slog.Logger

	mu         sync.RWMutex
	middleware []Handler
	onError    ErrorHandler

	pollMu    sync.Mutex
	polling   PollingState
	transport string
}

func New(client Client, opts Options, log *slog.Logger) (*Bot, error) {
	if client == nil {
		return nil, errors.New("bot client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		client: client,
		opts:   opts,
		log:    log.With("component", "bot"),
	}
	b.onError = b.defaultErrorHandler
	return b, nil
}

// Use appends middleware to the top-level chain.
func (b *Bot) Use(handlers ...Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, handlers...)
}

// On registers handlers that only run for the given update kinds or message
// subtypes, e.g. On([]string{"callback_query"}, h) or On([]string{"text"}, h).
func (b *Bot) On(kinds []string, handlers ...Handler) {
	b.Use(On(kinds, handlers...))
}

// On builds a stage gated on update kind or message subtype.
func On(kinds []string, handlers ...Handler) Handler {
	return compose.GatedOn(func(c *Context) bool { return c.Is(kinds...) }, handlers...)
}

// Catch replaces the error handler. A nil handler restores the default.
func (b *Bot) Catch(handler ErrorHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handler == nil {
		handler = b.defaultErrorHandler
	}
	b.onError = handler
}

// defaultErrorHandler logs the failure and hands it back unchanged.
func (b *Bot) defaultErrorHandler(err error, c *Context) error {
	log := b.log
	if c != nil {
		log = c.Logger()
	}
	if apiErr, ok := api.IsAPIError(err); ok {
		log.Error("Unhandled error while processing update", "error", err, "method", apiErr.Method, "code", apiErr.Code)
		return err
	}
	log.Error("Unhandled error while processing update", "error", err)
	return err
}

func (b *Bot) handleError(err error, c *Context) error {
	b.mu.RLock()
	handler := b.onError
	b.mu.RUnlock()
	return handler(err, c)
}

// Handle dispatches one update document outside any transport, e.g. from tests
// or a custom transport. It never touches the polling cursor.
func (b *Bot) Handle(ctx context.Context, data []byte) error {
	raw, err := update.Parse(data)
	if err != nil {
		return err
	}
	return b.Dispatch(ctx, raw, nil)
}

// Dispatch runs one update through the middleware chain. sink is the open
// webhook response when the update arrived by webhook, nil otherwise.
//
// Updates of unknown kind fail fast with update.ErrUndefinedType. Errors from
// the chain go through the error handler and its result is returned.
func (b *Bot) Dispatch(ctx context.Context, raw update.Raw, sink *ResponseSink) error {
	if ctx == nil {
		ctx = context.Background()
	}

	n, err := update.Normalize(raw)
	if err != nil {
		id, _ := raw.ID()
		b.publish(ctx, bus.Event{Type: bus.EventUpdateFailed, UpdateID: id, Error: err.Error()})
		return err
	}

	dispatchID := uuid.NewString()
	c := newContext(ctx, b, n, sink, dispatchID)
	c.log.Debug("Dispatching update", "update_subtype", string(n.SubType))

	b.mu.RLock()
	chain := compose.Compose(b.middleware...)
	b.mu.RUnlock()

	if err := run(chain, c); err != nil {
		handled := b.handleError(err, c)
		if handled != nil {
			b.publish(ctx, bus.Event{
				Type:       bus.EventUpdateFailed,
				UpdateID:   n.ID,
				UpdateType: string(n.Type),
				DispatchID: dispatchID,
				Error:      handled.Error(),
			})
			return handled
		}
	}

	b.publish(ctx, bus.Event{
		Type:       bus.EventUpdateDispatched,
		UpdateID:   n.ID,
		UpdateType: string(n.Type),
		DispatchID: dispatchID,
	})
	return nil
}

// run executes the chain and turns a panic into an error so it follows the
// regular error path.
func run(chain Handler, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered panic in middleware", "panic", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return compose.Run(chain, c)
}

func (b *Bot) publish(ctx context.Context, event bus.Event) {
	if b.opts.Events == nil {
		return
	}
	b.opts.Events.Publish(context.WithoutCancel(ctx), event)
}

// acquireTransport claims the bot for one transport. Polling owns the update
// cursor, so polling and webhook delivery are never active together.
func (b *Bot) acquireTransport(name string) error {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	if b.transport != "" {
		return fmt.Errorf("start %s: %w (%s)", name, ErrTransportBusy, b.transport)
	}
	b.transport = name
	return nil
}

func (b *Bot) releaseTransport(name string) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	if b.transport == name {
		b.transport = ""
	}
}

// Transport returns the name of the running transport, or "".
func (b *Bot) Transport() string {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	return b.transport
}

// Call invokes a Bot API method outside of any update, always over the network.
func (b *Bot) Call(ctx context.Context, method string, params api.Params) (json.RawMessage, error) {
	return b.client.Invoke(ctx, method, params)
}
