package bot

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/mymmrac/telego"

	"tgflow/pkg/api"
	"tgflow/pkg/compose"
	"tgflow/pkg/update"
)

// Handler is one middleware stage over the per-update Context.
type Handler = compose.Handler[*Context]

// Context is the execution context of one update. It is created by the
// dispatcher, lives for a single dispatch and is never shared between updates.
type Context struct {
	UpdateType    update.Type
	UpdateSubType update.SubType
	Update        update.Normalized

	// State is scratch space for middleware, discarded after dispatch.
	State map[string]any

	ctx        context.Context
	bot        *Bot
	invoker    api.Invoker
	dispatchID string
	log        *slog.Logger

	chatID  int64
	hasChat bool
	queryID string

	payloadOnce sync.Once
	payload     update.Payload
	payloadErr  error
}

func newContext(ctx context.Context, b *Bot, n update.Normalized, sink *ResponseSink, dispatchID string) *Context {
	c := &Context{
		UpdateType:    n.Type,
		UpdateSubType: n.SubType,
		Update:        n,
		State:         make(map[string]any),
		ctx:           ctx,
		bot:           b,
		invoker:       b.client,
		dispatchID:    dispatchID,
	}

	c.chatID, c.hasChat = update.ChatID(n.Payload)

	if sink != nil && b.opts.WebhookReply {
		c.invoker = hijackInvoker{sink: sink, next: b.client}
	}

	if n.Type == update.TypeCallbackQuery || n.Type == update.TypeInlineQuery {
		c.queryID, _ = update.QueryID(n.Payload)
	}

	c.log = b.log.With("dispatch_id", dispatchID, "update_id", n.ID, "update_type", string(n.Type))
	return c
}

// Context returns the request-scoped context.Context of this dispatch.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Bot returns the dispatcher that created this context.
func (c *Context) Bot() *Bot { return c.bot }

// DispatchID identifies this dispatch in logs and events.
func (c *Context) DispatchID() string { return c.dispatchID }

// Logger returns a logger annotated with the update being dispatched.
func (c *Context) Logger() *slog.Logger { return c.log }

// ChatID returns the conversation this update belongs to, if any.
func (c *Context) ChatID() (int64, bool) { return c.chatID, c.hasChat }

// SenderID returns the user who caused this update, if any.
func (c *Context) SenderID() (int64, bool) { return update.SenderID(c.Update.Payload) }

// RawPayload returns the undecoded payload of the update.
func (c *Context) RawPayload() json.RawMessage { return c.Update.Payload }

// PayloadName is the camel-cased accessor name of the update kind.
func (c *Context) PayloadName() string { return c.UpdateType.AccessorName() }

// Payload decodes the update payload on first use and caches it.
func (c *Context) Payload() (update.Payload, error) {
	c.payloadOnce.Do(func() {
		c.payload, c.payloadErr = update.Decode(c.Update)
	})
	return c.payload, c.payloadErr
}

// Is reports whether the update kind or message subtype is one of kinds.
func (c *Context) Is(kinds ...string) bool {
	return slices.Contains(kinds, string(c.UpdateType)) ||
		(c.UpdateSubType != "" && slices.Contains(kinds, string(c.UpdateSubType)))
}

func (c *Context) payloadFor(kind update.Type) *update.Payload {
	if c.UpdateType != kind {
		return nil
	}
	payload, err := c.Payload()
	if err != nil {
		c.log.Warn("Failed to decode update payload", "error", err)
		return nil
	}
	return &payload
}

func (c *Context) Message() *telego.Message {
	if p := c.payloadFor(update.TypeMessage); p != nil {
		return p.Message
	}
	return nil
}

func (c *Context) EditedMessage() *telego.Message {
	if p := c.payloadFor(update.TypeEditedMessage); p != nil {
		return p.Message
	}
	return nil
}

func (c *Context) ChannelPost() *telego.Message {
	if p := c.payloadFor(update.TypeChannelPost); p != nil {
		return p.Message
	}
	return nil
}

func (c *Context) EditedChannelPost() *telego.Message {
	if p := c.payloadFor(update.TypeEditedChannelPost); p != nil {
		return p.Message
	}
	return nil
}

func (c *Context) InlineQuery() *telego.InlineQuery {
	if p := c.payloadFor(update.TypeInlineQuery); p != nil {
		return p.InlineQuery
	}
	return nil
}

func (c *Context) ChosenInlineResult() *telego.ChosenInlineResult {
	if p := c.payloadFor(update.TypeChosenInlineResult); p != nil {
		return p.ChosenInlineResult
	}
	return nil
}

func (c *Context) CallbackQuery() *telego.CallbackQuery {
	if p := c.payloadFor(update.TypeCallbackQuery); p != nil {
		return p.CallbackQuery
	}
	return nil
}

func (c *Context) ShippingQuery() *telego.ShippingQuery {
	if p := c.payloadFor(update.TypeShippingQuery); p != nil {
		return p.ShippingQuery
	}
	return nil
}

func (c *Context) PreCheckoutQuery() *telego.PreCheckoutQuery {
	if p := c.payloadFor(update.TypePreCheckoutQuery); p != nil {
		return p.PreCheckoutQuery
	}
	return nil
}

func (c *Context) Poll() *telego.Poll {
	if p := c.payloadFor(update.TypePoll); p != nil {
		return p.Poll
	}
	return nil
}

func (c *Context) PollAnswer() *telego.PollAnswer {
	if p := c.payloadFor(update.TypePollAnswer); p != nil {
		return p.PollAnswer
	}
	return nil
}

func (c *Context) MyChatMember() *telego.ChatMemberUpdated {
	if p := c.payloadFor(update.TypeMyChatMember); p != nil {
		return p.ChatMember
	}
	return nil
}

func (c *Context) ChatMember() *telego.ChatMemberUpdated {
	if p := c.payloadFor(update.TypeChatMember); p != nil {
		return p.ChatMember
	}
	return nil
}

func (c *Context) ChatJoinRequest() *telego.ChatJoinRequest {
	if p := c.payloadFor(update.TypeChatJoinRequest); p != nil {
		return p.ChatJoinRequest
	}
	return nil
}
