// Package middleware holds ready-made handlers for the bot chain.
package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mymmrac/telego"

	"tgflow/pkg/api"
	"tgflow/pkg/bot"
	"tgflow/pkg/compose"
)

const (
	messagePreviewLimit = 240

	DefaultTypingInterval = 4 * time.Second
)

// AllowFrom drops updates whose sender is not listed. An empty list allows
// everyone. Dropped updates count as handled.
func AllowFrom(senderIDs []string) bot.Handler {
	allowed := allowFromSet(senderIDs)
	if allowed == nil {
		return compose.Passthru[*bot.Context]()
	}

	return func(c *bot.Context, next compose.Next) error {
		sender, ok := c.SenderID()
		if !ok {
			c.Logger().Debug("Ignoring update without sender")
			return nil
		}

		senderID := strconv.FormatInt(sender, 10)
		if _, ok := allowed[senderID]; !ok {
			c.Logger().Debug("Ignoring update from unauthorized sender", "sender_id", senderID)
			return nil
		}
		return next()
	}
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// Logger logs every handled update with its outcome and a bounded preview
// of message text.
func Logger() bot.Handler {
	return func(c *bot.Context, next compose.Next) error {
		start := time.Now()
		err := next()

		attrs := []any{
			"sub_type", string(c.UpdateSubType),
			"duration", time.Since(start),
			"ok", err == nil,
		}
		if msg := c.Message(); msg != nil && msg.Text != "" {
			attrs = append(attrs, "content", previewText(msg.Text))
		}
		c.Logger().Info("Update handled", attrs...)
		return err
	}
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	cut := messagePreviewLimit
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}

// Typing shows the typing indicator in the update's chat while the rest of
// the chain runs, refreshing it every interval. The action goes straight to
// the API so it never takes the webhook reply.
func Typing(interval time.Duration) bot.Handler {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}

	return func(c *bot.Context, next compose.Next) error {
		chatID, ok := c.ChatID()
		if !ok {
			return next()
		}

		stop := startTypingIndicator(c, chatID, interval)
		defer stop()
		return next()
	}
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func startTypingIndicator(c *bot.Context, chatID int64, interval time.Duration) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(c.Context())

	sendTyping := func() {
		params := api.Params{"chat_id": chatID, "action": string(telego.ChatActionTyping)}
		if _, err := c.Bot().Call(typingCtx, "sendChatAction", params); err != nil && typingCtx.Err() == nil {
			c.Logger().Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
