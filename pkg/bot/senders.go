package bot

import (
	"encoding/json"
	"fmt"

	"tgflow/pkg/api"
	"tgflow/pkg/update"
)

// Invoke calls any Bot API method through this update's call path. In
// webhook-reply mode the first eligible call is answered in the webhook
// response and returns a nil result.
func (c *Context) Invoke(method string, params api.Params) (json.RawMessage, error) {
	if params == nil {
		params = api.Params{}
	}
	return c.invoker.Invoke(c.Context(), method, params)
}

// sendToChat fills chat_id with the resolved conversation and merges extra
// under the fixed arguments.
func (c *Context) sendToChat(method string, args api.Params, extra api.Params) (json.RawMessage, error) {
	if !c.hasChat {
		return nil, fmt.Errorf("%s: %w", method, ErrNoChat)
	}

	params := merge(extra, args)
	params["chat_id"] = c.chatID
	return c.Invoke(method, params)
}

func merge(extra api.Params, args api.Params) api.Params {
	params := make(api.Params, len(extra)+len(args)+1)
	for key, value := range extra {
		params[key] = value
	}
	for key, value := range args {
		params[key] = value
	}
	return params
}

// Reply sends a text message to the update's chat.
func (c *Context) Reply(text string, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendMessage", api.Params{"text": text}, extra)
}

// ForwardMessage forwards messageID from fromChatID into the update's chat.
func (c *Context) ForwardMessage(fromChatID int64, messageID int, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("forwardMessage", api.Params{"from_chat_id": fromChatID, "message_id": messageID}, extra)
}

// Media senders accept a file id, a URL or an *api.InputFile.

func (c *Context) SendPhoto(photo any, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendPhoto", api.Params{"photo": photo}, extra)
}

func (c *Context) SendDocument(document any, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendDocument", api.Params{"document": document}, extra)
}

func (c *Context) SendAudio(audio any, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendAudio", api.Params{"audio": audio}, extra)
}

func (c *Context) SendVideo(video any, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendVideo", api.Params{"video": video}, extra)
}

func (c *Context) SendVoice(voice any, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendVoice", api.Params{"voice": voice}, extra)
}

func (c *Context) SendSticker(sticker any, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendSticker", api.Params{"sticker": sticker}, extra)
}

func (c *Context) SendLocation(latitude, longitude float64, extra api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendLocation", api.Params{"latitude": latitude, "longitude": longitude}, extra)
}

// SendChatAction shows a status such as "typing" in the update's chat.
func (c *Context) SendChatAction(action string) error {
	_, err := c.sendToChat("sendChatAction", api.Params{"action": action}, nil)
	return err
}

// SendInvoice sends an invoice; invoice carries title, payload, currency,
// prices and the other sendInvoice arguments.
func (c *Context) SendInvoice(invoice api.Params) (json.RawMessage, error) {
	return c.sendToChat("sendInvoice", nil, invoice)
}

// AnswerCallbackQuery answers the callback query that caused this update.
func (c *Context) AnswerCallbackQuery(text string, extra api.Params) error {
	if c.queryID == "" || c.UpdateType != update.TypeCallbackQuery {
		return fmt.Errorf("answerCallbackQuery: %w", ErrNoQuery)
	}

	args := api.Params{"callback_query_id": c.queryID}
	if text != "" {
		args["text"] = text
	}
	_, err := c.Invoke("answerCallbackQuery", merge(extra, args))
	return err
}

// AnswerInlineQuery answers the inline query that caused this update.
func (c *Context) AnswerInlineQuery(results any, extra api.Params) error {
	if c.queryID == "" || c.UpdateType != update.TypeInlineQuery {
		return fmt.Errorf("answerInlineQuery: %w", ErrNoQuery)
	}

	_, err := c.Invoke("answerInlineQuery", merge(extra, api.Params{"inline_query_id": c.queryID, "results": results}))
	return err
}
