package update

import (
	"encoding/json"
	"fmt"

	"github.com/mymmrac/telego"
)

// Payload is the decoded body of one update. Exactly the field matching
// Type is set; message-like kinds share Message and both member kinds share
// ChatMember.
type Payload struct {
	Type Type

	Message            *telego.Message
	InlineQuery        *telego.InlineQuery
	ChosenInlineResult *telego.ChosenInlineResult
	CallbackQuery      *telego.CallbackQuery
	ShippingQuery      *telego.ShippingQuery
	PreCheckoutQuery   *telego.PreCheckoutQuery
	Poll               *telego.Poll
	PollAnswer         *telego.PollAnswer
	ChatMember         *telego.ChatMemberUpdated
	ChatJoinRequest    *telego.ChatJoinRequest
}

// Extractor decodes a raw payload into the matching field of a Payload.
type Extractor func(raw json.RawMessage, into *Payload) error

// Extractors maps every kind in Types to its decoder.
var Extractors = map[Type]Extractor{
	TypeMessage:            decodeInto(func(p *Payload) **telego.Message { return &p.Message }),
	TypeEditedMessage:      decodeInto(func(p *Payload) **telego.Message { return &p.Message }),
	TypeChannelPost:        decodeInto(func(p *Payload) **telego.Message { return &p.Message }),
	TypeEditedChannelPost:  decodeInto(func(p *Payload) **telego.Message { return &p.Message }),
	TypeInlineQuery:        decodeInto(func(p *Payload) **telego.InlineQuery { return &p.InlineQuery }),
	TypeChosenInlineResult: decodeInto(func(p *Payload) **telego.ChosenInlineResult { return &p.ChosenInlineResult }),
	TypeCallbackQuery:      decodeInto(func(p *Payload) **telego.CallbackQuery { return &p.CallbackQuery }),
	TypeShippingQuery:      decodeInto(func(p *Payload) **telego.ShippingQuery { return &p.ShippingQuery }),
	TypePreCheckoutQuery:   decodeInto(func(p *Payload) **telego.PreCheckoutQuery { return &p.PreCheckoutQuery }),
	TypePoll:               decodeInto(func(p *Payload) **telego.Poll { return &p.Poll }),
	TypePollAnswer:         decodeInto(func(p *Payload) **telego.PollAnswer { return &p.PollAnswer }),
	TypeMyChatMember:       decodeInto(func(p *Payload) **telego.ChatMemberUpdated { return &p.ChatMember }),
	TypeChatMember:         decodeInto(func(p *Payload) **telego.ChatMemberUpdated { return &p.ChatMember }),
	TypeChatJoinRequest:    decodeInto(func(p *Payload) **telego.ChatJoinRequest { return &p.ChatJoinRequest }),
}

func decodeInto[T any](field func(*Payload) **T) Extractor {
	return func(raw json.RawMessage, into *Payload) error {
		value := new(T)
		if err := json.Unmarshal(raw, value); err != nil {
			return err
		}
		*field(into) = value
		return nil
	}
}

// Decode resolves the typed payload of n through Extractors.
func Decode(n Normalized) (Payload, error) {
	extract, ok := Extractors[n.Type]
	if !ok {
		return Payload{}, fmt.Errorf("%w: %q", ErrUndefinedType, n.Type)
	}

	payload := Payload{Type: n.Type}
	if err := extract(n.Payload, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode %s payload: %w", n.Type, err)
	}
	return payload, nil
}

type chatRef struct {
	ID *int64 `json:"id"`
}

type conversationProbe struct {
	Chat    *chatRef `json:"chat"`
	Message *struct {
		Chat *chatRef `json:"chat"`
	} `json:"message"`
}

// ChatID resolves the conversation an update belongs to from payload.chat.id,
// falling back to payload.message.chat.id.
func ChatID(payload json.RawMessage) (int64, bool) {
	var probe conversationProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		return 0, false
	}
	if probe.Chat != nil && probe.Chat.ID != nil {
		return *probe.Chat.ID, true
	}
	if probe.Message != nil && probe.Message.Chat != nil && probe.Message.Chat.ID != nil {
		return *probe.Message.Chat.ID, true
	}
	return 0, false
}

// QueryID returns payload.id as a string for query-like kinds.
func QueryID(payload json.RawMessage) (string, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || len(probe.ID) == 0 {
		return "", false
	}

	var id string
	if err := json.Unmarshal(probe.ID, &id); err == nil {
		return id, id != ""
	}
	return string(probe.ID), true
}

// SenderID returns payload.from.id, the user who caused the update.
func SenderID(payload json.RawMessage) (int64, bool) {
	var probe struct {
		From *chatRef `json:"from"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.From == nil || probe.From.ID == nil {
		return 0, false
	}
	return *probe.From.ID, true
}
