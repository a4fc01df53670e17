package update

import "strings"

// Type is the coarse kind of an inbound update, named after its top-level JSON key.
type Type string

const (
	TypeMessage            Type = "message"
	TypeEditedMessage      Type = "edited_message"
	TypeChannelPost        Type = "channel_post"
	TypeEditedChannelPost  Type = "edited_channel_post"
	TypeInlineQuery        Type = "inline_query"
	TypeChosenInlineResult Type = "chosen_inline_result"
	TypeCallbackQuery      Type = "callback_query"
	TypeShippingQuery      Type = "shipping_query"
	TypePreCheckoutQuery   Type = "pre_checkout_query"
	TypePoll               Type = "poll"
	TypePollAnswer         Type = "poll_answer"
	TypeMyChatMember       Type = "my_chat_member"
	TypeChatMember         Type = "chat_member"
	TypeChatJoinRequest    Type = "chat_join_request"
)

// Types is the ordered catalogue scanned by Normalize. Order matters: when
// an update carries more than one key, the one listed last wins.
var Types = []Type{
	TypeMessage,
	TypeEditedMessage,
	TypeChannelPost,
	TypeEditedChannelPost,
	TypeInlineQuery,
	TypeChosenInlineResult,
	TypeCallbackQuery,
	TypeShippingQuery,
	TypePreCheckoutQuery,
	TypePoll,
	TypePollAnswer,
	TypeMyChatMember,
	TypeChatMember,
	TypeChatJoinRequest,
}

// SubType is the finer classification of a plain message, named after the
// message field that carries its content.
type SubType string

const (
	SubTypeText                  SubType = "text"
	SubTypeAudio                 SubType = "audio"
	SubTypeDice                  SubType = "dice"
	SubTypeDocument              SubType = "document"
	SubTypeAnimation             SubType = "animation"
	SubTypeGame                  SubType = "game"
	SubTypePhoto                 SubType = "photo"
	SubTypeSticker               SubType = "sticker"
	SubTypeVideo                 SubType = "video"
	SubTypeVoice                 SubType = "voice"
	SubTypeVideoNote             SubType = "video_note"
	SubTypeContact               SubType = "contact"
	SubTypeLocation              SubType = "location"
	SubTypeVenue                 SubType = "venue"
	SubTypePoll                  SubType = "poll"
	SubTypeNewChatMembers        SubType = "new_chat_members"
	SubTypeLeftChatMember        SubType = "left_chat_member"
	SubTypeNewChatTitle          SubType = "new_chat_title"
	SubTypeNewChatPhoto          SubType = "new_chat_photo"
	SubTypeDeleteChatPhoto       SubType = "delete_chat_photo"
	SubTypeGroupChatCreated      SubType = "group_chat_created"
	SubTypeSupergroupChatCreated SubType = "supergroup_chat_created"
	SubTypeChannelChatCreated    SubType = "channel_chat_created"
	SubTypeMigrateToChatID       SubType = "migrate_to_chat_id"
	SubTypeMigrateFromChatID     SubType = "migrate_from_chat_id"
	SubTypePinnedMessage         SubType = "pinned_message"
	SubTypeInvoice               SubType = "invoice"
	SubTypeSuccessfulPayment     SubType = "successful_payment"
)

// SubTypes is the ordered catalogue scanned for message updates; the last
// present key wins, same as Types.
var SubTypes = []SubType{
	SubTypeText,
	SubTypeAudio,
	SubTypeDice,
	SubTypeDocument,
	SubTypeAnimation,
	SubTypeGame,
	SubTypePhoto,
	SubTypeSticker,
	SubTypeVideo,
	SubTypeVoice,
	SubTypeVideoNote,
	SubTypeContact,
	SubTypeLocation,
	SubTypeVenue,
	SubTypePoll,
	SubTypeNewChatMembers,
	SubTypeLeftChatMember,
	SubTypeNewChatTitle,
	SubTypeNewChatPhoto,
	SubTypeDeleteChatPhoto,
	SubTypeGroupChatCreated,
	SubTypeSupergroupChatCreated,
	SubTypeChannelChatCreated,
	SubTypeMigrateToChatID,
	SubTypeMigrateFromChatID,
	SubTypePinnedMessage,
	SubTypeInvoice,
	SubTypeSuccessfulPayment,
}

// IsKnown reports whether t is listed in Types.
func (t Type) IsKnown() bool {
	for _, known := range Types {
		if known == t {
			return true
		}
	}
	return false
}

// AccessorName returns the camel-cased name under which the payload of this
// update kind is exposed, e.g. "editedMessage" for edited_message.
func (t Type) AccessorName() string {
	return camelCase(string(t))
}

func camelCase(snake string) string {
	parts := strings.Split(snake, "_")
	var b strings.Builder
	b.Grow(len(snake))
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
