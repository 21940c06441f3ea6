package core

import "time"

// UpdateKind names the payload variant of an Update. Values match the Bot API
// allowed_updates names.
type UpdateKind string

const (
	KindUnknown            UpdateKind = "unknown"
	KindMessage            UpdateKind = "message"
	KindEditedMessage      UpdateKind = "edited_message"
	KindChannelPost        UpdateKind = "channel_post"
	KindEditedChannelPost  UpdateKind = "edited_channel_post"
	KindInlineQuery        UpdateKind = "inline_query"
	KindChosenInlineResult UpdateKind = "chosen_inline_result"
	KindCallbackQuery      UpdateKind = "callback_query"
)

// Update is one event returned by getUpdates. At most one payload is set.
type Update struct {
	ID                 int64               `json:"update_id"`
	Message            *Message            `json:"message,omitempty"`
	EditedMessage      *Message            `json:"edited_message,omitempty"`
	ChannelPost        *Message            `json:"channel_post,omitempty"`
	EditedChannelPost  *Message            `json:"edited_channel_post,omitempty"`
	InlineQuery        *InlineQuery        `json:"inline_query,omitempty"`
	ChosenInlineResult *ChosenInlineResult `json:"chosen_inline_result,omitempty"`
	CallbackQuery      *CallbackQuery      `json:"callback_query,omitempty"`
}

// Kind reports which payload the update carries.
func (u Update) Kind() UpdateKind {
	switch {
	case u.Message != nil:
		return KindMessage
	case u.EditedMessage != nil:
		return KindEditedMessage
	case u.ChannelPost != nil:
		return KindChannelPost
	case u.EditedChannelPost != nil:
		return KindEditedChannelPost
	case u.InlineQuery != nil:
		return KindInlineQuery
	case u.ChosenInlineResult != nil:
		return KindChosenInlineResult
	case u.CallbackQuery != nil:
		return KindCallbackQuery
	default:
		return KindUnknown
	}
}

// EffectiveMessage returns the message-like payload of the update, if any.
// For callback queries it is the message the inline keyboard was attached to.
func (u Update) EffectiveMessage() *Message {
	switch {
	case u.Message != nil:
		return u.Message
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	case u.CallbackQuery != nil:
		return u.CallbackQuery.Message
	default:
		return nil
	}
}

// ChatID returns the chat the update belongs to, or 0 for chatless updates
// such as inline queries.
func (u Update) ChatID() int64 {
	if m := u.EffectiveMessage(); m != nil {
		return m.Chat.ID
	}
	return 0
}

// SenderID returns the id of the user who caused the update, or 0 when the
// payload carries no sender (channel posts).
func (u Update) SenderID() int64 {
	switch {
	case u.InlineQuery != nil:
		return u.InlineQuery.From.ID
	case u.ChosenInlineResult != nil:
		return u.ChosenInlineResult.From.ID
	case u.CallbackQuery != nil:
		return u.CallbackQuery.From.ID
	}
	if m := u.EffectiveMessage(); m != nil && m.From != nil {
		return m.From.ID
	}
	return 0
}

// Message is a chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// Time returns the message date as a time.Time.
func (m *Message) Time() time.Time {
	return time.Unix(m.Date, 0)
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies the conversation a message was posted in.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// InlineQuery is an incoming inline query.
type InlineQuery struct {
	ID     string `json:"id"`
	From   User   `json:"from"`
	Query  string `json:"query"`
	Offset string `json:"offset,omitempty"`
}

// ChosenInlineResult reports an inline result picked by a user.
type ChosenInlineResult struct {
	ResultID        string `json:"result_id"`
	From            User   `json:"from"`
	Query           string `json:"query"`
	InlineMessageID string `json:"inline_message_id,omitempty"`
}

// CallbackQuery is a press on an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}
