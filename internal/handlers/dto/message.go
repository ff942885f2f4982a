package dto

import (
	"time"

	"github.com/google/uuid"
)

// SendMessagePayload — входящая операция send_message
type SendMessagePayload struct {
	Text    string     `json:"text"`
	ReplyID *uuid.UUID `json:"reply_id,omitempty"`
}

// HistoryPayload — входящая операция get_chat_history
type HistoryPayload struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

type MarkReadPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type ReactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Reaction  string    `json:"reaction"`
}

type PinPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

// MessageResponse — сообщение в событиях new_message, chat_history и
// load_missed_messages
type MessageResponse struct {
	ID        uuid.UUID  `json:"id"`
	RoomID    uuid.UUID  `json:"room_id"`
	SenderID  uuid.UUID  `json:"sender_id"`
	Text      string     `json:"text"`
	Reaction  string     `json:"reaction,omitempty"`
	ReplyID   *uuid.UUID `json:"reply_id,omitempty"`
	ReplyText string     `json:"reply_text,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
	Sender    *UserInfo  `json:"sender,omitempty"`
}

type UserInfo struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// PresencePayload — события user_connected / user_disconnected / user_joined
type PresencePayload struct {
	UserID    uuid.UUID `json:"user_id"`
	RoomID    uuid.UUID `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageReadPayload — событие message_read для отправителя
type MessageReadPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	RoomID    uuid.UUID `json:"room_id"`
	ReaderID  uuid.UUID `json:"reader_id"`
}

// ReactionAddedPayload — событие reaction_added
type ReactionAddedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Reaction  string    `json:"reaction"`
	UserID    uuid.UUID `json:"user_id"`
}

// MessagePinnedPayload — событие message_pinned для обоих участников
type MessagePinnedPayload struct {
	RoomID    uuid.UUID `json:"room_id"`
	MessageID uuid.UUID `json:"message_id"`
	PinnedBy  uuid.UUID `json:"pinned_by"`
	Text      string    `json:"text"`
}
