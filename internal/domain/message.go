package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("message has no content or attachments")

type MessageID string

// ConversationID is the opaque conversation key used for routing and unread
// bookkeeping: the peer's user id for a direct chat, the group id otherwise.
type ConversationID string

type Attachment struct {
	URL      string `json:"url"`
	FileType string `json:"file_type"`
	Name     string `json:"name"`
}

// Message is transient in the relay; durable storage belongs to the
// collaborator store.
type Message struct {
	ID          MessageID    `json:"id"`
	SenderID    UserID       `json:"sender_id"`
	SenderName  string       `json:"sender_name,omitempty"`
	RecipientID string       `json:"recipient_id"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Read        bool         `json:"is_read"`
}

func NewMessage(sender UserID, recipient string, content string, attachments []Attachment) (*Message, error) {
	if content == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	return &Message{
		ID:          MessageID(uuid.NewString()),
		SenderID:    sender,
		RecipientID: recipient,
		Content:     content,
		Attachments: attachments,
		Timestamp:   time.Now().UTC(),
	}, nil
}
