package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleModel MessageRole = "model"
)

// Attachment is an image supplied by the user alongside a message.
type Attachment struct {
	MimeType   string `json:"mime_type"`
	Data       string `json:"data"` // base64-encoded payload
	PreviewURL string `json:"preview_url,omitempty"`
}

// IsImage reports whether the attachment carries an image MIME type.
func (a *Attachment) IsImage() bool {
	return a != nil && strings.HasPrefix(a.MimeType, "image/")
}

// Conversation represents a chat conversation.
type Conversation struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	Title      *string    `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Message represents a single turn in a conversation. Text is empty and
// IsLoading is true while a model response is pending; once resolved the
// message is immutable.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Text           string      `json:"text"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	IsLoading      bool        `json:"is_loading"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConversationWithMessages includes a conversation and its messages.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}
