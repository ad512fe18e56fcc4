package protocol

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a single chat message as it appears on the wire and in
// the server's history buffer. Immutable once created.
type ChatMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // ISO-8601, server-assigned
}

// NewChatMessage creates a chat message with a fresh unique ID and the
// current server time. The sender name is captured by value, not by
// reference to the session.
func NewChatMessage(sender, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: nowISO8601(),
	}
}

func nowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339)
}
