package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound event type discriminator values
const (
	EventHistory  = "history"
	EventMessage  = "message"
	EventTyping   = "typing"
	EventUserList = "userList"
	EventClear    = "clear"
)

// historyEvent carries the full history buffer to one newly-connected
// session as a single batch.
type historyEvent struct {
	Type string        `json:"type"`
	Data []ChatMessage `json:"data"`
}

type messageEvent struct {
	Type string      `json:"type"`
	Data ChatMessage `json:"data"`
}

type typingEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type userListEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type clearEvent struct {
	Type string `json:"type"`
}

// EncodeHistoryEvent serializes a history batch event.
func EncodeHistoryEvent(messages []ChatMessage) ([]byte, error) {
	return json.Marshal(historyEvent{Type: EventHistory, Data: messages})
}

// EncodeMessageEvent serializes a live chat message event.
func EncodeMessageEvent(msg ChatMessage) ([]byte, error) {
	return json.Marshal(messageEvent{Type: EventMessage, Data: msg})
}

// EncodeTypingEvent serializes a typing-indicator event.
func EncodeTypingEvent(username string) ([]byte, error) {
	return json.Marshal(typingEvent{Type: EventTyping, Username: username})
}

// EncodeUserListEvent serializes a presence event carrying the current
// set of claimed display names.
func EncodeUserListEvent(users []string) ([]byte, error) {
	return json.Marshal(userListEvent{Type: EventUserList, Users: users})
}

// EncodeClearEvent serializes a history-cleared event.
func EncodeClearEvent() ([]byte, error) {
	return json.Marshal(clearEvent{Type: EventClear})
}

// Event is the decoded form of one server-to-client event. Exactly one
// variant is populated, selected by Type.
type Event struct {
	Type     string
	History  []ChatMessage // EventHistory
	Message  ChatMessage   // EventMessage
	Username string        // EventTyping
	Users    []string      // EventUserList
}

// DecodeEvent parses a server-to-client event by its type discriminator.
// Used by the terminal client and by tests.
func DecodeEvent(data []byte) (*Event, error) {
	var raw struct {
		Type     string          `json:"type"`
		Data     json.RawMessage `json:"data"`
		Username string          `json:"username"`
		Users    []string        `json:"users"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	ev := &Event{Type: raw.Type}
	switch raw.Type {
	case EventHistory:
		if err := json.Unmarshal(raw.Data, &ev.History); err != nil {
			return nil, fmt.Errorf("invalid history payload: %w", err)
		}
	case EventMessage:
		if err := json.Unmarshal(raw.Data, &ev.Message); err != nil {
			return nil, fmt.Errorf("invalid message payload: %w", err)
		}
	case EventTyping:
		ev.Username = raw.Username
	case EventUserList:
		ev.Users = raw.Users
	case EventClear:
		// No payload
	default:
		return nil, fmt.Errorf("unrecognized event type %q", raw.Type)
	}
	return ev, nil
}
