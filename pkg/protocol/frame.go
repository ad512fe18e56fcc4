package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameKind identifies the variant of an inbound frame.
type FrameKind int

const (
	// KindChat is a chat message frame. The wire format carries no type
	// discriminator for chat frames: any frame without a recognized
	// "type" field is a chat message.
	KindChat FrameKind = iota
	// KindUsername is an identity-registration frame
	KindUsername
	// KindTyping is a typing-indicator frame
	KindTyping
	// KindClear is a history-clear request
	KindClear
)

// Frame type discriminator values on the wire
const (
	TypeUsername = "username"
	TypeTyping   = "typing"
	TypeClear    = "clear"
)

// String returns a human-readable name for the frame kind, used in logs
// and metric labels.
func (k FrameKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindUsername:
		return "username"
	case KindTyping:
		return "typing"
	case KindClear:
		return "clear"
	default:
		return "unknown"
	}
}

// InboundFrame is the decoded form of one client-to-server frame.
// Exactly one variant is populated, selected by Kind.
type InboundFrame struct {
	Kind FrameKind

	// Username variant: the requested display name.
	// Typing variant: the name echoed by the client (ignored by the
	// server, which uses its own session record).
	Username string

	// Chat variant
	Sender    string
	Content   string
	Timestamp string
}

// rawFrame is the superset of all inbound frame fields, used for a
// single-pass decode before variant selection.
type rawFrame struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// DecodeInbound parses a raw inbound frame into its tagged variant.
// A frame without a "type" field is a chat message; a frame with an
// unrecognized "type" is an error and must be discarded by the caller
// rather than misread as chat.
func DecodeInbound(data []byte) (*InboundFrame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	switch raw.Type {
	case TypeUsername:
		return &InboundFrame{Kind: KindUsername, Username: raw.Username}, nil
	case TypeTyping:
		return &InboundFrame{Kind: KindTyping, Username: raw.Username}, nil
	case TypeClear:
		return &InboundFrame{Kind: KindClear}, nil
	case "":
		return &InboundFrame{
			Kind:      KindChat,
			Sender:    raw.Sender,
			Content:   raw.Content,
			Timestamp: raw.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unrecognized frame type %q", raw.Type)
	}
}

// EncodeUsername encodes an identity-registration frame (client side).
func EncodeUsername(username string) ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}{Type: TypeUsername, Username: username})
}

// EncodeTyping encodes a typing-indicator frame (client side).
func EncodeTyping(username string) ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}{Type: TypeTyping, Username: username})
}

// EncodeClear encodes a history-clear request (client side).
func EncodeClear() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
	}{Type: TypeClear})
}

// EncodeChat encodes a chat frame (client side). Chat frames carry no
// type discriminator; the server assigns the authoritative id and
// timestamp on receipt.
func EncodeChat(sender, content string) ([]byte, error) {
	return json.Marshal(struct {
		Sender    string `json:"sender"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}{Sender: sender, Content: content, Timestamp: nowISO8601()})
}
