package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    InboundFrame
		wantErr bool
	}{
		{
			name: "username frame",
			data: `{"type":"username","username":"alice"}`,
			want: InboundFrame{Kind: KindUsername, Username: "alice"},
		},
		{
			name: "typing frame",
			data: `{"type":"typing","username":"alice"}`,
			want: InboundFrame{Kind: KindTyping, Username: "alice"},
		},
		{
			name: "clear frame",
			data: `{"type":"clear"}`,
			want: InboundFrame{Kind: KindClear},
		},
		{
			name: "chat frame has no type field",
			data: `{"sender":"alice","content":"hi","timestamp":"2025-01-01T00:00:00Z"}`,
			want: InboundFrame{
				Kind:      KindChat,
				Sender:    "alice",
				Content:   "hi",
				Timestamp: "2025-01-01T00:00:00Z",
			},
		},
		{
			name: "empty object is an empty chat frame",
			data: `{}`,
			want: InboundFrame{Kind: KindChat},
		},
		{
			name:    "unrecognized type is rejected, not treated as chat",
			data:    `{"type":"admin","username":"mallory"}`,
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			data:    `{"type":"username"`,
			wantErr: true,
		},
		{
			name:    "non-object payload",
			data:    `"hello"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeInbound([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *frame)
		})
	}
}

func TestEncodeChatOmitsType(t *testing.T) {
	data, err := EncodeChat("alice", "hi")
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "type")
	assert.Equal(t, "alice", fields["sender"])
	assert.Equal(t, "hi", fields["content"])
}

func TestEncodersRoundTripThroughDecodeInbound(t *testing.T) {
	t.Run("username", func(t *testing.T) {
		data, err := EncodeUsername("bob")
		require.NoError(t, err)

		frame, err := DecodeInbound(data)
		require.NoError(t, err)
		assert.Equal(t, KindUsername, frame.Kind)
		assert.Equal(t, "bob", frame.Username)
	})

	t.Run("typing", func(t *testing.T) {
		data, err := EncodeTyping("bob")
		require.NoError(t, err)

		frame, err := DecodeInbound(data)
		require.NoError(t, err)
		assert.Equal(t, KindTyping, frame.Kind)
	})

	t.Run("clear", func(t *testing.T) {
		data, err := EncodeClear()
		require.NoError(t, err)

		frame, err := DecodeInbound(data)
		require.NoError(t, err)
		assert.Equal(t, KindClear, frame.Kind)
	})

	t.Run("chat", func(t *testing.T) {
		data, err := EncodeChat("bob", "hello there")
		require.NoError(t, err)

		frame, err := DecodeInbound(data)
		require.NoError(t, err)
		assert.Equal(t, KindChat, frame.Kind)
		assert.Equal(t, "hello there", frame.Content)
	})
}

func TestNewChatMessage(t *testing.T) {
	msg := NewChatMessage("alice", "hi")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "hi", msg.Content)
	assert.NotEmpty(t, msg.Timestamp)

	// IDs are unique across messages
	other := NewChatMessage("alice", "hi")
	assert.NotEqual(t, msg.ID, other.ID)
}
