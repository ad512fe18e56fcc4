package server

import (
	"sync"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// History is the bounded in-memory buffer of recent chat messages.
// Messages are kept in insertion order; once the buffer is full the
// oldest message is evicted for each new append. All methods are safe
// for concurrent use.
type History struct {
	mu       sync.RWMutex
	buf      []protocol.ChatMessage
	head     int // index of the oldest entry
	size     int
	capacity int
}

// NewHistory creates a history buffer holding at most capacity messages.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf:      make([]protocol.ChatMessage, capacity),
		capacity: capacity,
	}
}

// Append adds a message to the tail, evicting the oldest entry if the
// buffer is full. O(1).
func (h *History) Append(msg protocol.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[(h.head+h.size)%h.capacity] = msg
	if h.size < h.capacity {
		h.size++
	} else {
		h.head = (h.head + 1) % h.capacity
	}
}

// Snapshot returns a copy of all current messages in delivery order.
// The copy is taken under the lock, so a concurrent Append or Clear is
// either fully included or fully absent.
func (h *History) Snapshot() []protocol.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]protocol.ChatMessage, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.head+i)%h.capacity]
	}
	return out
}

// Clear empties the buffer.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.head = 0
	h.size = 0
}

// Len returns the current number of buffered messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.size
}
