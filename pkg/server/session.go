package server

import (
	"log"
	"sort"
	"sync"

	"github.com/aeolun/chatrelay/pkg/protocol"
	"github.com/gorilla/websocket"
)

// AnonymousName is the display name a session carries until its first
// identity-registration frame. It is not part of the presence set.
const AnonymousName = "Anonymous"

// Session represents one live client connection. The connection handle
// is owned by the session for its lifetime; all outbound delivery goes
// through the buffered send queue consumed by the session's write pump.
type Session struct {
	ID uint64

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu         sync.RWMutex
	name       string
	identified bool

	closeOnce sync.Once
}

// Name returns the session's current display name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Identified reports whether the session has claimed a display name.
func (s *Session) Identified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identified
}

// enqueue queues a payload for delivery to this session. It never
// blocks: a closed session or a full send queue drops the payload and
// returns false. Per-recipient failure is the caller's signal to count
// a drop, never to abort a fanout.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// close marks the session dead and releases its write pump. Safe to
// call more than once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// SessionManager is the session registry and broadcast engine. It maps
// live connections to their identities, maintains the presence multiset
// of claimed display names, and fans events out to all registered
// sessions. It performs no socket I/O itself; delivery is delegated to
// per-session send queues.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	names    map[string]int // presence multiset: claimed name -> count
	nextID   uint64

	queueSize int
	metrics   *Metrics
}

// NewSessionManager creates a session manager. queueSize is the
// per-session outbound queue depth.
func NewSessionManager(queueSize int) *SessionManager {
	if queueSize < 1 {
		queueSize = 1
	}
	return &SessionManager{
		sessions:  make(map[uint64]*Session),
		names:     make(map[string]int),
		nextID:    1,
		queueSize: queueSize,
	}
}

// SetMetrics attaches metrics to the session manager.
func (sm *SessionManager) SetMetrics(metrics *Metrics) {
	sm.metrics = metrics
}

// CreateSession allocates a session with a fresh unique identifier and
// the default display name. The session is not yet part of the fanout
// set; the caller registers it with Register once any history replay
// has been queued, which guarantees history precedes live events on the
// session's queue.
func (sm *SessionManager) CreateSession(conn *websocket.Conn) *Session {
	sm.mu.Lock()
	id := sm.nextID
	sm.nextID++
	sm.mu.Unlock()

	return &Session{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sm.queueSize),
		done: make(chan struct{}),
		name: AnonymousName,
	}
}

// Register adds a session to the fanout set. No presence broadcast
// fires: an unidentified session has not claimed a name yet.
func (sm *SessionManager) Register(sess *Session) {
	sm.mu.Lock()
	sm.sessions[sess.ID] = sess
	count := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(count)
		sm.metrics.RecordSessionCreated()
	}
}

// SetName updates a session's display name, adjusts the presence
// multiset, and broadcasts the new user list to all sessions. A stale
// session ID (race with disconnect) is a silent no-op. Re-registration
// is permitted and re-broadcasts presence.
func (sm *SessionManager) SetName(sessionID uint64, name string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}

	sess.mu.Lock()
	if sess.identified {
		sm.releaseNameLocked(sess.name)
	}
	sess.name = name
	sess.identified = true
	sess.mu.Unlock()

	sm.names[name]++
	sm.mu.Unlock()

	sm.BroadcastUserList()
}

// Remove deletes a session from the registry, releases its claimed
// name, closes the connection, and broadcasts the updated user list.
// Idempotent: removing an unknown or already-removed session is a no-op.
func (sm *SessionManager) Remove(sessionID uint64) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	delete(sm.sessions, sessionID)

	sess.mu.RLock()
	if sess.identified {
		sm.releaseNameLocked(sess.name)
	}
	sess.mu.RUnlock()

	count := len(sm.sessions)
	sm.mu.Unlock()

	sess.close()

	if sm.metrics != nil {
		sm.metrics.RecordActiveSessions(count)
		sm.metrics.RecordSessionDisconnected()
	}

	sm.BroadcastUserList()
}

// releaseNameLocked removes one occurrence of name from the presence
// multiset. Caller holds sm.mu.
func (sm *SessionManager) releaseNameLocked(name string) {
	if n, ok := sm.names[name]; ok {
		if n <= 1 {
			delete(sm.names, name)
		} else {
			sm.names[name] = n - 1
		}
	}
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(sessionID uint64) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sess, ok := sm.sessions[sessionID]
	return sess, ok
}

// AllSessions returns a point-in-time snapshot of all registered
// sessions.
func (sm *SessionManager) AllSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Count returns the number of registered sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// UserList returns the sorted set of currently-claimed display names.
// Duplicate claims of the same name appear once.
func (sm *SessionManager) UserList() []string {
	sm.mu.RLock()
	users := make([]string, 0, len(sm.names))
	for name := range sm.names {
		users = append(users, name)
	}
	sm.mu.RUnlock()

	sort.Strings(users)
	return users
}

// BroadcastAll delivers a pre-serialized payload to every registered
// session except exclude (nil = no exclusion). Delivery is best-effort:
// a session whose queue is full or whose connection is closing is
// skipped without aborting the fanout. Returns the number of sessions
// the payload was queued for.
func (sm *SessionManager) BroadcastAll(payload []byte, exclude *Session) int {
	sessions := sm.AllSessions()

	delivered := 0
	dropped := 0
	for _, sess := range sessions {
		if exclude != nil && sess.ID == exclude.ID {
			continue
		}
		if sess.enqueue(payload) {
			delivered++
		} else {
			dropped++
			debugLog.Printf("Session %d: send queue full or closed, dropping broadcast", sess.ID)
		}
	}

	if sm.metrics != nil {
		sm.metrics.RecordBroadcastFanout(delivered)
		if dropped > 0 {
			sm.metrics.RecordBroadcastsDropped(dropped)
		}
	}
	return delivered
}

// BroadcastUserList recomputes the presence set and broadcasts it to
// all sessions, including the one that triggered the change.
func (sm *SessionManager) BroadcastUserList() {
	payload, err := protocol.EncodeUserListEvent(sm.UserList())
	if err != nil {
		log.Printf("Failed to encode user list: %v", err)
		return
	}
	sm.BroadcastAll(payload, nil)
}

// CloseAll closes every session and empties the registry. Used during
// shutdown; no presence broadcasts fire.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	sm.sessions = make(map[uint64]*Session)
	sm.names = make(map[string]int)
	sm.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}
