package server

import (
	"log"
	"strings"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// dispatchFrame validates and routes one inbound frame. A frame that
// fails to decode is a local error: it is discarded and logged, the
// connection stays open, and nothing is broadcast.
func (s *Server) dispatchFrame(sess *Session, data []byte) {
	frame, err := protocol.DecodeInbound(data)
	if err != nil {
		log.Printf("Session %d: discarding malformed frame: %v", sess.ID, err)
		if s.metrics != nil {
			s.metrics.RecordFrameReceived("malformed")
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordFrameReceived(frame.Kind.String())
	}

	switch frame.Kind {
	case protocol.KindUsername:
		s.handleUsername(sess, frame.Username)
	case protocol.KindTyping:
		s.handleTyping(sess)
	case protocol.KindClear:
		s.handleClear(sess)
	case protocol.KindChat:
		s.handleChat(sess, frame.Content)
	}
}

// handleUsername registers or re-registers the session's display name
// and broadcasts the updated presence set to everyone.
func (s *Server) handleUsername(sess *Session, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		log.Printf("Session %d: ignoring empty username", sess.ID)
		return
	}

	s.sessions.SetName(sess.ID, name)
	debugLog.Printf("Session %d: identified as %q", sess.ID, name)
}

// handleTyping broadcasts a typing indicator to every session except
// the sender. The name the client echoed is ignored; the server's own
// session record is authoritative. Fire-and-forget: a recipient that is
// disconnecting simply misses it.
func (s *Server) handleTyping(sess *Session) {
	payload, err := protocol.EncodeTypingEvent(sess.Name())
	if err != nil {
		log.Printf("Failed to encode typing event: %v", err)
		return
	}
	s.sessions.BroadcastAll(payload, sess)
}

// handleClear empties the history buffer and notifies all sessions,
// including the requester.
func (s *Server) handleClear(sess *Session) {
	payload, err := protocol.EncodeClearEvent()
	if err != nil {
		log.Printf("Failed to encode clear event: %v", err)
		return
	}

	s.fanoutMu.Lock()
	s.history.Clear()
	s.sessions.BroadcastAll(payload, nil)
	s.fanoutMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordHistorySize(0)
	}
	log.Printf("Session %d: history cleared", sess.ID)
}

// handleChat constructs the authoritative chat message (server-assigned
// id and timestamp, sender taken from the session record), appends it
// to history, and broadcasts it to all sessions including the sender.
// Append and fanout happen under fanoutMu so that a joining session's
// history replay plus live stream contains every message exactly once.
func (s *Server) handleChat(sess *Session, content string) {
	msg := protocol.NewChatMessage(sess.Name(), content)

	payload, err := protocol.EncodeMessageEvent(msg)
	if err != nil {
		log.Printf("Failed to encode message event: %v", err)
		return
	}

	s.fanoutMu.Lock()
	s.history.Append(msg)
	s.sessions.BroadcastAll(payload, nil)
	s.fanoutMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordHistorySize(s.history.Len())
	}
}

// admitSession moves a created session into the fanout set, replaying
// history first. Both steps run under fanoutMu: the snapshot the
// session receives is exactly the buffer at the moment it starts
// receiving live broadcasts, so no message is skipped or duplicated
// across the replay/live boundary.
func (s *Server) admitSession(sess *Session) {
	s.fanoutMu.Lock()
	defer s.fanoutMu.Unlock()

	s.sendHistory(sess)
	s.sessions.Register(sess)
}

// sendHistory queues the current history snapshot for delivery to one
// session as a single batch. Must run before the session joins the
// fanout set so replay precedes any live event on its queue. An empty
// buffer sends nothing, matching the wire behavior clients expect.
func (s *Server) sendHistory(sess *Session) {
	snapshot := s.history.Snapshot()
	if len(snapshot) == 0 {
		return
	}

	payload, err := protocol.EncodeHistoryEvent(snapshot)
	if err != nil {
		log.Printf("Failed to encode history event: %v", err)
		return
	}
	if !sess.enqueue(payload) {
		debugLog.Printf("Session %d: failed to queue history replay", sess.ID)
	}
}
