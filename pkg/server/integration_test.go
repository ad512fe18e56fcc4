package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// startTestServer boots a relay on an ephemeral port and returns its
// base address.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	srv := NewServer(ServerConfig{
		Port:            0,
		HistorySize:     100,
		MaxMessageBytes: 4096,
		SendQueueSize:   64,
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	port := srv.Addr().(*net.TCPAddr).Port
	return srv, fmt.Sprintf("127.0.0.1:%d", port)
}

func dialWS(t *testing.T, addr string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

// readEvent reads and decodes the next server event with a deadline.
func readEvent(t *testing.T, conn *websocket.Conn) *protocol.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	ev, err := protocol.DecodeEvent(data)
	require.NoError(t, err)
	return ev
}

// waitForEvent reads events until one of the wanted type arrives,
// skipping unrelated interleaved broadcasts.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) *protocol.Event {
	t.Helper()

	for i := 0; i < 20; i++ {
		ev := readEvent(t, conn)
		if ev.Type == eventType {
			return ev
		}
	}
	t.Fatalf("no %q event received", eventType)
	return nil
}

func TestScenarioAliceAndBob(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialWS(t, addr)
	sendJSON(t, alice, `{"type":"username","username":"Alice"}`)
	ev := waitForEvent(t, alice, protocol.EventUserList)
	assert.Equal(t, []string{"Alice"}, ev.Users)

	bob := dialWS(t, addr)
	sendJSON(t, bob, `{"type":"username","username":"Bob"}`)
	ev = waitForEvent(t, bob, protocol.EventUserList)
	assert.Equal(t, []string{"Alice", "Bob"}, ev.Users)
	ev = waitForEvent(t, alice, protocol.EventUserList)
	assert.Equal(t, []string{"Alice", "Bob"}, ev.Users)

	// Alice sends a message; both receive it with a generated id
	sendJSON(t, alice, `{"sender":"Alice","content":"hi","timestamp":"x"}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := waitForEvent(t, conn, protocol.EventMessage)
		assert.Equal(t, "Alice", ev.Message.Sender)
		assert.Equal(t, "hi", ev.Message.Content)
		assert.NotEmpty(t, ev.Message.ID)
	}

	// Bob disconnects; Alice sees the shrunken user list
	bob.Close()
	ev = waitForEvent(t, alice, protocol.EventUserList)
	assert.Equal(t, []string{"Alice"}, ev.Users)
}

func TestHistoryReplayOnConnect(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialWS(t, addr)
	sendJSON(t, alice, `{"type":"username","username":"Alice"}`)
	sendJSON(t, alice, `{"content":"first"}`)
	sendJSON(t, alice, `{"content":"second"}`)
	waitForEvent(t, alice, protocol.EventMessage)
	waitForEvent(t, alice, protocol.EventMessage)

	// A new connection's first event is the history batch, in order,
	// before any live event
	late := dialWS(t, addr)
	ev := readEvent(t, late)
	require.Equal(t, protocol.EventHistory, ev.Type)
	require.Len(t, ev.History, 2)
	assert.Equal(t, "first", ev.History[0].Content)
	assert.Equal(t, "second", ev.History[1].Content)

	// Live events follow the replay
	sendJSON(t, alice, `{"content":"third"}`)
	ev = waitForEvent(t, late, protocol.EventMessage)
	assert.Equal(t, "third", ev.Message.Content)
}

func TestMalformedFrameDoesNotCloseConnection(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialWS(t, addr)
	bob := dialWS(t, addr)
	sendJSON(t, alice, `{"type":"username","username":"Alice"}`)
	waitForEvent(t, bob, protocol.EventUserList)

	sendJSON(t, alice, `this is not json`)

	// The connection survives and the garbage reached nobody: the
	// next event everyone sees is the valid message that follows
	sendJSON(t, alice, `{"content":"still here"}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := waitForEvent(t, conn, protocol.EventMessage)
		assert.Equal(t, "still here", ev.Message.Content)
	}
}

func TestTypingBroadcastOverWire(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialWS(t, addr)
	bob := dialWS(t, addr)
	sendJSON(t, alice, `{"type":"username","username":"Alice"}`)
	sendJSON(t, bob, `{"type":"username","username":"Bob"}`)
	waitForEvent(t, alice, protocol.EventUserList)
	waitForEvent(t, bob, protocol.EventUserList)

	sendJSON(t, bob, `{"type":"typing","username":"Bob"}`)

	ev := waitForEvent(t, alice, protocol.EventTyping)
	assert.Equal(t, "Bob", ev.Username)

	// Bob never sees his own typing event: a marker message sent
	// afterwards must be the next non-presence event he receives
	sendJSON(t, alice, `{"content":"marker"}`)
	for {
		ev := readEvent(t, bob)
		require.NotEqual(t, protocol.EventTyping, ev.Type)
		if ev.Type == protocol.EventMessage {
			assert.Equal(t, "marker", ev.Message.Content)
			break
		}
	}
}

func TestClearOverWire(t *testing.T) {
	srv, addr := startTestServer(t)

	alice := dialWS(t, addr)
	bob := dialWS(t, addr)
	sendJSON(t, alice, `{"type":"username","username":"Alice"}`)
	sendJSON(t, alice, `{"content":"before clear"}`)
	waitForEvent(t, alice, protocol.EventMessage)
	waitForEvent(t, bob, protocol.EventMessage)

	sendJSON(t, bob, `{"type":"clear"}`)

	// All connected sessions get the clear event
	waitForEvent(t, alice, protocol.EventClear)
	waitForEvent(t, bob, protocol.EventClear)
	assert.Equal(t, 0, srv.History().Len())

	// Sessions connecting afterwards receive no history frame: their
	// first event is the presence broadcast from their own identity
	late := dialWS(t, addr)
	sendJSON(t, late, `{"type":"username","username":"Carol"}`)
	ev := readEvent(t, late)
	assert.Equal(t, protocol.EventUserList, ev.Type)
}

func TestHealthEndpoint(t *testing.T) {
	_, addr := startTestServer(t)

	alice := dialWS(t, addr)
	sendJSON(t, alice, `{"type":"username","username":"Alice"}`)
	waitForEvent(t, alice, protocol.EventUserList)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(1), health["active_sessions"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, addr := startTestServer(t)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConcurrentClients(t *testing.T) {
	srv, addr := startTestServer(t)

	const clients = 10
	conns := make([]*websocket.Conn, clients)
	for i := range conns {
		conns[i] = dialWS(t, addr)
		sendJSON(t, conns[i], fmt.Sprintf(`{"type":"username","username":"user-%d"}`, i))
	}

	// Everyone sends one message; every client must see all of them
	for i, conn := range conns {
		sendJSON(t, conn, fmt.Sprintf(`{"content":"from-%d"}`, i))
	}

	for _, conn := range conns {
		seen := make(map[string]bool)
		for len(seen) < clients {
			ev := readEvent(t, conn)
			if ev.Type == protocol.EventMessage {
				seen[ev.Message.Content] = true
			}
		}
		assert.Len(t, seen, clients)
	}

	assert.Equal(t, clients, srv.History().Len())
}
