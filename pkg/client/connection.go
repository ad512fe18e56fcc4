// Package client implements the wire protocol from the client side:
// dialing the relay, decoding server events, and sending frames. It is
// used by the terminal client and the load generator.
package client

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/aeolun/chatrelay/pkg/protocol"
	"github.com/gorilla/websocket"
)

// Conn is a client connection to a chat relay. Outbound frames are
// safe to send from multiple goroutines; inbound events arrive on the
// Events channel until the connection fails, after which the channel is
// closed and Err reports the cause.
type Conn struct {
	ws     *websocket.Conn
	events chan protocol.Event

	done      chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

// Dial connects to the relay at host:port and starts the read loop.
func Dial(addr string) (*Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}

	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c := &Conn{
		ws:     ws,
		events: make(chan protocol.Event, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the channel of decoded server events. The channel is
// closed when the connection fails or is closed.
func (c *Conn) Events() <-chan protocol.Event {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			return
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			// An event this client doesn't understand is not fatal
			continue
		}

		// A consumer that has stopped draining must not pin this
		// goroutine forever: Close releases it via done.
		select {
		case c.events <- *ev:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// SetUsername registers a display name with the relay.
func (c *Conn) SetUsername(name string) error {
	payload, err := protocol.EncodeUsername(name)
	if err != nil {
		return err
	}
	return c.send(payload)
}

// SendTyping notifies other clients that this user is typing.
func (c *Conn) SendTyping(name string) error {
	payload, err := protocol.EncodeTyping(name)
	if err != nil {
		return err
	}
	return c.send(payload)
}

// SendChat sends a chat message. The relay assigns the authoritative
// message id and timestamp.
func (c *Conn) SendChat(sender, content string) error {
	payload, err := protocol.EncodeChat(sender, content)
	if err != nil {
		return err
	}
	return c.send(payload)
}

// SendClear asks the relay to clear the shared message history.
func (c *Conn) SendClear() error {
	payload, err := protocol.EncodeClear()
	if err != nil {
		return err
	}
	return c.send(payload)
}

// Close closes the connection and unblocks the read loop, which then
// closes the Events channel.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.ws.Close()
}
