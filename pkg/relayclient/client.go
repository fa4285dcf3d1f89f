// Package relayclient is a Go client for the document relay. It keeps the
// set of joined documents across reconnects and buffers deltas sent while
// offline, replaying them once the rooms are joined again.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"docsync/pkg/logger"
	"docsync/socket"
)

var (
	ErrNotConnected = errors.New("relay client is not connected")
	ErrClosed       = errors.New("relay client is closed")
)

const incomingBuffer = 64

type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	// mu guards conn and rooms and serializes writes on conn.
	mu     sync.Mutex
	conn   *websocket.Conn
	rooms  []string
	closed bool

	outbox   *Outbox
	incoming chan socket.Message
	done     chan struct{}
	readers  sync.WaitGroup
}

// New returns a disconnected client for the relay at url (ws:// or wss://).
// header is sent on every dial; it may carry an Authorization bearer token.
func New(url string, header http.Header) *Client {
	return &Client{
		url:      url,
		header:   header,
		dialer:   websocket.DefaultDialer,
		outbox:   NewOutbox(),
		incoming: make(chan socket.Message, incomingBuffer),
		done:     make(chan struct{}),
	}
}

// Messages delivers every frame received from the relay. The channel is
// closed by Close once no connection can deliver more.
func (c *Client) Messages() <-chan socket.Message {
	return c.incoming
}

func (c *Client) Outbox() *Outbox {
	return c.outbox
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials the relay, rejoins every joined document and flushes the
// outbox before any new delta goes out. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return ErrClosed
	}
	if c.conn != nil {
		conn.Close()
		return nil
	}
	c.conn = conn
	c.readers.Add(1)
	go c.readLoop(conn)

	for _, ref := range c.rooms {
		if err := c.writeLocked(socket.Message{Event: socket.JoinDocEvent, DocumentID: ref}); err != nil {
			return err
		}
	}

	pending := c.outbox.Drain()
	for i, change := range pending {
		msg := socket.Message{Event: socket.SendChangesEvent, DocumentID: change.DocumentID, Delta: change.Delta}
		if err := c.writeLocked(msg); err != nil {
			for _, rest := range pending[i:] {
				c.outbox.Push(rest.DocumentID, rest.Delta)
			}
			return err
		}
	}
	if len(pending) > 0 {
		logger.Sugar.Infof("Flushed %d buffered changes after reconnect", len(pending))
	}
	return nil
}

// JoinDoc joins ref now if connected, and again after every reconnect.
func (c *Client) JoinDoc(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	known := false
	for _, r := range c.rooms {
		if r == ref {
			known = true
			break
		}
	}
	if !known {
		c.rooms = append(c.rooms, ref)
	}
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(socket.Message{Event: socket.JoinDocEvent, DocumentID: ref})
}

func (c *Client) LeaveDoc(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.rooms {
		if r == ref {
			c.rooms = append(c.rooms[:i], c.rooms[i+1:]...)
			break
		}
	}
	if c.conn == nil {
		return nil
	}
	return c.writeLocked(socket.Message{Event: socket.LeaveDocEvent, DocumentID: ref})
}

// SendChanges relays delta to the other members of ref. While disconnected,
// or when the write fails, the delta is buffered for the next Connect.
func (c *Client) SendChanges(ref string, delta json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		c.outbox.Push(ref, delta)
		return nil
	}
	if err := c.writeLocked(socket.Message{Event: socket.SendChangesEvent, DocumentID: ref, Delta: delta}); err != nil {
		logger.Sugar.Warnf("Buffering change for %s: %v", ref, err)
		c.outbox.Push(ref, delta)
	}
	return nil
}

// Save asks the relay to persist content. Saves are not buffered.
func (c *Client) Save(ref, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.writeLocked(socket.Message{Event: socket.SaveDocEvent, DocumentID: ref, Content: &content})
}

// Close disconnects for good and closes the Messages channel. Buffered
// deltas are discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	var err error
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.readers.Wait()
	close(c.incoming)
	return err
}

// writeLocked must be called with mu held. A failed write drops the
// connection so the next Connect starts clean.
func (c *Client) writeLocked(msg socket.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Event, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("write %s: %w", msg.Event, err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.readers.Done()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Sugar.Warnf("Relay connection lost: %v", err)
			}
			return
		}
		var msg socket.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Sugar.Warnf("Error unmarshalling relay frame: %v", err)
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}
