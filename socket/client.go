package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"docsync/internal/access"
	"docsync/internal/document/model"
	"docsync/internal/domain"
	"docsync/pkg/logger"
	"docsync/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer on the HTTP API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RoomAccess is the outcome of authorizing a room reference.
type RoomAccess struct {
	DocumentID string
	Role       model.Role
}

// Backend is what the relay needs from the document service.
type Backend interface {
	// AuthorizeRoom resolves ref (a document id or a link token) to its
	// canonical document and the actor's current role on it.
	AuthorizeRoom(ctx context.Context, ref string, actor access.Actor) (RoomAccess, error)
	Save(ctx context.Context, ref string, actor access.Actor, content string) (*model.SaveResult, error)
}

type Options struct {
	SendBuffer   int
	MessageRate  rate.Limit
	MessageBurst int
}

func DefaultOptions() Options {
	return Options{SendBuffer: 256, MessageRate: 50, MessageBurst: 100}
}

type Client struct {
	hub     *Hub
	backend Backend
	conn    *websocket.Conn
	userID  string
	limiter *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu sync.Mutex
	// joined maps canonical room id to the reference the client joined with.
	joined map[string]string
}

func newClient(hub *Hub, backend Backend, conn *websocket.Conn, userID string, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	limit, burst := opts.MessageRate, opts.MessageBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		hub:     hub,
		backend: backend,
		conn:    conn,
		userID:  userID,
		limiter: rate.NewLimiter(limit, burst),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		joined:  make(map[string]string),
	}
}

// ServeWs upgrades the request and runs the relay for one connection. userID
// is empty for anonymous connections, which can only join through links.
func ServeWs(hub *Hub, backend Backend, w http.ResponseWriter, r *http.Request, userID string, opts Options) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	client := newClient(hub, backend, conn, userID, opts)
	if !hub.register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// enqueue hands payload to the write pump without blocking. It reports false
// when the queue is full or the client is closed.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) label() string {
	if c.userID == "" {
		return "anonymous"
	}
	return c.userID
}

func (c *Client) actor(ref, docID string) access.Actor {
	a := access.Actor{UserID: c.userID}
	if ref != docID {
		a.LinkToken = ref
	}
	return a
}

func (c *Client) reply(payload []byte) {
	if payload != nil && !c.enqueue(payload) {
		metrics.RelayDropped.WithLabelValues("reply").Inc()
	}
}

func (c *Client) replyError(docID string, err error) {
	c.reply(errorFrame(docID, domain.PublicMessage(err)))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			return
		}

		if !c.limiter.Allow() {
			logger.Sugar.Warnf("Dropping frame from %s: rate limit exceeded", c.label())
			metrics.RelayDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			c.reply(errorFrame("", "malformed message"))
			continue
		}
		metrics.RelayMessages.WithLabelValues(msg.Event).Inc()
		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	switch msg.Event {
	case JoinDocEvent:
		c.handleJoin(msg)
	case SendChangesEvent:
		c.handleChanges(msg)
	case SaveDocEvent:
		c.handleSave(msg)
	case LeaveDocEvent:
		c.handleLeave(msg)
	default:
		c.reply(errorFrame(msg.DocumentID, "unknown event"))
	}
}

func (c *Client) handleJoin(msg Message) {
	ref := msg.DocumentID
	if ref == "" {
		c.replyError("", domain.ErrInvalidInput)
		return
	}

	ra, err := c.backend.AuthorizeRoom(context.Background(), ref, access.Actor{UserID: c.userID})
	if err == nil && !ra.Role.AtLeast(model.RoleViewer) {
		err = domain.ErrForbidden
	}
	if err != nil {
		logger.Sugar.Warnf("Join rejected: %s on %s: %v", c.label(), ref, err)
		c.replyError(ref, err)
		return
	}

	c.mu.Lock()
	c.joined[ra.DocumentID] = ref
	c.mu.Unlock()
	c.hub.Join(ra.DocumentID, c)

	c.reply(Encode(Message{Event: JoinedEvent, DocumentID: ra.DocumentID, Role: ra.Role}, nil))
}

// joinedRef looks up a room the client is in by canonical id or by the
// reference it joined with.
func (c *Client) joinedRef(id string) (docID, ref string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref, ok := c.joined[id]; ok {
		return id, ref, true
	}
	for docID, ref := range c.joined {
		if ref == id {
			return docID, ref, true
		}
	}
	return "", "", false
}

func (c *Client) handleChanges(msg Message) {
	docID, ref, ok := c.joinedRef(msg.DocumentID)
	if !ok {
		metrics.RelayDropped.WithLabelValues("not_joined").Inc()
		c.reply(errorFrame(msg.DocumentID, "join the document first"))
		return
	}
	if len(msg.Delta) == 0 {
		c.replyError(docID, domain.ErrInvalidInput)
		return
	}

	// Roles can change while the connection is open.
	ra, err := c.backend.AuthorizeRoom(context.Background(), ref, c.actor(ref, docID))
	if err == nil && !ra.Role.AtLeast(model.RoleEditor) {
		err = domain.ErrForbidden
	}
	if err != nil {
		logger.Sugar.Warnf("Permission Denied: %s tried to edit doc %s: %v", c.label(), docID, err)
		metrics.RelayDropped.WithLabelValues("forbidden").Inc()
		c.replyError(docID, err)
		return
	}

	payload := Encode(Message{Event: ReceiveChangesEvent, DocumentID: docID, Delta: msg.Delta}, nil)
	c.hub.Broadcast(docID, c, payload)
}

func (c *Client) handleSave(msg Message) {
	if msg.DocumentID == "" || msg.Content == nil {
		c.replyError(msg.DocumentID, domain.ErrInvalidInput)
		return
	}
	ref := msg.DocumentID
	actor := access.Actor{UserID: c.userID}
	if docID, joinedRef, ok := c.joinedRef(msg.DocumentID); ok {
		ref = joinedRef
		actor = c.actor(joinedRef, docID)
	}

	res, err := c.backend.Save(context.Background(), ref, actor, *msg.Content)
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrNotFound) {
			logger.Sugar.Warnf("Save rejected for %s on %s: %v", c.label(), ref, err)
		}
		c.replyError(msg.DocumentID, err)
		return
	}
	c.reply(Encode(Message{Event: DocSavedEvent, DocumentID: res.ID}, res))
}

func (c *Client) handleLeave(msg Message) {
	docID, _, ok := c.joinedRef(msg.DocumentID)
	if !ok {
		return
	}
	c.forget(docID)
	c.hub.Leave(docID, c)
}

func (c *Client) forget(docID string) {
	c.mu.Lock()
	delete(c.joined, docID)
	c.mu.Unlock()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
