package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/domain"
	"github.com/satriahrh/jumpgpt/internal/voice"
	"github.com/satriahrh/jumpgpt/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendBuffer = 64

	textTimeout = 90 * time.Second
)

// VoiceController is the part of the voice coordinator clients may drive
type VoiceController interface {
	Start() error
	StopRecording() error
	Retry() error
	StopPlayback() error
	Close() error
}

// TextSender submits typed chat turns
type TextSender interface {
	Send(ctx context.Context, req usecase.SendRequest) (usecase.SendResult, error)
}

// Hub maintains the set of active clients and broadcasts state snapshots
// to them. The latest snapshot of each kind is replayed to new clients.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Outbound payloads for every client.
	broadcast chan []byte

	done chan struct{}

	mu     sync.RWMutex
	latest map[MessageType][]byte
	order  []MessageType

	upgrader  websocket.Upgrader
	voice     VoiceController
	chat      TextSender
	validator *MessageValidator
	clock     clock.Clock
	logger    *zap.Logger

	// in-flight send_text requests
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub creates a new WebSocket hub
func NewHub(voice VoiceController, chat TextSender, clk clock.Clock, logger *zap.Logger) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		latest:     make(map[MessageType][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients authenticate with a bearer token, not cookies
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		voice:     voice,
		chat:      chat,
		validator: NewMessageValidator(),
		clock:     clk,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.cancel()
		h.inflight.Wait()
		close(h.done)
	}()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			for _, payload := range h.snapshots() {
				client.enqueue(payload)
			}
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("subject", client.subject))

		case client := <-h.unregister:
			h.removeClient(client)
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case payload := <-h.broadcast:
			for _, client := range h.clientList() {
				if !client.enqueue(payload) {
					h.logger.Warn("Dropping slow client", zap.String("clientID", client.id))
					h.removeClient(client)
				}
			}

		case <-ctx.Done():
			for _, client := range h.clientList() {
				h.removeClient(client)
			}
			return
		}
	}
}

// Publish broadcasts a state snapshot and keeps it for clients that connect
// later. It is a no-op once the hub stopped.
func (h *Hub) Publish(t MessageType, data any) {
	payload, err := json.Marshal(CreateStateMessage(h.clock.Now(), t, data))
	if err != nil {
		h.logger.Error("Failed to marshal state", zap.String("type", string(t)), zap.Error(err))
		return
	}

	h.mu.Lock()
	if _, seen := h.latest[t]; !seen {
		h.order = append(h.order, t)
	}
	h.latest[t] = payload
	h.mu.Unlock()

	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// Forward publishes every value received from states until it closes
func Forward[T any](h *Hub, t MessageType, states <-chan T) {
	for state := range states {
		h.Publish(t, state)
	}
}

func (h *Hub) clientList() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		out = append(out, client)
	}
	return out
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	client.close()
}

func (h *Hub) snapshots() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([][]byte, 0, len(h.order))
	for _, t := range h.order {
		out = append(out, h.latest[t])
	}
	return out
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id      string
	subject string

	mu     sync.Mutex
	closed bool

	logger *zap.Logger
}

// HandleWebSocket upgrades an authenticated request and attaches the
// connection to the hub.
func (h *Hub) HandleWebSocket(c echo.Context, subject string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan WriteData, sendBuffer),
		id:      uuid.NewString(),
		subject: subject,
		logger:  h.logger.With(zap.String("subject", subject)),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return errors.New("hub is stopped")
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches one client message
func (c *Client) processMessage(message []byte) {
	now := c.hub.clock.Now()

	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected client message", zap.Error(err))
		c.reply(CreateErrorMessage(now, "invalid_message", "Invalid message", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *ControlMessage:
		if err := c.control(m.Type); err != nil {
			c.reply(CreateErrorMessage(now, errorCode(err), "Voice command failed", err.Error()))
		}

	case *SendTextMessage:
		c.hub.inflight.Add(1)
		go func() {
			defer c.hub.inflight.Done()
			c.sendText(m)
		}()

	case *PingMessage:
		c.reply(CreatePongMessage(now, m.Data))
	}
}

func (c *Client) control(t MessageType) error {
	vc := c.hub.voice
	switch t {
	case MessageTypeVoiceStart:
		return vc.Start()
	case MessageTypeVoiceStopRecording:
		return vc.StopRecording()
	case MessageTypeVoiceRetry:
		return vc.Retry()
	case MessageTypeVoiceStopPlayback:
		return vc.StopPlayback()
	case MessageTypeVoiceClose:
		return vc.Close()
	}
	return nil
}

func (c *Client) sendText(m *SendTextMessage) {
	ctx, cancel := context.WithTimeout(c.hub.ctx, textTimeout)
	defer cancel()

	result, err := c.hub.chat.Send(ctx, usecase.SendRequest{
		ConversationID: m.ConversationID,
		Text:           m.Text,
	})
	now := c.hub.clock.Now()
	if err != nil {
		c.logger.Warn("Text message failed", zap.Error(err))
		c.reply(CreateErrorMessage(now, errorCode(err), "Could not send message", err.Error()))
		return
	}

	base := newBase(MessageTypeTextReply, now)
	base.MessageID = m.MessageID
	c.reply(&TextReplyMessage{
		BaseMessage:    base,
		ConversationID: result.ConversationID,
		UserMessage:    result.UserMessage,
		Reply:          result.Reply,
	})
}

// reply queues v for this client only
func (c *Client) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}
	if !c.enqueue(payload) {
		c.logger.Warn("Client buffer full, dropping message")
	}
}

// enqueue never blocks. It reports false when the client is gone or its
// buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func errorCode(err error) string {
	if errors.Is(err, voice.ErrShutdown) {
		return "shutdown"
	}
	return domain.ErrorKind(err)
}
