package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pagepick/backend/internal/buffer"
	"github.com/pagepick/backend/internal/logger"
	"github.com/pagepick/backend/internal/metrics"
)

// clientSendBuffer is the per-recipient queue length. A recipient whose queue
// is full is closed as a slow consumer.
const clientSendBuffer = 256

// DefaultHistory is the number of relayed frames kept for inspection.
const DefaultHistory = 100

// Client represents one viewer connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new viewer connection.
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   id,
		send: make(chan []byte, clientSendBuffer),
	}
}

// Send queues data for the client. It returns false when the frame was not
// queued, either because the client is closed or because its queue was full,
// in which case the client is closed.
func (c *Client) Send(data []byte) bool {
	ok, _ := c.enqueue(data)
	return ok
}

func (c *Client) enqueue(data []byte) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, metrics.ReasonClosed
	}

	select {
	case c.send <- data:
		return true, ""
	default:
		// Buffer full, close the client
		c.closeLocked()
		return false, metrics.ReasonSlowConsumer
	}
}

// Close closes the client's send queue. The write pump then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Activity is one relayed frame as kept in the hub history.
type Activity struct {
	At         time.Time `json:"at"`
	From       string    `json:"from"`
	Message    Message   `json:"message"`
	Recipients int       `json:"recipients"`
}

// HubConfig configures a Hub. Every field is optional.
type HubConfig struct {
	Logger   logrus.FieldLogger
	Metrics  *metrics.Hub
	History  int
	Recorder *logger.Recorder
}

// Hub is the single relay scope. It exists implicitly while connections exist
// and holds no state beyond the connection set and the inspection history.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	log      logrus.FieldLogger
	metrics  *metrics.Hub
	history  *buffer.Ring[Activity]
	recorder *logger.Recorder

	onEmpty func()
}

// NewHub creates an empty Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	return &Hub{
		clients:  make(map[*Client]bool),
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		history:  buffer.NewRing[Activity](cfg.History),
		recorder: cfg.Recorder,
	}
}

// SetOnEmpty sets the callback for when the last client disconnects.
func (h *Hub) SetOnEmpty(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEmpty = callback
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connected()
	h.log.WithFields(logrus.Fields{"client": client.ID(), "clients": count}).Info("viewer connected")
}

// Unregister removes a client from the hub and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	onEmpty := h.onEmpty
	h.mu.Unlock()

	client.Close()
	if !ok {
		return
	}

	h.metrics.Disconnected()
	h.log.WithFields(logrus.Fields{"client": client.ID(), "clients": count}).Info("viewer disconnected")

	if count == 0 && onEmpty != nil {
		onEmpty()
	}
}

// Relay forwards a viewer's selection or highlight to every other client,
// rewriting SELECT_ELEMENT to ELEMENT_SELECTED and HIGHLIGHT_ELEMENT to
// ELEMENT_HIGHLIGHTED. The sender never receives its own frame. It returns
// the number of clients the frame was queued for.
func (h *Hub) Relay(from *Client, msg *Message) int {
	if msg == nil || msg.Selector == "" {
		return 0
	}
	outType, ok := RelayedType(msg.Type)
	if !ok {
		return 0
	}

	out := Message{
		Type:       outType,
		Selector:   msg.Selector,
		Attributes: msg.Attributes,
		Data:       msg.Data,
	}
	data, err := json.Marshal(out)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal relayed message")
		return 0
	}

	delivered := 0
	h.mu.RLock()
	for client := range h.clients {
		if client == from {
			continue
		}
		if ok, reason := client.enqueue(data); ok {
			delivered++
			h.metrics.Relayed(string(outType))
		} else {
			h.metrics.Dropped(reason)
			if reason == metrics.ReasonSlowConsumer {
				h.log.WithField("client", client.ID()).Warn("send queue full, closing slow viewer")
			}
		}
	}
	h.mu.RUnlock()

	fromID := ""
	if from != nil {
		fromID = from.ID()
	}
	h.history.Push(Activity{At: time.Now(), From: fromID, Message: out, Recipients: delivered})
	if h.recorder != nil {
		if err := h.recorder.Record(string(outType), data); err != nil {
			h.log.WithError(err).Warn("failed to record frame")
		}
	}
	return delivered
}

// Pong answers a keepalive ping from client.
func (h *Hub) Pong(client *Client) {
	data, err := json.Marshal(Message{Type: MessageTypePong})
	if err != nil {
		return
	}
	client.Send(data)
}

// Activity returns up to n of the most recently relayed frames, oldest first.
// n <= 0 returns the whole history.
func (h *Hub) Activity(n int) []Activity {
	return h.history.Last(n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasClients returns true if there are connected clients.
func (h *Hub) HasClients() bool {
	return h.ClientCount() > 0
}

// Close closes every client connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
