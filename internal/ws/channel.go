package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultReconnectBackoff is the fixed wait between relay connection attempts.
const DefaultReconnectBackoff = 2 * time.Second

const channelSendBuffer = 256

// Dialer opens the relay connection. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	URL     string
	Backoff time.Duration
	Dialer  Dialer
	Logger  logrus.FieldLogger
}

// Channel is a viewer's connection to the relay. It redials forever with a
// fixed backoff until closed. Sends while disconnected are dropped, never
// queued or replayed.
type Channel struct {
	cfg ChannelConfig
	log logrus.FieldLogger

	mu      sync.Mutex
	out     chan []byte // nil while disconnected
	subs    []func(Message)
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	nudge chan struct{}
}

// NewChannel creates a Channel. Nothing is dialed until Connect.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultReconnectBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Channel{
		cfg:   cfg,
		log:   cfg.Logger.WithField("relay", cfg.URL),
		done:  make(chan struct{}),
		nudge: make(chan struct{}, 1),
	}
}

// Subscribe registers fn for every inbound selection or highlight. Subscribers
// are called in registration order, on the channel's read goroutine, in the
// order the relay delivered the frames.
func (c *Channel) Subscribe(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Connect starts the connection supervisor. Calling it again is a no-op.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Connected reports whether a relay connection is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out != nil
}

// Send queues msg for the relay. While disconnected the message is dropped
// and a reconnect attempt is triggered. It returns whether msg was queued.
func (c *Channel) Send(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Error("failed to marshal message")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.out == nil {
		c.log.WithField("type", msg.Type).Debug("not connected, dropping message")
		select {
		case c.nudge <- struct{}{}:
		default:
		}
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		c.log.WithField("type", msg.Type).Warn("send queue full, dropping message")
		return false
	}
}

// Close stops the supervisor and closes the current connection.
func (c *Channel) Close() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	<-c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.WithError(err).WithField("backoff", c.cfg.Backoff).Warn("relay connection lost, reconnecting")

		// A send while disconnected cuts the wait short.
		timer := time.NewTimer(c.cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-c.nudge:
			timer.Stop()
		}
	}
}

// serve dials once and blocks until that connection ends.
func (c *Channel) serve(ctx context.Context) error {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}
	c.log.Info("connected to relay")

	out := make(chan []byte, channelSendBuffer)
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(conn, out, stop)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	err = c.readPump(conn)

	// Anything still queued belongs to the dead connection and is dropped.
	c.mu.Lock()
	c.out = nil
	c.mu.Unlock()

	close(stop)
	conn.Close()
	<-writerDone
	return err
}

func (c *Channel) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := DecodeRelayFrame(raw)
		if err != nil {
			c.log.WithError(err).Warn("discarding frame")
			continue
		}
		if msg.Type == MessageTypePong {
			continue
		}
		c.deliver(*msg)
	}
}

func (c *Channel) writePump(conn *websocket.Conn, out <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case data := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *Channel) deliver(msg Message) {
	c.mu.Lock()
	subs := make([]func(Message), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}
