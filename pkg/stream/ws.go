package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type retained struct {
	event   string
	payload any
}

// WSChannel is a Channel over a websocket connection. Run keeps it connected,
// reconnecting with exponential backoff and replaying retained requests.
type WSChannel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	listeners map[string]map[uint64]func(json.RawMessage)
	nextID    uint64
	retained  map[string]retained
	connected chan struct{}
	closed    bool

	writeMu sync.Mutex

	// OnConnect, if set, is called after every successful (re)connect.
	OnConnect func()
	// OnFrame, if set, sees every inbound frame before dispatch.
	OnFrame func(env Envelope)
}

// NewWSChannel prepares a channel for url. A non-empty token is sent as a bearer
// Authorization header.
func NewWSChannel(url, token string) *WSChannel {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WSChannel{
		url:       url,
		header:    header,
		dialer:    websocket.DefaultDialer,
		listeners: make(map[string]map[uint64]func(json.RawMessage)),
		retained:  make(map[string]retained),
		connected: make(chan struct{}),
	}
}

// Run dials and reads until ctx is done.
func (c *WSChannel) Run(ctx context.Context) {
	backoff := 1 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[STREAM] Connecting to %s", c.url)
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			log.Printf("[STREAM] Dial error: %v. Retrying in %v...", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			continue
		}
		backoff = 1 * time.Second

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		pending := make([]retained, 0, len(c.retained))
		for _, r := range c.retained {
			pending = append(pending, r)
		}
		select {
		case <-c.connected:
		default:
			close(c.connected)
		}
		c.mu.Unlock()

		for _, r := range pending {
			if err := c.write(conn, r.event, r.payload); err != nil {
				log.Printf("[STREAM] Replay of %s failed: %v", r.event, err)
			}
		}
		if c.OnConnect != nil {
			c.OnConnect()
		}

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		c.readLoop(conn)
		stop()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connected = make(chan struct{})
		c.mu.Unlock()
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (c *WSChannel) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[STREAM] Read error: %v. Reconnecting...", err)
			return
		}
		var env Envelope
		if json.Unmarshal(message, &env) != nil || env.Event == "" {
			continue
		}
		if c.OnFrame != nil {
			c.OnFrame(env)
		}
		c.dispatch(env)
	}
}

func (c *WSChannel) dispatch(env Envelope) {
	c.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(c.listeners[env.Event]))
	for _, fn := range c.listeners[env.Event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(env.Data)
	}
}

// WaitConnected blocks until the first connection is up or ctx is done.
func (c *WSChannel) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ch := c.connected
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WSChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, event, payload)
}

func (c *WSChannel) write(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (c *WSChannel) Listen(event string, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.listeners[event] == nil {
		c.listeners[event] = make(map[uint64]func(json.RawMessage))
	}
	c.listeners[event][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners[event], id)
	}
}

func (c *WSChannel) Retain(key, event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retained[key] = retained{event: event, payload: payload}
}

func (c *WSChannel) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.retained, key)
}

// Close sends a close frame and stops further emits. Run returns once its
// context is cancelled.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.closed = true
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}
