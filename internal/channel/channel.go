// README: Event channel; one long-lived socket with reconnect, rooms, and a handler registry.
package channel

import (
	"context"
	"encoding/json"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"milkrun/internal/config"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

type RoomKind string

const (
	RoomGeneric         RoomKind = "generic"
	RoomBranch          RoomKind = "branch"
	RoomDeliveryPartner RoomKind = "deliveryPartner"
	RoomCustomer        RoomKind = "customer"
	RoomSubscription    RoomKind = "subscription"
)

var joinEvents = map[RoomKind]string{
	RoomGeneric:         "joinRoom",
	RoomBranch:          "joinBranchRoom",
	RoomDeliveryPartner: "joinDeliveryPartnerRoom",
	RoomCustomer:        "joinCustomerRoom",
	RoomSubscription:    "joinSubscriptionRoom",
}

// frame is the wire envelope for both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Handler func(data json.RawMessage)

// Conn is the slice of a websocket connection the channel uses; gorilla's
// *websocket.Conn satisfies it, tests inject fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

type Dialer func(ctx context.Context, url string) (Conn, error)

func GorillaDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return conn, err
}

type handlerEntry struct {
	key uintptr
	fn  Handler
}

// Subscription is a registration handle with explicit disposal.
type Subscription struct {
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Channel owns one socket to the backend. Connect is idempotent; a lost
// connection reconnects with capped backoff up to a bounded attempt count,
// after which the channel stays disconnected. Handlers survive reconnects;
// Disconnect clears them all.
type Channel struct {
	cfg  config.ChannelConfig
	dial Dialer

	mu        sync.Mutex
	conn      Conn
	state     State
	gen       int
	closed    bool
	handlers  map[string][]handlerEntry
	onConnect []func()
}

func New(cfg config.ChannelConfig, dial Dialer) *Channel {
	if dial == nil {
		dial = GorillaDialer
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	return &Channel{
		cfg:      cfg,
		dial:     dial,
		state:    StateDisconnected,
		handlers: make(map[string][]handlerEntry),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection if not already live, retrying failed
// dials with the same bounded backoff a dropped connection gets. Safe to
// call repeatedly; a live connection makes it a no-op. After the attempt
// cap the channel is left disconnected and the last dial error returned.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.mu.Unlock()

	backoff := c.cfg.BackoffMin
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.cfg.BackoffMax {
				backoff = c.cfg.BackoffMax
			}
		}

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}

		conn, err := c.dial(ctx, c.cfg.URL)
		if err != nil {
			lastErr = err
			log.Printf("channel: connect attempt %d/%d failed: %v", attempt, c.cfg.MaxAttempts, err)
			continue
		}
		c.attach(conn, -1)
		return nil
	}

	c.mu.Lock()
	if !c.closed {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	log.Printf("channel: giving up after %d connect attempts", c.cfg.MaxAttempts)
	return lastErr
}

// attach installs conn as the sole live connection, closing any connection
// it supersedes. With expect >= 0 the install is abandoned unless the
// generation still matches, so a reconnect dial that lost a race with
// Connect or Disconnect cannot attach a second socket.
func (c *Channel) attach(conn Conn, expect int) bool {
	c.mu.Lock()
	if c.closed || (expect >= 0 && c.gen != expect) {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.state = StateConnected
	c.gen++
	gen := c.gen
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	log.Printf("channel: connected")
	for _, hook := range hooks {
		hook()
	}
	go c.readLoop(conn, gen)
	return true
}

// Disconnect closes the socket, clears every registered handler, and stops
// any reconnect in flight. No-op when already disconnected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.closed = true
	c.gen++
	c.handlers = make(map[string][]handlerEntry)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		log.Printf("channel: disconnected")
	}
}

// OnConnect registers a hook run after every successful connect, including
// automatic reconnects. Room joins hang off this so a reconnect never
// silently loses live updates.
func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// On registers a handler for a named server event. Registering the same
// function twice for one event keeps a single registration.
func (c *Channel) On(event string, fn Handler) *Subscription {
	key := reflect.ValueOf(fn).Pointer()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.handlers[event] {
		if e.key == key {
			return &Subscription{cancel: func() { c.remove(event, key) }}
		}
	}
	c.handlers[event] = append(c.handlers[event], handlerEntry{key: key, fn: fn})
	return &Subscription{cancel: func() { c.remove(event, key) }}
}

// Off removes every handler for an event.
func (c *Channel) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

func (c *Channel) remove(event string, key uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[event]
	for i, e := range entries {
		if e.key == key {
			c.handlers[event] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Emit sends fire-and-forget. Dropped with a log line when disconnected;
// emits are not queued for replay.
func (c *Channel) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("channel: encoding %s payload: %v", event, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		log.Printf("channel: dropping %s emit, not connected", event)
		return
	}
	if err := c.conn.WriteJSON(frame{Event: event, Data: data}); err != nil {
		log.Printf("channel: emitting %s: %v", event, err)
	}
}

// JoinRoom requests membership in a server-side broadcast room. No-op when
// disconnected.
func (c *Channel) JoinRoom(kind RoomKind, id string) {
	event, ok := joinEvents[kind]
	if !ok {
		log.Printf("channel: unknown room kind %q", kind)
		return
	}
	c.Emit(event, id)
}

func (c *Channel) readLoop(conn Conn, gen int) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}
		if !c.live(gen) {
			_ = conn.Close()
			return
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			log.Printf("channel: dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(f)
	}
}

// live reports whether gen is still the current connection generation.
// Frames read by a superseded connection are discarded on this check.
func (c *Channel) live(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && !c.closed
}

func (c *Channel) dispatch(f frame) {
	c.mu.Lock()
	entries := append([]handlerEntry{}, c.handlers[f.Event]...)
	c.mu.Unlock()
	if len(entries) == 0 {
		log.Printf("channel: no handler for event %q", f.Event)
		return
	}
	for _, e := range entries {
		e.fn(f.Data)
	}
}

func (c *Channel) handleDrop(gen int, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateReconnecting
	c.mu.Unlock()

	log.Printf("channel: connection lost: %v", cause)
	c.reconnect(gen)
}

func (c *Channel) reconnect(gen int) {
	backoff := c.cfg.BackoffMin
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		time.Sleep(backoff)
		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}

		if !c.live(gen) {
			return
		}

		conn, err := c.dial(context.Background(), c.cfg.URL)
		if err != nil {
			log.Printf("channel: reconnect attempt %d/%d failed: %v", attempt, c.cfg.MaxAttempts, err)
			continue
		}
		c.attach(conn, gen)
		return
	}

	c.mu.Lock()
	if c.gen == gen && !c.closed {
		c.state = StateDisconnected
	}
	c.mu.Unlock()
	log.Printf("channel: giving up after %d reconnect attempts", c.cfg.MaxAttempts)
}
