package realtime

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openwave-labs/openwave/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	defaultBufferSize = 64
)

// Hub is the connection registry and fan-out primitive. It tracks which
// connections belong to which named groups and delivers events to every
// current member of a group. All mutation happens under one RWMutex; no
// component reaches into the table directly.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Connection]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		groups: make(map[string]map[*Connection]struct{}),
	}
}

// Admit registers the connection under every named group atomically. Called
// once per connection, after authentication and authorization have passed.
func (h *Hub) Admit(c *Connection, groups ...string) {
	if c == nil || len(groups) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, group := range groups {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		if h.groups[group] == nil {
			h.groups[group] = make(map[*Connection]struct{})
		}
		h.groups[group][c] = struct{}{}
		c.groups[group] = struct{}{}
	}
}

// Dismiss removes the connection from every group it was registered under.
// Idempotent; runs on every disconnect path regardless of how the connection
// ended.
func (h *Hub) Dismiss(c *Connection) {
	if c == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for group := range c.groups {
		members, ok := h.groups[group]
		if !ok {
			continue
		}
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, group)
		}
		delete(c.groups, group)
	}
}

// Broadcast delivers the event to every connection currently in the group.
// Delivery per connection is fire-and-forget: a slow or closed connection is
// dropped without blocking the rest of the group. Submission order per group
// is preserved for well-behaved consumers because each connection's queue is
// FIFO and fan-out happens inline.
func (h *Hub) Broadcast(group string, event Event) {
	h.broadcast(group, event, "")
}

// BroadcastExcept behaves like Broadcast but skips every connection owned by
// the excluded user; used for typing indicators and join/leave presence so
// originators never receive their own echo.
func (h *Hub) BroadcastExcept(group string, event Event, exceptUserID string) {
	h.broadcast(group, event, exceptUserID)
}

func (h *Hub) broadcast(group string, event Event, exceptUserID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.groups[group] {
		if exceptUserID != "" && c.userID == exceptUserID {
			continue
		}
		if !c.enqueue(event) {
			// Backpressure: drop the laggard, not the group. Close must not
			// run under the read lock because Dismiss takes the write lock.
			go c.Close()
		}
	}
}

// GroupSize reports the current member count of a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Connection is one accepted client socket. It is owned by the hub from
// Admit until Close; inbound events are processed sequentially by Run while
// outbound delivery runs on a dedicated writer goroutine.
type Connection struct {
	hub      *Hub
	socket   *websocket.Conn
	userID   string
	endpoint string

	// groups is guarded by hub.mu.
	groups map[string]struct{}

	send chan Event

	mu     sync.Mutex
	closed bool
	once   sync.Once

	// onPong refreshes presence on every heartbeat; onClose runs after the
	// connection has been dismissed. Both are optional.
	onPong  func()
	onClose func()
}

// NewConnection wraps an upgraded socket. The endpoint label feeds the
// open-connections gauge (chat|global|call).
func NewConnection(hub *Hub, socket *websocket.Conn, userID, endpoint string) *Connection {
	metrics.OpenConnections.WithLabelValues(endpoint).Inc()
	return &Connection{
		hub:      hub,
		socket:   socket,
		userID:   userID,
		endpoint: endpoint,
		groups:   make(map[string]struct{}),
		send:     make(chan Event, defaultBufferSize),
	}
}

// UserID returns the authenticated owner of the connection.
func (c *Connection) UserID() string {
	return c.userID
}

// OnPong registers the heartbeat hook. Must be set before Run.
func (c *Connection) OnPong(fn func()) {
	c.onPong = fn
}

// OnClose registers the teardown hook. Must be set before Run.
func (c *Connection) OnClose(fn func()) {
	c.onClose = fn
}

// Send queues a direct event for this connection only.
func (c *Connection) Send(event Event) {
	if !c.enqueue(event) {
		go c.Close()
	}
}

// enqueue attempts a non-blocking delivery. It reports false when the
// connection is closed or its buffer is full.
func (c *Connection) enqueue(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- event:
		metrics.EventsDelivered.WithLabelValues(event.Type).Inc()
		return true
	default:
		metrics.EventsDropped.Inc()
		return false
	}
}

// Run starts the writer goroutine and consumes inbound events until the
// socket closes, handing each decoded event to the handler. Events from one
// connection are processed strictly sequentially. Close is guaranteed to run
// on exit.
func (c *Connection) Run(handler func(InboundEvent)) {
	go c.writeLoop()
	c.readLoop(handler)
}

func (c *Connection) readLoop(handler func(InboundEvent)) {
	defer c.Close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		if c.onPong != nil {
			c.onPong()
		}
		return nil
	})

	for {
		var event InboundEvent
		if err := c.socket.ReadJSON(&event); err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				return
			}
			if _, ok := err.(net.Error); ok {
				return
			}
			// Malformed envelope: report and keep the connection open.
			c.Send(ErrorEvent("Invalid JSON"))
			continue
		}

		handler(event)
	}
}

func (c *Connection) writeLoop() {
	defer c.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close dismisses the connection from every group, unblocks in-flight sends,
// and tears down the socket. Safe to call from any goroutine, any number of
// times; teardown runs exactly once.
func (c *Connection) Close() {
	c.once.Do(func() {
		c.hub.Dismiss(c)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if c.socket != nil {
			_ = c.socket.Close()
		}
		if c.onClose != nil {
			c.onClose()
		}
		metrics.OpenConnections.WithLabelValues(c.endpoint).Dec()
	})
}

// NewUpgrader builds the websocket upgrader shared by the realtime endpoints.
// Same-origin requests and loopback development hosts are accepted.
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			originHost := hostWithoutPort(origin)
			requestHost := hostWithoutPort(r.Host)
			return originHost == requestHost || isLoopback(originHost)
		},
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
