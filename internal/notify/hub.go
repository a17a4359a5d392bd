package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/iotfleet/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client commands, sent as {"action": "...", "id": "..."}.
const (
	ActionJoinFleet    = "join_fleet"
	ActionLeaveFleet   = "leave_fleet"
	ActionJoinVehicle  = "join_vehicle"
	ActionLeaveVehicle = "leave_vehicle"
	ActionJoinAdmin    = "join_admin"
	ActionLeaveAdmin   = "leave_admin"
)

// Replies to client commands.
const (
	EventJoined = "Joined"
	EventLeft   = "Left"
	EventError  = "Error"
)

var errHubClosed = errors.New("hub closed")

type command struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Hub keeps websocket subscribers and their group memberships. Each client
// has a buffered send queue; when it is full the message is dropped for that
// client only.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int
	log        log.FieldLogger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	dropped atomic.Int64
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	claims *models.Claims

	mu     sync.Mutex
	groups map[string]struct{}
}

// NewHub creates a hub. sendBuffer is the per-client queue length.
func NewHub(sendBuffer int, logger log.FieldLogger) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 64
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sendBuffer: sendBuffer,
		log:        logger.WithField("component", "hub"),
		clients:    make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and registers the connection. claims decide
// whether the client may join the admin group; nil claims never can.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, claims *models.Claims) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		claims: claims,
		groups: make(map[string]struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.WithField("clients", total).Debug("Websocket client connected")

	go c.writePump()
	go c.readPump()
}

// SendToAll queues the event for every connected client.
func (h *Hub) SendToAll(ctx context.Context, event string, payload interface{}) error {
	msg, err := encode("", "", event, payload)
	if err != nil {
		return err
	}
	return h.broadcast(msg, func(*client) bool { return true })
}

// SendToGroup queues the event for clients that joined group.
func (h *Hub) SendToGroup(ctx context.Context, group, event string, payload interface{}) error {
	msg, err := encode("", group, event, payload)
	if err != nil {
		return err
	}
	return h.broadcast(msg, func(c *client) bool { return c.inGroup(group) })
}

func (h *Hub) broadcast(msg []byte, match func(*client) bool) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return errHubClosed
	}
	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Publish forwards an already encoded envelope to local subscribers. It is
// used by the Redis relay.
func (h *Hub) Publish(env Envelope) error {
	env.Origin = ""
	msg, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if env.Group == "" {
		return h.broadcast(msg, func(*client) bool { return true })
	}
	return h.broadcast(msg, func(c *client) bool { return c.inGroup(env.Group) })
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded on full queues.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client. Further sends fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.WithField("clients", len(h.clients)).Debug("Websocket client disconnected")
}

func (c *client) inGroup(group string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[group]
	return ok
}

func (c *client) join(group string) {
	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
}

func (c *client) leave(group string) {
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("Websocket read error")
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(EventError, map[string]string{"message": "invalid command"})
			continue
		}
		c.handle(cmd)
	}
}

func (c *client) handle(cmd command) {
	var group string
	join := true

	switch cmd.Action {
	case ActionJoinFleet, ActionLeaveFleet:
		group = FleetGroup(cmd.ID)
		join = cmd.Action == ActionJoinFleet
	case ActionJoinVehicle, ActionLeaveVehicle:
		group = VehicleGroup(cmd.ID)
		join = cmd.Action == ActionJoinVehicle
	case ActionJoinAdmin, ActionLeaveAdmin:
		group = GroupAdmin
		join = cmd.Action == ActionJoinAdmin
		if join && (c.claims == nil || !c.claims.CanJoinAdminGroup()) {
			c.reply(EventError, map[string]string{"message": "admin group requires admin or manager role"})
			return
		}
	default:
		c.reply(EventError, map[string]string{"message": "unknown action"})
		return
	}

	if group != GroupAdmin && cmd.ID == "" {
		c.reply(EventError, map[string]string{"message": "id is required"})
		return
	}

	if join {
		c.join(group)
		c.reply(EventJoined, map[string]string{"group": group})
		return
	}
	c.leave(group)
	c.reply(EventLeft, map[string]string{"group": group})
}

// reply queues a direct answer. It holds the hub read lock so it cannot race
// with unregister closing the queue.
func (c *client) reply(event string, payload interface{}) {
	msg, err := encode("", "", event, payload)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.dropped.Add(1)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.log.WithError(err).Debug("Websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
