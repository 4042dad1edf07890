package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/game/events"
	"github.com/harukimoto/spotclash/internal/game/session"
)

// EventPublisher mirrors room broadcasts onto an external bus so other
// processes can observe the same event stream. Optional.
type EventPublisher interface {
	Publish(gameID uuid.UUID, event events.Event)
}

// Hub manages the WebSocket rooms, one per game. It implements
// session.Broadcaster: every session-originated event is enqueued onto a
// single broadcast channel, and one goroutine fans events out in FIFO order,
// so room members observe a game's events in exactly the order the session
// applied them.
type Hub struct {
	rooms map[uuid.UUID]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage

	registry  *session.Registry
	publisher EventPublisher
}

// Connection represents one WebSocket client in a game room. PlayerID is
// uuid.Nil for spectators (identities not on the game's roster).
type Connection struct {
	ID       string
	UserID   string
	PlayerID uuid.UUID
	GameID   uuid.UUID

	ws   *websocket.Conn
	Send chan []byte
	hub  *Hub

	session *session.Session

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds WebSocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

type broadcastMessage struct {
	GameID uuid.UUID
	Event  events.Event
	Data   []byte // pre-encoded envelope, serialized once per broadcast
}

// How long a capture or terminal event may wait for room in the broadcast
// queue before it is dropped.
const broadcastEnqueueTimeout = 250 * time.Millisecond

// NewHub creates the connection hub. The registry resolves game sessions;
// publisher may be nil.
func NewHub(config ConnectionConfig, registry *session.Registry, publisher EventPublisher) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
		registry:    registry,
		publisher:   publisher,
	}
}

// Run processes broadcast messages until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("connection hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection hub shutting down")
			return
		case message := <-h.broadcastCh:
			h.handleBroadcast(message)
		}
	}
}

// Broadcast enqueues an event for every connection in the game's room. The
// envelope is serialized here, at enqueue time, so the bytes are a consistent
// snapshot of the state the session just mutated. A full queue drops routine
// events rather than stalling a session; captures, snapshots and the terminal
// event instead wait briefly for the hub to drain, since no later event
// supersedes them.
func (h *Hub) Broadcast(gameID uuid.UUID, event events.Event) {
	data, err := event.Encode()
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to encode event for broadcast")
		return
	}
	message := broadcastMessage{GameID: gameID, Event: event, Data: data}
	select {
	case h.broadcastCh <- message:
		return
	default:
	}

	switch event.Type {
	case events.TypeSpotCaptured, events.TypeGameFinished, events.TypeGameUpdate:
		timer := time.NewTimer(broadcastEnqueueTimeout)
		defer timer.Stop()
		select {
		case h.broadcastCh <- message:
		case <-timer.C:
			log.Error().
				Str("game_id", gameID.String()).
				Str("event_type", string(event.Type)).
				Msg("broadcast queue full, dropped critical event")
		}
	default:
		log.Warn().
			Str("game_id", gameID.String()).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast fans one message out to its room and mirrors it to the bus.
// Sends happen under the read lock: unregisterConnection closes a Send channel
// only under the write lock, so a disconnect can never close a channel while
// the fan-out is sending on it.
func (h *Hub) handleBroadcast(message broadcastMessage) {
	h.mu.RLock()
	room := h.rooms[message.GameID]
	sent := len(room)
	var slow []*Connection
	for conn := range room {
		select {
		case conn.Send <- message.Data:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	// Evict slow or dead connections outside the read lock so the room keeps
	// moving; unregister needs the write lock.
	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		h.unregisterConnection(conn)
		conn.closeSocket()
	}

	if h.publisher != nil {
		h.publisher.Publish(message.GameID, message.Event)
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("game_id", message.GameID.String()).
		Int("connections", sent).
		Msg("event broadcasted")
}

// registerConnection adds a connection to its game room.
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conn.GameID] == nil {
		h.rooms[conn.GameID] = make(map[*Connection]bool)
	}
	h.rooms[conn.GameID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("game_id", conn.GameID.String()).
		Int("room_size", len(h.rooms[conn.GameID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection from its room exactly once,
// announces the departure, and tears the room down when it empties.
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	room, exists := h.rooms[conn.GameID]
	if !exists {
		h.mu.Unlock()
		return
	}
	if _, exists := room[conn]; !exists {
		h.mu.Unlock()
		return
	}
	delete(room, conn)
	close(conn.Send)
	if len(room) == 0 {
		delete(h.rooms, conn.GameID)
	}
	h.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("game_id", conn.GameID.String()).
		Msg("connection unregistered")

	if conn.PlayerID != uuid.Nil {
		conn.session.Leave(conn.PlayerID)
	}
	h.registry.Release(conn.GameID)
}

// RoomSize returns the number of connections in a game's room.
func (h *Hub) RoomSize(gameID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}

// Stats returns connection counts per game for the info endpoint.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	perGame := make(map[string]int)
	for gameID, room := range h.rooms {
		total += len(room)
		perGame[gameID.String()] = len(room)
	}
	return map[string]any{
		"total_connections": total,
		"active_games":      len(perGame),
		"game_connections":  perGame,
	}
}

// send unicasts one event to this connection only. The membership check under
// the read lock orders the send against the close in unregisterConnection; a
// unicast racing a disconnect is dropped instead of hitting a closed channel.
func (c *Connection) send(event events.Event) {
	data, err := event.Encode()
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to encode unicast event")
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.rooms[c.GameID][c] {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("unicast dropped, send buffer full")
	}
}

func (c *Connection) closeSocket() {
	if c.ws != nil {
		c.ws.Close()
	}
}

// writePump drains the Send channel onto the socket and keeps the connection
// alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeSocket()
		c.hub.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads inbound client messages and dispatches them.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregisterConnection(c)
		c.closeSocket()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			break
		}
		c.handleClientMessage(message)
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
