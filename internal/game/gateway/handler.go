package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/game/events"
)

// Handler upgrades HTTP requests to game WebSocket connections.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleGameConnection joins the client to the room named by the game id in
// the path. The user id arrives as a query parameter; in production it would
// come from the session token, the gateway only treats it as opaque identity.
func (h *Handler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	gameID, err := uuid.Parse(r.PathValue("game_id"))
	if err != nil {
		http.Error(w, "invalid game_id format", http.StatusBadRequest)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	// The acquired reference keeps the session alive until this connection
	// unregisters, so a concurrent last-disconnect cannot evict it under us.
	sess, err := h.hub.registry.Acquire(r.Context(), gameID)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to load game session")
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}

	ws, err := h.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.registry.Release(gameID)
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	// Non-roster identities stay connected as spectators: they receive every
	// broadcast but their position and geofence messages are rejected.
	playerID, onRoster := sess.PlayerByUserID(userID)

	conn := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		PlayerID:    playerID,
		GameID:      gameID,
		ws:          ws,
		Send:        make(chan []byte, 256),
		hub:         h.hub,
		session:     sess,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.hub.registerConnection(conn)

	go conn.writePump()
	go conn.readPump()

	if onRoster {
		sess.Join(playerID)
	}
	conn.send(events.New(events.TypeGameUpdate, sess.Snapshot()))

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", userID).
		Str("game_id", gameID.String()).
		Bool("on_roster", onRoster).
		Msg("WebSocket connection established")
}

// HandleStats reports live connection counts.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.hub.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/game/{game_id}", h.HandleGameConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleStats)
}
