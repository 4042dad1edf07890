package gateway

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/game/events"
	"github.com/harukimoto/spotclash/internal/game/session"
)

// handleClientMessage dispatches one inbound message by its type tag.
// Failures never leave the connection: malformed input and unknown record ids
// are answered with a unicast error, unknown types are silently ignored, and a
// panic in a handler is recovered into a unicast error so one client can never
// take the room down.
func (c *Connection) handleClientMessage(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Any("panic", r).
				Str("connection_id", c.ID).
				Str("game_id", c.GameID.String()).
				Msg("recovered panic while handling client message")
			c.send(events.NewError("internal error"))
		}
	}()

	var msg events.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.send(events.NewError("Invalid JSON"))
		return
	}

	switch msg.Type {
	case events.TypePlayerPosition:
		c.handlePlayerPosition(msg)
	case events.TypeGeofenceCheck:
		c.handleGeofenceCheck(msg)
	default:
		// Lenient dispatch: unknown message kinds are not an error.
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", string(msg.Type)).
			Msg("ignoring unknown client message type")
	}
}

func (c *Connection) handlePlayerPosition(msg events.ClientMessage) {
	if msg.Latitude == nil || msg.Longitude == nil {
		c.send(events.NewError("latitude and longitude are required"))
		return
	}
	if err := c.session.ApplyPositionUpdate(c.PlayerID, *msg.Latitude, *msg.Longitude); err != nil {
		if errors.Is(err, session.ErrUnknownPlayer) {
			c.send(events.NewError(err.Error()))
			return
		}
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("position update failed")
		c.send(events.NewError("position update failed"))
	}
}

func (c *Connection) handleGeofenceCheck(msg events.ClientMessage) {
	if msg.SpotID == nil {
		c.send(events.NewError("spot_id is required"))
		return
	}
	// The result goes to the requesting client only; capture side effects are
	// broadcast to the room by the session itself.
	result := c.session.CheckGeofence(c.PlayerID, *msg.SpotID)
	if result == nil {
		c.send(events.NewNull(events.TypeGeofenceResult))
		return
	}
	c.send(events.New(events.TypeGeofenceResult, result))
}
