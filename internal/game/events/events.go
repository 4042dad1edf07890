package events

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// EventType tags every server-to-client message.
type EventType string

const (
	TypeGameUpdate           EventType = "game_update"
	TypePlayerJoined         EventType = "player_joined"
	TypePlayerLeft           EventType = "player_left"
	TypeSpotCaptured         EventType = "spot_captured"
	TypeGameTimer            EventType = "game_timer"
	TypeGameFinished         EventType = "game_finished"
	TypePlayerPositionUpdate EventType = "player_position_update"
	TypeGeofenceResult       EventType = "geofence_result"
	TypeError                EventType = "error"
)

// Client-to-server message types.
const (
	TypePlayerPosition EventType = "player_position"
	TypeGeofenceCheck  EventType = "geofence_check"
)

// Event is the wire envelope for server-to-client messages. Data carries the
// payload pre-marshaled so the hub serializes each broadcast exactly once.
type Event struct {
	Type    EventType       `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// New builds an event with the given payload. Payloads are our own structs, so
// a marshal failure indicates a programming error and is logged, not returned.
func New(t EventType, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
		data = []byte("null")
	}
	return Event{Type: t, Data: data}
}

// NewNull builds an event whose data field is an explicit JSON null. The
// geofence_result for an out-of-radius check is the one place this matters.
func NewNull(t EventType) Event {
	return Event{Type: t, Data: json.RawMessage("null")}
}

// NewError builds the error envelope sent to a single misbehaving client.
func NewError(msg string) Event {
	return Event{Type: TypeError, Message: msg}
}

// Encode serializes the full envelope.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
