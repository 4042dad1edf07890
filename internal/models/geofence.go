package models

import (
	"time"

	"github.com/google/uuid"
)

// GeofenceEntry is the live dwell state for one (player, spot) pair. It exists
// only while the player's reported position stays inside the spot's radius;
// leaving the radius discards it together with all accumulated dwell time.
// It is current state, not a history log: at most one entry per pair.
type GeofenceEntry struct {
	ID           uuid.UUID `json:"id"`
	PlayerID     uuid.UUID `json:"player_id"`
	SpotID       uuid.UUID `json:"spot_id"`
	EnteredAt    time.Time `json:"entered_at"`
	StayDuration int       `json:"stay_duration"` // seconds of continuous presence
	IsCaptured   bool      `json:"is_captured"`
}
