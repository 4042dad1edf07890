package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a participant in one game. UserID is the opaque, already
// authenticated identity the connection presents; position fields are the last
// reported GPS fix and stay nil until the first player_position message.
type Player struct {
	ID               uuid.UUID `json:"id"`
	GameID           uuid.UUID `json:"game_id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	Team             Team      `json:"team"`
	CurrentLatitude  *float64  `json:"current_latitude"`
	CurrentLongitude *float64  `json:"current_longitude"`
	IsOnline         bool      `json:"is_online"`
	JoinedAt         time.Time `json:"joined_at"`
	LastSeen         time.Time `json:"last_seen"`
}

// HasPosition reports whether the player ever reported a GPS fix.
func (p *Player) HasPosition() bool {
	return p.CurrentLatitude != nil && p.CurrentLongitude != nil
}
