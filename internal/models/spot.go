package models

import (
	"time"

	"github.com/google/uuid"
)

// Spot is a geofenced circle players capture by dwelling inside it.
// OwnerTeam and CapturedAt are both nil until the spot is captured; once set
// they never change for the remainder of the game.
type Spot struct {
	ID               uuid.UUID  `json:"id"`
	GameID           uuid.UUID  `json:"game_id"`
	Name             string     `json:"name"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Radius           float64    `json:"radius"`             // meters
	RequiredStayTime int        `json:"required_stay_time"` // seconds
	OwnerTeam        *Team      `json:"owner_team"`
	CapturedAt       *time.Time `json:"captured_at"`
}

// Captured reports whether the spot has a permanent owner.
func (s *Spot) Captured() bool {
	return s.OwnerTeam != nil
}
