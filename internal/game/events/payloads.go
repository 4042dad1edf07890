package events

import (
	"time"

	"github.com/google/uuid"
)

// GameSnapshot is the full current state sent as game_update to a client that
// just connected (and after state transitions that change the whole game).
type GameSnapshot struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Status        string           `json:"status"`
	TeamAScore    int              `json:"team_a_score"`
	TeamBScore    int              `json:"team_b_score"`
	RemainingTime int              `json:"remaining_time"`
	CenterStation string           `json:"center_station"`
	Spots         []SpotSnapshot   `json:"spots"`
	Players       []PlayerSnapshot `json:"players"`
}

type SpotSnapshot struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	Radius           float64    `json:"radius"`
	RequiredStayTime int        `json:"required_stay_time"`
	OwnerTeam        *string    `json:"owner_team"`
	CapturedAt       *time.Time `json:"captured_at"`
}

type PlayerSnapshot struct {
	ID               uuid.UUID `json:"id"`
	Username         string    `json:"username"`
	Team             string    `json:"team"`
	CurrentLatitude  *float64  `json:"current_latitude"`
	CurrentLongitude *float64  `json:"current_longitude"`
	IsOnline         bool      `json:"is_online"`
	LastSeen         time.Time `json:"last_seen"`
}

// SpotCapturedPayload announces a permanent capture together with the updated
// scores so clients never see a score that predates the capture.
type SpotCapturedPayload struct {
	SpotID     uuid.UUID `json:"spot_id"`
	Team       string    `json:"team"`
	Player     string    `json:"player"`
	CapturedAt time.Time `json:"captured_at"`
	TeamAScore int       `json:"team_a_score"`
	TeamBScore int       `json:"team_b_score"`
}

type GameTimerPayload struct {
	RemainingTime int `json:"remaining_time"`
}

type GameFinishedPayload struct {
	Winner     string    `json:"winner"`
	FinishedAt time.Time `json:"finished_at"`
}

type PlayerPositionUpdatePayload struct {
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type PlayerLeftPayload struct {
	PlayerID uuid.UUID `json:"player_id"`
}

// GeofenceResultPayload is the entry snapshot returned to the requesting
// client only. required_time lets the client render capture progress.
type GeofenceResultPayload struct {
	ID           uuid.UUID `json:"id"`
	SpotID       uuid.UUID `json:"spot_id"`
	PlayerID     uuid.UUID `json:"player_id"`
	EnteredAt    time.Time `json:"entered_at"`
	StayDuration int       `json:"stay_duration"`
	IsCaptured   bool      `json:"is_captured"`
	RequiredTime int       `json:"required_time"`
}

// ClientMessage is the inbound tagged union. Fields beyond Type are flat on
// the wire, matching the client protocol.
type ClientMessage struct {
	Type      EventType  `json:"type"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	SpotID    *uuid.UUID `json:"spot_id,omitempty"`
}
