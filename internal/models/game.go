package models

import (
	"time"

	"github.com/google/uuid"
)

// GameStatus defines the lifecycle state of a game.
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusActive   GameStatus = "active"
	GameStatusFinished GameStatus = "finished"
)

// Team identifies one of the two sides of a game.
type Team string

const (
	TeamA Team = "team_a"
	TeamB Team = "team_b"
)

// Winner is the outcome of a finished game.
type Winner string

const (
	WinnerTeamA Winner = "team_a"
	WinnerTeamB Winner = "team_b"
	WinnerDraw  Winner = "draw"
)

// Game represents one capture-the-spot match. remaining_time only decreases
// while the game is active; waiting -> active -> finished is one-directional.
type Game struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	CenterStation string     `json:"center_station"`
	Status        GameStatus `json:"status"`
	TeamAScore    int        `json:"team_a_score"`
	TeamBScore    int        `json:"team_b_score"`
	Winner        *Winner    `json:"winner,omitempty"`
	MaxPlayers    int        `json:"max_players"`
	TimeLimit     int        `json:"time_limit"`     // seconds
	RemainingTime int        `json:"remaining_time"` // seconds
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}
