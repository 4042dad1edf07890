package game

import "github.com/harukimoto/spotclash/internal/models"

// CreateGameRequest creates a new waiting game centered on a station.
type CreateGameRequest struct {
	Name          string `json:"name"`
	CenterStation string `json:"center_station"`
}

// JoinGameRequest adds a user to a game's roster. Team is optional; when
// empty the player is assigned to the smaller team.
type JoinGameRequest struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Team     models.Team `json:"team,omitempty"`
}

// GameDetail is a game together with its roster and spots, the REST
// counterpart of the WebSocket game_update snapshot.
type GameDetail struct {
	*models.Game
	Spots   []*models.Spot   `json:"spots"`
	Players []*models.Player `json:"players"`
}
