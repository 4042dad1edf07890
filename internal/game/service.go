package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/models"
	"github.com/harukimoto/spotclash/internal/stations"
)

// Defaults for newly created games and generated spots.
const (
	DefaultMaxPlayers       = 10
	DefaultTimeLimit        = 30 * 60 // seconds
	DefaultSpotCount        = 6
	DefaultSpotRadius       = 20.0 // meters
	DefaultRequiredStayTime = 60   // seconds
	spotRingRadiusMeters    = 400.0
)

var (
	ErrUnknownStation = errors.New("unknown center station")
	ErrGameFull       = errors.New("game is full")
	ErrAlreadyJoined  = errors.New("user already joined this game")
	ErrNotWaiting     = errors.New("game is not waiting to start")
)

// Store defines what the service needs from the repository.
type Store interface {
	CreateGame(ctx context.Context, g *models.Game) error
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListGames(ctx context.Context) ([]*models.Game, error)
	ListGamesByStatus(ctx context.Context, status models.GameStatus) ([]*models.Game, error)
	StartGame(ctx context.Context, id uuid.UUID, startedAt time.Time, remaining int) error
	CreatePlayer(ctx context.Context, p *models.Player) error
	GetPlayerByUserID(ctx context.Context, gameID uuid.UUID, userID string) (*models.Player, error)
	ListPlayersByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error)
	CreateSpot(ctx context.Context, s *models.Spot) error
	ListSpotsByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Spot, error)
}

// Activator is notified when a game goes live so an already-loaded session
// picks up the transition and starts its clock.
type Activator interface {
	Activate(gameID uuid.UUID)
}

// Service implements the game CRUD operations around the live engine:
// creating games with a generated spot ring, listing, joining and starting.
type Service struct {
	store     Store
	stations  stations.Table
	activator Activator
}

func NewService(store Store, table stations.Table, activator Activator) *Service {
	return &Service{
		store:     store,
		stations:  table,
		activator: activator,
	}
}

// CreateGame creates a waiting game centered on a known station, together
// with a ring of capturable spots around the center.
func (s *Service) CreateGame(ctx context.Context, req CreateGameRequest) (*GameDetail, error) {
	if req.Name == "" || req.CenterStation == "" {
		return nil, fmt.Errorf("name and center_station are required")
	}
	station, ok := s.stations[req.CenterStation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, req.CenterStation)
	}

	g := &models.Game{
		ID:            uuid.New(),
		Name:          req.Name,
		CenterStation: req.CenterStation,
		Status:        models.GameStatusWaiting,
		MaxPlayers:    DefaultMaxPlayers,
		TimeLimit:     DefaultTimeLimit,
		RemainingTime: DefaultTimeLimit,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateGame(ctx, g); err != nil {
		return nil, err
	}

	spots := SpotRing(g.ID, station, DefaultSpotCount)
	for _, sp := range spots {
		if err := s.store.CreateSpot(ctx, sp); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("game_id", g.ID.String()).
		Str("center_station", g.CenterStation).
		Int("spots", len(spots)).
		Msg("game created")

	return &GameDetail{Game: g, Spots: spots, Players: []*models.Player{}}, nil
}

// GetGame returns one game with its roster and spots.
func (s *Service) GetGame(ctx context.Context, id uuid.UUID) (*GameDetail, error) {
	g, err := s.store.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	spots, err := s.store.ListSpotsByGame(ctx, id)
	if err != nil {
		return nil, err
	}
	players, err := s.store.ListPlayersByGame(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GameDetail{Game: g, Spots: spots, Players: players}, nil
}

// ListGames returns all games.
func (s *Service) ListGames(ctx context.Context) ([]*models.Game, error) {
	return s.store.ListGames(ctx)
}

// AvailableGames returns games still waiting for players.
func (s *Service) AvailableGames(ctx context.Context) ([]*models.Game, error) {
	return s.store.ListGamesByStatus(ctx, models.GameStatusWaiting)
}

// JoinGame adds a user to a game's roster. Without an explicit team the
// player lands on the smaller one, tie going to team_a.
func (s *Service) JoinGame(ctx context.Context, gameID uuid.UUID, req JoinGameRequest) (*models.Player, error) {
	if req.UserID == "" || req.Username == "" {
		return nil, fmt.Errorf("user_id and username are required")
	}

	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetPlayerByUserID(ctx, gameID, req.UserID); err == nil {
		return nil, ErrAlreadyJoined
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	roster, err := s.store.ListPlayersByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(roster) >= g.MaxPlayers {
		return nil, ErrGameFull
	}

	team := req.Team
	if team == "" {
		team = assignTeam(roster)
	}
	if team != models.TeamA && team != models.TeamB {
		return nil, fmt.Errorf("invalid team: %s", team)
	}

	now := time.Now().UTC()
	p := &models.Player{
		ID:       uuid.New(),
		GameID:   gameID,
		UserID:   req.UserID,
		Username: req.Username,
		Team:     team,
		JoinedAt: now,
		LastSeen: now,
	}
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		return nil, err
	}

	log.Info().
		Str("game_id", gameID.String()).
		Str("player_id", p.ID.String()).
		Str("team", string(team)).
		Msg("player joined game")

	return p, nil
}

// StartGame transitions a waiting game to active, arms the countdown and
// wakes any live session so the clock starts ticking immediately.
func (s *Service) StartGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != models.GameStatusWaiting {
		return nil, ErrNotWaiting
	}

	startedAt := time.Now().UTC()
	if err := s.store.StartGame(ctx, gameID, startedAt, g.TimeLimit); err != nil {
		return nil, err
	}
	if s.activator != nil {
		s.activator.Activate(gameID)
	}

	g.Status = models.GameStatusActive
	g.StartedAt = &startedAt
	g.RemainingTime = g.TimeLimit

	log.Info().Str("game_id", gameID.String()).Msg("game started")
	return g, nil
}

// assignTeam balances the roster: smaller team wins the new player.
func assignTeam(roster []*models.Player) models.Team {
	var a, b int
	for _, p := range roster {
		switch p.Team {
		case models.TeamA:
			a++
		case models.TeamB:
			b++
		}
	}
	if b < a {
		return models.TeamB
	}
	return models.TeamA
}

// SpotRing lays count spots on a circle around the center station, spaced
// evenly so every spot is reachable on foot from the center.
func SpotRing(gameID uuid.UUID, center stations.Station, count int) []*models.Spot {
	spots := make([]*models.Spot, 0, count)
	for i := 0; i < count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(count)
		dLat := spotRingRadiusMeters * math.Cos(angle) / 111320.0
		dLon := spotRingRadiusMeters * math.Sin(angle) / (111320.0 * math.Cos(center.Latitude*math.Pi/180))
		spots = append(spots, &models.Spot{
			ID:               uuid.New(),
			GameID:           gameID,
			Name:             fmt.Sprintf("%s Spot %d", center.Name, i+1),
			Latitude:         center.Latitude + dLat,
			Longitude:        center.Longitude + dLon,
			Radius:           DefaultSpotRadius,
			RequiredStayTime: DefaultRequiredStayTime,
		})
	}
	return spots
}
