package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harukimoto/spotclash/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository implements game data access on Postgres. It backs both the REST
// service (synchronous reads/writes) and the live session's best-effort store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new game repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const gameColumns = `id, name, center_station, status, team_a_score, team_b_score, winner,
	max_players, time_limit, remaining_time, created_at, started_at, finished_at`

func scanGame(row pgx.Row) (*models.Game, error) {
	var g models.Game
	var winner *string
	err := row.Scan(&g.ID, &g.Name, &g.CenterStation, &g.Status, &g.TeamAScore, &g.TeamBScore,
		&winner, &g.MaxPlayers, &g.TimeLimit, &g.RemainingTime, &g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		w := models.Winner(*winner)
		g.Winner = &w
	}
	return &g, nil
}

// CreateGame inserts a game record.
func (r *Repository) CreateGame(ctx context.Context, g *models.Game) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO games (id, name, center_station, status, team_a_score, team_b_score,
			max_players, time_limit, remaining_time, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		g.ID, g.Name, g.CenterStation, g.Status, g.TeamAScore, g.TeamBScore,
		g.MaxPlayers, g.TimeLimit, g.RemainingTime, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// GetGame retrieves a game by ID.
func (r *Repository) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	g, err := scanGame(r.pool.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// ListGames retrieves all games, newest first.
func (r *Repository) ListGames(ctx context.Context) ([]*models.Game, error) {
	return r.listGames(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at DESC`)
}

// ListGamesByStatus retrieves games in one lifecycle state, newest first.
func (r *Repository) ListGamesByStatus(ctx context.Context, status models.GameStatus) ([]*models.Game, error) {
	return r.listGames(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (r *Repository) listGames(ctx context.Context, query string, args ...any) ([]*models.Game, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// StartGame transitions waiting -> active. Returns ErrNotFound when the game
// does not exist or is not in the waiting state.
func (r *Repository) StartGame(ctx context.Context, id uuid.UUID, startedAt time.Time, remaining int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE games SET status = $2, started_at = $3, remaining_time = $4
		WHERE id = $1 AND status = $5`,
		id, models.GameStatusActive, startedAt, remaining, models.GameStatusWaiting,
	)
	if err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinishGame records the terminal transition.
func (r *Repository) FinishGame(ctx context.Context, id uuid.UUID, winner models.Winner, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE games SET status = $2, winner = $3, finished_at = $4, remaining_time = 0
		WHERE id = $1`,
		id, models.GameStatusFinished, winner, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish game: %w", err)
	}
	return nil
}

// UpdateGameScore persists the current scores.
func (r *Repository) UpdateGameScore(ctx context.Context, id uuid.UUID, teamA, teamB int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE games SET team_a_score = $2, team_b_score = $3 WHERE id = $1`, id, teamA, teamB)
	if err != nil {
		return fmt.Errorf("failed to update game score: %w", err)
	}
	return nil
}

// UpdateGameRemainingTime persists the countdown.
func (r *Repository) UpdateGameRemainingTime(ctx context.Context, id uuid.UUID, seconds int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE games SET remaining_time = $2 WHERE id = $1`, id, seconds)
	if err != nil {
		return fmt.Errorf("failed to update remaining time: %w", err)
	}
	return nil
}

// CreatePlayer inserts a roster record.
func (r *Repository) CreatePlayer(ctx context.Context, p *models.Player) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO players (id, game_id, user_id, username, team, is_online, joined_at, last_seen)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.GameID, p.UserID, p.Username, p.Team, p.IsOnline, p.JoinedAt, p.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

// GetPlayerByUserID resolves a connection identity to its roster record.
func (r *Repository) GetPlayerByUserID(ctx context.Context, gameID uuid.UUID, userID string) (*models.Player, error) {
	p, err := scanPlayer(r.pool.QueryRow(ctx,
		playerSelect+` WHERE game_id = $1 AND user_id = $2`, gameID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player by user id: %w", err)
	}
	return p, nil
}

const playerSelect = `SELECT id, game_id, user_id, username, team, current_latitude,
	current_longitude, is_online, joined_at, last_seen FROM players`

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.GameID, &p.UserID, &p.Username, &p.Team,
		&p.CurrentLatitude, &p.CurrentLongitude, &p.IsOnline, &p.JoinedAt, &p.LastSeen)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlayersByGame retrieves the full roster of a game.
func (r *Repository) ListPlayersByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	rows, err := r.pool.Query(ctx, playerSelect+` WHERE game_id = $1 ORDER BY joined_at`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// UpdatePlayerPosition persists the last reported GPS fix.
func (r *Repository) UpdatePlayerPosition(ctx context.Context, playerID uuid.UUID, lat, lon float64, lastSeen time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE players SET current_latitude = $2, current_longitude = $3, last_seen = $4
		WHERE id = $1`,
		playerID, lat, lon, lastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to update player position: %w", err)
	}
	return nil
}

// UpdatePlayerPresence persists the online flag and last_seen.
func (r *Repository) UpdatePlayerPresence(ctx context.Context, playerID uuid.UUID, online bool, lastSeen time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE players SET is_online = $2, last_seen = $3 WHERE id = $1`, playerID, online, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to update player presence: %w", err)
	}
	return nil
}

// CreateSpot inserts a spot record.
func (r *Repository) CreateSpot(ctx context.Context, s *models.Spot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO spots (id, game_id, name, latitude, longitude, radius, required_stay_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.GameID, s.Name, s.Latitude, s.Longitude, s.Radius, s.RequiredStayTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create spot: %w", err)
	}
	return nil
}

// ListSpotsByGame retrieves all spots of a game.
func (r *Repository) ListSpotsByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Spot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, game_id, name, latitude, longitude, radius, required_stay_time, owner_team, captured_at
		FROM spots WHERE game_id = $1 ORDER BY name`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list spots: %w", err)
	}
	defer rows.Close()

	var spots []*models.Spot
	for rows.Next() {
		var s models.Spot
		var owner *string
		if err := rows.Scan(&s.ID, &s.GameID, &s.Name, &s.Latitude, &s.Longitude,
			&s.Radius, &s.RequiredStayTime, &owner, &s.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}
		if owner != nil {
			t := models.Team(*owner)
			s.OwnerTeam = &t
		}
		spots = append(spots, &s)
	}
	return spots, rows.Err()
}

// CaptureSpot records a permanent capture. The owner_team guard makes the
// write idempotent even if a retry races a concurrent persist.
func (r *Repository) CaptureSpot(ctx context.Context, spotID uuid.UUID, team models.Team, capturedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE spots SET owner_team = $2, captured_at = $3
		WHERE id = $1 AND owner_team IS NULL`,
		spotID, team, capturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to capture spot: %w", err)
	}
	return nil
}

// UpsertGeofenceEntry persists the live dwell state for one (player, spot) pair.
func (r *Repository) UpsertGeofenceEntry(ctx context.Context, e models.GeofenceEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO geofence_entries (id, player_id, spot_id, entered_at, stay_duration, is_captured)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (player_id, spot_id) DO UPDATE
		SET stay_duration = EXCLUDED.stay_duration, is_captured = EXCLUDED.is_captured`,
		e.ID, e.PlayerID, e.SpotID, e.EnteredAt, e.StayDuration, e.IsCaptured,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert geofence entry: %w", err)
	}
	return nil
}

// DeleteGeofenceEntry discards the dwell state after an exit.
func (r *Repository) DeleteGeofenceEntry(ctx context.Context, playerID, spotID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM geofence_entries WHERE player_id = $1 AND spot_id = $2`, playerID, spotID)
	if err != nil {
		return fmt.Errorf("failed to delete geofence entry: %w", err)
	}
	return nil
}
