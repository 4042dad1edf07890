package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/game/events"
	"github.com/harukimoto/spotclash/internal/game/geofence"
	"github.com/harukimoto/spotclash/internal/models"
)

// ErrUnknownPlayer is returned when a message references a player that does
// not belong to this game. It is reported to the offending client only.
var ErrUnknownPlayer = errors.New("player not found in game")

// Broadcaster fans an event out to every client in the game's room. The hub
// implements it; tests use a recorder. Calls must return within a bounded time
// (they run under the session lock) and must preserve call order per game.
type Broadcaster interface {
	Broadcast(gameID uuid.UUID, event events.Event)
}

// Store is the narrow slice of persistence the session writes through. All
// writes happen outside the session lock and are best-effort: the in-memory
// session stays authoritative for broadcasts even when the store is degraded.
type Store interface {
	UpdatePlayerPosition(ctx context.Context, playerID uuid.UUID, lat, lon float64, lastSeen time.Time) error
	UpdatePlayerPresence(ctx context.Context, playerID uuid.UUID, online bool, lastSeen time.Time) error
	UpdateGameScore(ctx context.Context, gameID uuid.UUID, teamA, teamB int) error
	UpdateGameRemainingTime(ctx context.Context, gameID uuid.UUID, seconds int) error
	FinishGame(ctx context.Context, gameID uuid.UUID, winner models.Winner, finishedAt time.Time) error
	CaptureSpot(ctx context.Context, spotID uuid.UUID, team models.Team, capturedAt time.Time) error
	UpsertGeofenceEntry(ctx context.Context, entry models.GeofenceEntry) error
	DeleteGeofenceEntry(ctx context.Context, playerID, spotID uuid.UUID) error
}

// Session is the sole authoritative owner of one game's mutable state: scores,
// spot ownership, roster presence and the countdown. Every read and mutation
// runs under one mutex, so all observable events of a game are totally
// ordered; different games share nothing and proceed in parallel.
type Session struct {
	mu sync.Mutex

	game    *models.Game
	players map[uuid.UUID]*models.Player
	spots   map[uuid.UUID]*models.Spot
	tracker *geofence.Tracker

	clock       clockwork.Clock
	store       Store
	broadcaster Broadcaster
}

// New builds a session around a loaded game record. The slices are copied into
// maps; the caller must not retain the pointers.
func New(game *models.Game, players []*models.Player, spots []*models.Spot, store Store, broadcaster Broadcaster, clock clockwork.Clock) *Session {
	s := &Session{
		game:        game,
		players:     make(map[uuid.UUID]*models.Player, len(players)),
		spots:       make(map[uuid.UUID]*models.Spot, len(spots)),
		tracker:     geofence.NewTracker(),
		clock:       clock,
		store:       store,
		broadcaster: broadcaster,
	}
	for _, p := range players {
		s.players[p.ID] = p
	}
	for _, sp := range spots {
		s.spots[sp.ID] = sp
	}
	return s
}

// GameID returns the immutable game identifier.
func (s *Session) GameID() uuid.UUID {
	return s.game.ID
}

// Status returns the current lifecycle state.
func (s *Session) Status() models.GameStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Status
}

// Player looks up a roster member by the opaque connection identity.
func (s *Session) PlayerByUserID(userID string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.UserID == userID {
			return p.ID, true
		}
	}
	return uuid.Nil, false
}

// Snapshot returns the full current state for a game_update unicast.
func (s *Session) Snapshot() events.GameSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() events.GameSnapshot {
	snap := events.GameSnapshot{
		ID:            s.game.ID,
		Name:          s.game.Name,
		Status:        string(s.game.Status),
		TeamAScore:    s.game.TeamAScore,
		TeamBScore:    s.game.TeamBScore,
		RemainingTime: s.game.RemainingTime,
		CenterStation: s.game.CenterStation,
		Spots:         make([]events.SpotSnapshot, 0, len(s.spots)),
		Players:       make([]events.PlayerSnapshot, 0, len(s.players)),
	}
	for _, sp := range s.spots {
		ss := events.SpotSnapshot{
			ID:               sp.ID,
			Name:             sp.Name,
			Latitude:         sp.Latitude,
			Longitude:        sp.Longitude,
			Radius:           sp.Radius,
			RequiredStayTime: sp.RequiredStayTime,
			CapturedAt:       sp.CapturedAt,
		}
		if sp.OwnerTeam != nil {
			team := string(*sp.OwnerTeam)
			ss.OwnerTeam = &team
		}
		snap.Spots = append(snap.Spots, ss)
	}
	for _, p := range s.players {
		snap.Players = append(snap.Players, playerSnapshot(p))
	}
	return snap
}

func playerSnapshot(p *models.Player) events.PlayerSnapshot {
	return events.PlayerSnapshot{
		ID:               p.ID,
		Username:         p.Username,
		Team:             string(p.Team),
		CurrentLatitude:  p.CurrentLatitude,
		CurrentLongitude: p.CurrentLongitude,
		IsOnline:         p.IsOnline,
		LastSeen:         p.LastSeen,
	}
}

// Join marks a roster member online and announces it to the room. An unknown
// player id is benign: the connection stays open as a spectator.
func (s *Session) Join(playerID uuid.UUID) {
	s.mu.Lock()
	p, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		log.Debug().Str("game_id", s.game.ID.String()).Str("player_id", playerID.String()).Msg("join from non-roster identity, treating as spectator")
		return
	}
	now := s.clock.Now()
	p.IsOnline = true
	p.LastSeen = now
	snap := playerSnapshot(p)
	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypePlayerJoined, snap))
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		return s.store.UpdatePlayerPresence(ctx, playerID, true, now)
	})
}

// Leave marks a roster member offline and announces it. Disconnecting does not
// touch scores, spot ownership or the game clock.
func (s *Session) Leave(playerID uuid.UUID) {
	s.mu.Lock()
	p, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	p.IsOnline = false
	p.LastSeen = now
	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypePlayerLeft, events.PlayerLeftPayload{PlayerID: playerID}))
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		return s.store.UpdatePlayerPresence(ctx, playerID, false, now)
	})
}

// ApplyPositionUpdate records a player's reported GPS fix and broadcasts it to
// the whole room, sender included.
func (s *Session) ApplyPositionUpdate(playerID uuid.UUID, lat, lon float64) error {
	s.mu.Lock()
	p, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownPlayer
	}
	now := s.clock.Now()
	latCopy, lonCopy := lat, lon
	p.CurrentLatitude = &latCopy
	p.CurrentLongitude = &lonCopy
	p.LastSeen = now
	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypePlayerPositionUpdate, events.PlayerPositionUpdatePayload{
		UserID:    p.UserID,
		Latitude:  lat,
		Longitude: lon,
	}))
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		return s.store.UpdatePlayerPosition(ctx, playerID, lat, lon, now)
	})
	return nil
}

// CheckGeofence runs the dwell state machine for one (player, spot) pair
// against the player's last reported position. A nil result means no live
// entry: unknown player or spot, no position yet, or outside the radius.
// A capture mutates scores and spot ownership atomically with its broadcast.
func (s *Session) CheckGeofence(playerID, spotID uuid.UUID) *events.GeofenceResultPayload {
	s.mu.Lock()
	p, okPlayer := s.players[playerID]
	spot, okSpot := s.spots[spotID]
	if !okPlayer || !okSpot {
		s.mu.Unlock()
		return nil
	}

	now := s.clock.Now()
	allowCapture := s.game.Status == models.GameStatusActive
	res := s.tracker.Check(p, spot, now, allowCapture)
	if res.Entry == nil {
		s.mu.Unlock()
		s.persist(func(ctx context.Context) error {
			return s.store.DeleteGeofenceEntry(ctx, playerID, spotID)
		})
		return nil
	}

	if res.Captured {
		s.applyCaptureLocked(p, spot, now)
	}

	result := &events.GeofenceResultPayload{
		ID:           res.Entry.ID,
		SpotID:       spotID,
		PlayerID:     playerID,
		EnteredAt:    res.Entry.EnteredAt,
		StayDuration: res.Entry.StayDuration,
		IsCaptured:   res.Entry.IsCaptured,
		RequiredTime: spot.RequiredStayTime,
	}
	entryCopy := *res.Entry
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		return s.store.UpsertGeofenceEntry(ctx, entryCopy)
	})
	return result
}

// applyCaptureLocked credits one point to the capturing team, announces the
// capture, and evaluates the all-spots-captured termination condition.
func (s *Session) applyCaptureLocked(p *models.Player, spot *models.Spot, now time.Time) {
	switch p.Team {
	case models.TeamA:
		s.game.TeamAScore++
	case models.TeamB:
		s.game.TeamBScore++
	}

	log.Info().
		Str("game_id", s.game.ID.String()).
		Str("spot_id", spot.ID.String()).
		Str("player_id", p.ID.String()).
		Str("team", string(p.Team)).
		Msg("spot captured")

	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypeSpotCaptured, events.SpotCapturedPayload{
		SpotID:     spot.ID,
		Team:       string(p.Team),
		Player:     p.Username,
		CapturedAt: now,
		TeamAScore: s.game.TeamAScore,
		TeamBScore: s.game.TeamBScore,
	}))

	spotID, team := spot.ID, p.Team
	teamA, teamB := s.game.TeamAScore, s.game.TeamBScore
	gameID := s.game.ID
	s.persist(func(ctx context.Context) error {
		if err := s.store.CaptureSpot(ctx, spotID, team, now); err != nil {
			return err
		}
		return s.store.UpdateGameScore(ctx, gameID, teamA, teamB)
	})

	if s.allSpotsCapturedLocked() {
		s.finishLocked(now)
	}
}

func (s *Session) allSpotsCapturedLocked() bool {
	for _, sp := range s.spots {
		if !sp.Captured() {
			return false
		}
	}
	return len(s.spots) > 0
}

// Tick advances the countdown by one second. It reports true once the game is
// finished so the clock runner can stop; ticks on a non-active game are no-ops.
func (s *Session) Tick() (finished bool) {
	s.mu.Lock()
	if s.game.Status == models.GameStatusFinished {
		s.mu.Unlock()
		return true
	}
	if s.game.Status != models.GameStatusActive {
		s.mu.Unlock()
		return false
	}

	if s.game.RemainingTime > 0 {
		s.game.RemainingTime--
	}
	remaining := s.game.RemainingTime
	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypeGameTimer, events.GameTimerPayload{RemainingTime: remaining}))

	if remaining <= 0 {
		s.finishLocked(s.clock.Now())
		s.mu.Unlock()
		return true
	}
	gameID := s.game.ID
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		return s.store.UpdateGameRemainingTime(ctx, gameID, remaining)
	})
	return false
}

// Activate transitions a waiting game to active and arms the countdown. The
// caller is responsible for starting the clock runner afterwards.
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game.Status != models.GameStatusWaiting {
		return false
	}
	now := s.clock.Now()
	s.game.Status = models.GameStatusActive
	s.game.StartedAt = &now
	if s.game.RemainingTime <= 0 {
		s.game.RemainingTime = s.game.TimeLimit
	}
	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypeGameUpdate, s.snapshotLocked()))
	return true
}

// finishLocked performs the terminal transition exactly once: winner decided
// by strictly higher score, equal scores are a draw. Subsequent ticks and
// captures become no-ops because status is checked under the same lock.
func (s *Session) finishLocked(now time.Time) {
	if s.game.Status == models.GameStatusFinished {
		return
	}

	var winner models.Winner
	switch {
	case s.game.TeamAScore > s.game.TeamBScore:
		winner = models.WinnerTeamA
	case s.game.TeamBScore > s.game.TeamAScore:
		winner = models.WinnerTeamB
	default:
		winner = models.WinnerDraw
	}

	s.game.Status = models.GameStatusFinished
	s.game.Winner = &winner
	s.game.FinishedAt = &now

	log.Info().
		Str("game_id", s.game.ID.String()).
		Str("winner", string(winner)).
		Int("team_a_score", s.game.TeamAScore).
		Int("team_b_score", s.game.TeamBScore).
		Msg("game finished")

	s.broadcaster.Broadcast(s.game.ID, events.New(events.TypeGameFinished, events.GameFinishedPayload{
		Winner:     string(winner),
		FinishedAt: now,
	}))

	gameID := s.game.ID
	s.persist(func(ctx context.Context) error {
		return s.store.FinishGame(ctx, gameID, winner, now)
	})
}

// persist runs a store write off the session lock. Failures are logged and
// never propagate to the room: the in-memory state is the source of truth and
// the backing store is allowed to lag.
func (s *Session) persist(write func(ctx context.Context) error) {
	gameID := s.game.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := write(ctx); err != nil {
			log.Warn().Err(err).Str("game_id", gameID.String()).Msg("store write failed, in-memory state remains authoritative")
		}
	}()
}
