package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/harukimoto/spotclash/internal/models"
)

// Loader reads the records a session is built from.
type Loader interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	ListPlayersByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error)
	ListSpotsByGame(ctx context.Context, gameID uuid.UUID) ([]*models.Spot, error)
}

// Registry owns the live sessions and their clocks, one of each per game at
// most. Sessions are loaded lazily on first acquire and reference-counted:
// they are torn down only when the last reference is released, so a client
// resolving a session can never race the previous room emptying out.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	clocks   map[uuid.UUID]*Clock
	refs     map[uuid.UUID]int

	loader      Loader
	store       Store
	broadcaster Broadcaster
	clock       clockwork.Clock
}

func NewRegistry(loader Loader, store Store, clock clockwork.Clock) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		clocks:   make(map[uuid.UUID]*Clock),
		refs:     make(map[uuid.UUID]int),
		loader:   loader,
		store:    store,
		clock:    clock,
	}
}

// SetBroadcaster wires the hub in after construction; the hub needs the
// registry to resolve sessions and the registry needs the hub to broadcast.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

// Acquire returns the live session for a game and takes a reference on it,
// loading from the store on first use. Loading an active game also starts its
// clock. Every successful Acquire must be paired with exactly one Release.
func (r *Registry) Acquire(ctx context.Context, gameID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		var err error
		s, err = r.loadLocked(ctx, gameID)
		if err != nil {
			return nil, err
		}
	}
	r.refs[gameID]++
	return s, nil
}

func (r *Registry) loadLocked(ctx context.Context, gameID uuid.UUID) (*Session, error) {
	game, err := r.loader.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	players, err := r.loader.ListPlayersByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load players for game %s: %w", gameID, err)
	}
	spots, err := r.loader.ListSpotsByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load spots for game %s: %w", gameID, err)
	}

	s := New(game, players, spots, r.store, r.broadcaster, r.clock)
	r.sessions[gameID] = s

	log.Info().
		Str("game_id", gameID.String()).
		Str("status", string(game.Status)).
		Int("players", len(players)).
		Int("spots", len(spots)).
		Msg("game session loaded")

	if game.Status == models.GameStatusActive {
		r.startClockLocked(s)
	}
	return s, nil
}

// Activate flips a loaded session to active and starts its clock. A game with
// no live session needs nothing here: the status change is already persisted
// and the session will come up active on first connect.
func (r *Registry) Activate(gameID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		return
	}
	if s.Activate() {
		r.startClockLocked(s)
	}
}

// Release drops one reference. When the last one goes, the clock is stopped
// and the session evicted; mutations were persisted as they happened, so the
// next Acquire rebuilds an equivalent session from the store. Releasing a game
// with no outstanding references is a no-op.
func (r *Registry) Release(gameID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs[gameID] == 0 {
		return
	}
	r.refs[gameID]--
	if r.refs[gameID] > 0 {
		return
	}
	delete(r.refs, gameID)

	if c, ok := r.clocks[gameID]; ok {
		c.Stop()
		delete(r.clocks, gameID)
	}
	if _, ok := r.sessions[gameID]; ok {
		delete(r.sessions, gameID)
		log.Info().Str("game_id", gameID.String()).Msg("game session evicted, last reference released")
	}
}

// Shutdown stops every clock. Used on process teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clocks {
		c.Stop()
		delete(r.clocks, id)
	}
}

func (r *Registry) startClockLocked(s *Session) {
	gameID := s.GameID()
	if _, ok := r.clocks[gameID]; ok {
		return
	}
	c := NewClock(s, r.clock)
	r.clocks[gameID] = c
	go func() {
		c.Run()
		r.mu.Lock()
		if r.clocks[gameID] == c {
			delete(r.clocks, gameID)
		}
		r.mu.Unlock()
	}()
}
