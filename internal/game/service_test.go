package game

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/harukimoto/spotclash/internal/models"
	"github.com/harukimoto/spotclash/internal/stations"
)

// fakeStore keeps everything in maps; just enough of the repository surface
// for the service to run against.
type fakeStore struct {
	games   map[uuid.UUID]*models.Game
	players map[uuid.UUID][]*models.Player
	spots   map[uuid.UUID][]*models.Spot
	started []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:   make(map[uuid.UUID]*models.Game),
		players: make(map[uuid.UUID][]*models.Player),
		spots:   make(map[uuid.UUID][]*models.Spot),
	}
}

func (f *fakeStore) CreateGame(_ context.Context, g *models.Game) error {
	f.games[g.ID] = g
	return nil
}

func (f *fakeStore) GetGame(_ context.Context, id uuid.UUID) (*models.Game, error) {
	g, ok := f.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) ListGames(_ context.Context) ([]*models.Game, error) {
	out := make([]*models.Game, 0, len(f.games))
	for _, g := range f.games {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) ListGamesByStatus(_ context.Context, status models.GameStatus) ([]*models.Game, error) {
	var out []*models.Game
	for _, g := range f.games {
		if g.Status == status {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeStore) StartGame(_ context.Context, id uuid.UUID, startedAt time.Time, remaining int) error {
	g, ok := f.games[id]
	if !ok || g.Status != models.GameStatusWaiting {
		return ErrNotFound
	}
	g.Status = models.GameStatusActive
	g.StartedAt = &startedAt
	g.RemainingTime = remaining
	f.started = append(f.started, id)
	return nil
}

func (f *fakeStore) CreatePlayer(_ context.Context, p *models.Player) error {
	f.players[p.GameID] = append(f.players[p.GameID], p)
	return nil
}

func (f *fakeStore) GetPlayerByUserID(_ context.Context, gameID uuid.UUID, userID string) (*models.Player, error) {
	for _, p := range f.players[gameID] {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListPlayersByGame(_ context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	return f.players[gameID], nil
}

func (f *fakeStore) CreateSpot(_ context.Context, s *models.Spot) error {
	f.spots[s.GameID] = append(f.spots[s.GameID], s)
	return nil
}

func (f *fakeStore) ListSpotsByGame(_ context.Context, gameID uuid.UUID) ([]*models.Spot, error) {
	return f.spots[gameID], nil
}

type fakeActivator struct {
	activated []uuid.UUID
}

func (f *fakeActivator) Activate(gameID uuid.UUID) {
	f.activated = append(f.activated, gameID)
}

var testStations = stations.Table{
	"Shibuya":  {Name: "Shibuya", Latitude: 35.6580, Longitude: 139.7016},
	"Shinjuku": {Name: "Shinjuku", Latitude: 35.6896, Longitude: 139.7006},
}

func newTestService() (*Service, *fakeStore, *fakeActivator) {
	store := newFakeStore()
	act := &fakeActivator{}
	return NewService(store, testStations, act), store, act
}

func TestCreateGame(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	detail, err := svc.CreateGame(ctx, CreateGameRequest{Name: "Friday Match", CenterStation: "Shibuya"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if detail.Game.Status != models.GameStatusWaiting {
		t.Fatalf("status = %s, want waiting", detail.Game.Status)
	}
	if detail.Game.RemainingTime != DefaultTimeLimit {
		t.Fatalf("remaining = %d, want %d", detail.Game.RemainingTime, DefaultTimeLimit)
	}
	if len(detail.Spots) != DefaultSpotCount {
		t.Fatalf("spots = %d, want %d", len(detail.Spots), DefaultSpotCount)
	}
	if len(store.spots[detail.Game.ID]) != DefaultSpotCount {
		t.Fatal("spots not persisted")
	}
}

func TestCreateGameValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateGame(ctx, CreateGameRequest{Name: "", CenterStation: "Shibuya"}); err == nil {
		t.Fatal("empty name accepted")
	}
	_, err := svc.CreateGame(ctx, CreateGameRequest{Name: "x", CenterStation: "Atlantis"})
	if !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("err = %v, want ErrUnknownStation", err)
	}
}

func TestSpotRingGeometry(t *testing.T) {
	center := testStations["Shibuya"]
	spots := SpotRing(uuid.New(), center, DefaultSpotCount)

	if len(spots) != DefaultSpotCount {
		t.Fatalf("spots = %d", len(spots))
	}
	for i, sp := range spots {
		if sp.Radius != DefaultSpotRadius || sp.RequiredStayTime != DefaultRequiredStayTime {
			t.Fatalf("spot %d defaults = %v/%v", i, sp.Radius, sp.RequiredStayTime)
		}
		// every spot sits on the ring, roughly 400m from the center
		dLat := (sp.Latitude - center.Latitude) * 111320.0
		dLon := (sp.Longitude - center.Longitude) * 111320.0 * math.Cos(center.Latitude*math.Pi/180)
		dist := math.Hypot(dLat, dLon)
		if dist < 390 || dist > 410 {
			t.Fatalf("spot %d distance = %.1fm, want ~400m", i, dist)
		}
	}

	// no two spots share coordinates
	seen := make(map[[2]float64]bool)
	for _, sp := range spots {
		key := [2]float64{sp.Latitude, sp.Longitude}
		if seen[key] {
			t.Fatal("duplicate spot position on the ring")
		}
		seen[key] = true
	}
}

func TestJoinGameTeamBalance(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	detail, err := svc.CreateGame(ctx, CreateGameRequest{Name: "g", CenterStation: "Shibuya"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	gameID := detail.Game.ID

	// empty roster ties: first player goes to team_a
	p1, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u1", Username: "u1"})
	if err != nil {
		t.Fatalf("join u1: %v", err)
	}
	if p1.Team != models.TeamA {
		t.Fatalf("first player team = %s, want team_a", p1.Team)
	}

	p2, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u2", Username: "u2"})
	if err != nil {
		t.Fatalf("join u2: %v", err)
	}
	if p2.Team != models.TeamB {
		t.Fatalf("second player team = %s, want team_b", p2.Team)
	}

	// explicit team is honored even when it unbalances
	p3, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u3", Username: "u3", Team: models.TeamB})
	if err != nil {
		t.Fatalf("join u3: %v", err)
	}
	if p3.Team != models.TeamB {
		t.Fatalf("explicit team = %s", p3.Team)
	}

	// balance: team_a is now smaller
	p4, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u4", Username: "u4"})
	if err != nil {
		t.Fatalf("join u4: %v", err)
	}
	if p4.Team != models.TeamA {
		t.Fatalf("fourth player team = %s, want team_a", p4.Team)
	}
}

func TestJoinGameConflicts(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	detail, err := svc.CreateGame(ctx, CreateGameRequest{Name: "g", CenterStation: "Shibuya"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	gameID := detail.Game.ID

	if _, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u1", Username: "u1"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u1", Username: "again"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("err = %v, want ErrAlreadyJoined", err)
	}
	if _, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u2", Username: "u2", Team: "team_c"}); err == nil {
		t.Fatal("invalid team accepted")
	}
	if _, err := svc.JoinGame(ctx, uuid.New(), JoinGameRequest{UserID: "u2", Username: "u2"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// fill the roster to the cap
	store.games[gameID].MaxPlayers = 2
	if _, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u2", Username: "u2"}); err != nil {
		t.Fatalf("join u2: %v", err)
	}
	if _, err := svc.JoinGame(ctx, gameID, JoinGameRequest{UserID: "u3", Username: "u3"}); !errors.Is(err, ErrGameFull) {
		t.Fatalf("err = %v, want ErrGameFull", err)
	}
}

func TestStartGame(t *testing.T) {
	svc, store, act := newTestService()
	ctx := context.Background()

	detail, err := svc.CreateGame(ctx, CreateGameRequest{Name: "g", CenterStation: "Shinjuku"})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	gameID := detail.Game.ID

	g, err := svc.StartGame(ctx, gameID)
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if g.Status != models.GameStatusActive || g.StartedAt == nil {
		t.Fatalf("game after start = %+v", g)
	}
	if len(act.activated) != 1 || act.activated[0] != gameID {
		t.Fatalf("activator calls = %v", act.activated)
	}
	if len(store.started) != 1 {
		t.Fatal("start not persisted")
	}

	// starting twice is a conflict, not a repeat
	if _, err := svc.StartGame(ctx, gameID); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("second start err = %v, want ErrNotWaiting", err)
	}
	if len(act.activated) != 1 {
		t.Fatal("activator called again on a non-waiting game")
	}
}

func TestAvailableGames(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	d1, _ := svc.CreateGame(ctx, CreateGameRequest{Name: "waiting", CenterStation: "Shibuya"})
	d2, _ := svc.CreateGame(ctx, CreateGameRequest{Name: "running", CenterStation: "Shibuya"})
	store.games[d2.Game.ID].Status = models.GameStatusActive

	avail, err := svc.AvailableGames(ctx)
	if err != nil {
		t.Fatalf("AvailableGames: %v", err)
	}
	if len(avail) != 1 || avail[0].ID != d1.Game.ID {
		t.Fatalf("available = %v", avail)
	}
}
