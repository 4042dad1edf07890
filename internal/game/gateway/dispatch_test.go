package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/harukimoto/spotclash/internal/game/events"
	"github.com/harukimoto/spotclash/internal/game/session"
	"github.com/harukimoto/spotclash/internal/models"
)

const (
	testLat = 35.6580
	testLon = 139.7016
)

// nopStore satisfies session.Store for tests that only care about broadcasts.
type nopStore struct{}

func (nopStore) UpdatePlayerPosition(context.Context, uuid.UUID, float64, float64, time.Time) error {
	return nil
}
func (nopStore) UpdatePlayerPresence(context.Context, uuid.UUID, bool, time.Time) error { return nil }
func (nopStore) UpdateGameScore(context.Context, uuid.UUID, int, int) error             { return nil }
func (nopStore) UpdateGameRemainingTime(context.Context, uuid.UUID, int) error          { return nil }
func (nopStore) FinishGame(context.Context, uuid.UUID, models.Winner, time.Time) error  { return nil }
func (nopStore) CaptureSpot(context.Context, uuid.UUID, models.Team, time.Time) error   { return nil }
func (nopStore) UpsertGeofenceEntry(context.Context, models.GeofenceEntry) error        { return nil }
func (nopStore) DeleteGeofenceEntry(context.Context, uuid.UUID, uuid.UUID) error        { return nil }

type nopLoader struct{}

func (nopLoader) GetGame(context.Context, uuid.UUID) (*models.Game, error) { return nil, nil }
func (nopLoader) ListPlayersByGame(context.Context, uuid.UUID) ([]*models.Player, error) {
	return nil, nil
}
func (nopLoader) ListSpotsByGame(context.Context, uuid.UUID) ([]*models.Spot, error) {
	return nil, nil
}

type fixture struct {
	hub     *Hub
	session *session.Session
	player  *models.Player
	spot    *models.Spot
	clock   *clockwork.FakeClock
}

// newFixture builds a hub with its broadcast loop running and one active game
// session wired to it as broadcaster.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := session.NewRegistry(nopLoader{}, nopStore{}, clock)
	hub := NewHub(DefaultConnectionConfig(), registry, nil)
	registry.SetBroadcaster(hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	game := &models.Game{
		ID:            uuid.New(),
		Name:          "Test Game",
		Status:        models.GameStatusActive,
		TimeLimit:     1800,
		RemainingTime: 1800,
	}
	player := &models.Player{
		ID:       uuid.New(),
		GameID:   game.ID,
		UserID:   "alice",
		Username: "alice",
		Team:     models.TeamA,
	}
	spot := &models.Spot{
		ID:               uuid.New(),
		GameID:           game.ID,
		Name:             "Spot 1",
		Latitude:         testLat,
		Longitude:        testLon,
		Radius:           20,
		RequiredStayTime: 60,
	}
	s := session.New(game, []*models.Player{player}, []*models.Spot{spot}, nopStore{}, hub, clock)
	return &fixture{hub: hub, session: s, player: player, spot: spot, clock: clock}
}

func (f *fixture) newConn(userID string, playerID uuid.UUID) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		UserID:   userID,
		PlayerID: playerID,
		GameID:   f.session.GameID(),
		Send:     make(chan []byte, 16),
		hub:      f.hub,
		session:  f.session,
	}
}

func recvEvent(t *testing.T, conn *Connection) events.Event {
	t.Helper()
	select {
	case data := <-conn.Send:
		var e events.Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("bad envelope %q: %v", data, err)
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return events.Event{}
	}
}

func assertSilent(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func positionMsg(lat, lon float64) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":      "player_position",
		"latitude":  lat,
		"longitude": lon,
	})
	return b
}

func geofenceMsg(spotID uuid.UUID) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":    "geofence_check",
		"spot_id": spotID.String(),
	})
	return b
}

func TestInvalidJSON(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	f.hub.registerConnection(conn)

	conn.handleClientMessage([]byte("{not json"))

	e := recvEvent(t, conn)
	if e.Type != events.TypeError || e.Message != "Invalid JSON" {
		t.Fatalf("got %+v, want Invalid JSON error", e)
	}
	// nothing was broadcast to the room either
	assertSilent(t, conn)
}

func TestUnknownTypeIgnored(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	f.hub.registerConnection(conn)

	conn.handleClientMessage([]byte(`{"type":"teleport"}`))

	assertSilent(t, conn)
}

func TestPlayerPositionMissingFields(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	f.hub.registerConnection(conn)

	conn.handleClientMessage([]byte(`{"type":"player_position","latitude":35.65}`))

	e := recvEvent(t, conn)
	if e.Type != events.TypeError {
		t.Fatalf("got %+v, want error", e)
	}
}

func TestPlayerPositionBroadcastIncludesSender(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	other := f.newConn("spectator", uuid.Nil)
	f.hub.registerConnection(conn)
	f.hub.registerConnection(other)

	conn.handleClientMessage(positionMsg(testLat, testLon))

	for _, c := range []*Connection{conn, other} {
		e := recvEvent(t, c)
		if e.Type != events.TypePlayerPositionUpdate {
			t.Fatalf("got %s, want player_position_update", e.Type)
		}
		var p events.PlayerPositionUpdatePayload
		if err := json.Unmarshal(e.Data, &p); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if p.UserID != "alice" || p.Latitude != testLat || p.Longitude != testLon {
			t.Fatalf("payload = %+v", p)
		}
	}
}

func TestSpectatorPositionRejected(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("watcher", uuid.Nil)
	f.hub.registerConnection(conn)

	conn.handleClientMessage(positionMsg(testLat, testLon))

	e := recvEvent(t, conn)
	if e.Type != events.TypeError {
		t.Fatalf("got %+v, want error for non-roster position update", e)
	}
}

func TestGeofenceCheckMissingSpot(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	f.hub.registerConnection(conn)

	conn.handleClientMessage([]byte(`{"type":"geofence_check"}`))

	e := recvEvent(t, conn)
	if e.Type != events.TypeError {
		t.Fatalf("got %+v, want error", e)
	}
}

func TestGeofenceCheckNullResult(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	other := f.newConn("bob", uuid.Nil)
	f.hub.registerConnection(conn)
	f.hub.registerConnection(other)

	// no position reported yet: result is an explicit null
	conn.handleClientMessage(geofenceMsg(f.spot.ID))

	e := recvEvent(t, conn)
	if e.Type != events.TypeGeofenceResult {
		t.Fatalf("got %s, want geofence_result", e.Type)
	}
	if string(e.Data) != "null" {
		t.Fatalf("data = %s, want null", e.Data)
	}
	// the result is unicast; the other connection hears nothing
	assertSilent(t, other)
}

func TestGeofenceCheckResultUnicast(t *testing.T) {
	f := newFixture(t)
	conn := f.newConn("alice", f.player.ID)
	other := f.newConn("bob", uuid.Nil)
	f.hub.registerConnection(conn)
	f.hub.registerConnection(other)

	conn.handleClientMessage(positionMsg(testLat, testLon))
	recvEvent(t, conn)  // position broadcast
	recvEvent(t, other) // position broadcast

	conn.handleClientMessage(geofenceMsg(f.spot.ID))

	e := recvEvent(t, conn)
	if e.Type != events.TypeGeofenceResult {
		t.Fatalf("got %s, want geofence_result", e.Type)
	}
	var r events.GeofenceResultPayload
	if err := json.Unmarshal(e.Data, &r); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if r.SpotID != f.spot.ID || r.StayDuration != 0 || r.IsCaptured {
		t.Fatalf("payload = %+v", r)
	}
	if r.RequiredTime != 60 {
		t.Fatalf("required time = %d, want 60", r.RequiredTime)
	}
	assertSilent(t, other)
}
