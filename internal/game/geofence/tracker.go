package geofence

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/harukimoto/spotclash/internal/models"
)

const earthRadiusMeters = 6371000.0

// Result is the outcome of one geofence check. Entry is nil when the player is
// outside the spot's radius (or has no known position). Captured is true only
// on the check that flipped the spot's ownership, never again afterwards.
type Result struct {
	Entry    *models.GeofenceEntry
	Captured bool
}

type entryKey struct {
	playerID uuid.UUID
	spotID   uuid.UUID
}

// Tracker holds the live dwell state for every (player, spot) pair of one
// game. It is not safe for concurrent use; the owning session serializes all
// calls under its lock.
type Tracker struct {
	entries map[entryKey]*models.GeofenceEntry
}

func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[entryKey]*models.GeofenceEntry),
	}
}

// Check evaluates one position-in-radius test and advances the dwell state
// machine. Inside the radius it creates or updates the live entry and, when
// allowCapture is set and the spot is unowned, performs the one-shot capture
// transition on the spot. Outside the radius it deletes any live entry:
// re-entering later starts the dwell count from zero.
func (t *Tracker) Check(player *models.Player, spot *models.Spot, now time.Time, allowCapture bool) Result {
	if player == nil || spot == nil || !player.HasPosition() {
		return Result{}
	}

	key := entryKey{playerID: player.ID, spotID: spot.ID}
	dist := haversineMeters(*player.CurrentLatitude, *player.CurrentLongitude, spot.Latitude, spot.Longitude)
	if dist > spot.Radius {
		delete(t.entries, key)
		return Result{}
	}

	entry, ok := t.entries[key]
	if !ok {
		entry = &models.GeofenceEntry{
			ID:        uuid.New(),
			PlayerID:  player.ID,
			SpotID:    spot.ID,
			EnteredAt: now,
		}
		t.entries[key] = entry
	} else {
		entry.StayDuration = int(now.Sub(entry.EnteredAt) / time.Second)
	}

	captured := false
	if allowCapture && !spot.Captured() && entry.StayDuration >= spot.RequiredStayTime {
		entry.IsCaptured = true
		team := player.Team
		at := now
		spot.OwnerTeam = &team
		spot.CapturedAt = &at
		captured = true
	}

	return Result{Entry: entry, Captured: captured}
}

// Entry returns the live entry for a (player, spot) pair, or nil.
func (t *Tracker) Entry(playerID, spotID uuid.UUID) *models.GeofenceEntry {
	return t.entries[entryKey{playerID: playerID, spotID: spotID}]
}

// DropPlayer discards every live entry for a player. Used when a player leaves
// the game entirely; a mere disconnect keeps dwell state since the next check
// will reconcile it against the reported position anyway.
func (t *Tracker) DropPlayer(playerID uuid.UUID) {
	for key := range t.entries {
		if key.playerID == playerID {
			delete(t.entries, key)
		}
	}
}

// haversineMeters returns the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
