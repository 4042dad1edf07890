package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/harukimoto/spotclash/internal/game/events"
	"github.com/harukimoto/spotclash/internal/models"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newClockFixture(remaining int) (*Clock, *recorder, *clockwork.FakeClock) {
	fake := clockwork.NewFakeClock()
	rec := &recorder{}
	game := &models.Game{
		ID:            uuid.New(),
		Status:        models.GameStatusActive,
		TimeLimit:     remaining,
		RemainingTime: remaining,
	}
	s := New(game, nil, nil, nopStore{}, rec, fake)
	return NewClock(s, fake), rec, fake
}

func TestClockCountsDownToFinish(t *testing.T) {
	c, rec, fake := newClockFixture(3)

	go c.Run()
	fake.BlockUntil(1)

	for i := 1; i <= 3; i++ {
		fake.Advance(time.Second)
		want := i
		waitFor(t, "game_timer broadcast", func() bool {
			return rec.count(events.TypeGameTimer) >= want
		})
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("clock runner did not exit after the game finished")
	}

	if got := rec.count(events.TypeGameFinished); got != 1 {
		t.Fatalf("game_finished broadcasts = %d, want 1", got)
	}
	if got := rec.count(events.TypeGameTimer); got != 3 {
		t.Fatalf("game_timer broadcasts = %d, want 3", got)
	}

	// the runner released its ticker: advancing further changes nothing
	before := len(rec.all())
	fake.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if len(rec.all()) != before {
		t.Fatal("broadcasts after the clock runner exited")
	}
}

func TestClockStop(t *testing.T) {
	c, rec, fake := newClockFixture(1000)

	go c.Run()
	fake.BlockUntil(1)

	fake.Advance(time.Second)
	waitFor(t, "first tick", func() bool {
		return rec.count(events.TypeGameTimer) == 1
	})

	c.Stop()
	c.Stop() // idempotent

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("clock runner did not exit after Stop")
	}

	if rec.count(events.TypeGameFinished) != 0 {
		t.Fatal("stopping the clock finished the game")
	}
}

func TestClockStopBeforeRun(t *testing.T) {
	c, rec, _ := newClockFixture(10)

	c.Stop()
	c.Run()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
	if len(rec.all()) != 0 {
		t.Fatal("broadcasts from a clock stopped before running")
	}
}
