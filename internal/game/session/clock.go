package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock drives one active game's countdown at 1 Hz. The runner stops itself
// permanently when the session reports the finished transition; Stop is safe
// to call any number of times, from any goroutine.
type Clock struct {
	session *Session
	clock   clockwork.Clock

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewClock builds a clock for a session. It does not start ticking; the
// registry calls Run on its own goroutine once the game is active.
func NewClock(s *Session, clk clockwork.Clock) *Clock {
	return &Clock{
		session: s,
		clock:   clk,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run ticks the session once per second until the game finishes or Stop is
// called. The ticker is released on return; there is no way for a tick to
// fire after the finished transition has been observed.
func (c *Clock) Run() {
	defer close(c.doneCh)

	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	log.Debug().Str("game_id", c.session.GameID().String()).Msg("game clock started")

	for {
		select {
		case <-c.stopCh:
			log.Debug().Str("game_id", c.session.GameID().String()).Msg("game clock stopped")
			return
		case <-ticker.Chan():
			if finished := c.session.Tick(); finished {
				log.Debug().Str("game_id", c.session.GameID().String()).Msg("game clock released after finish")
				return
			}
		}
	}
}

// Stop cancels the runner. Idempotent: finishing and teardown may both call it.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Done is closed once the runner has exited.
func (c *Clock) Done() <-chan struct{} {
	return c.doneCh
}
