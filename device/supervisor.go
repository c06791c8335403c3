package device

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/lvmi/presbridge/internal/pool"
	"github.com/lvmi/presbridge/internal/task"
	"github.com/lvmi/presbridge/logger"
)

// backoffFactor is the multiplier applied to the reconnect delay after
// each failed attempt.
const backoffFactor = 2

// Supervisor watches one Conn and reopens its serial link after a fault.
//
// Recovery never gives up: a detached cable must not permanently disable
// the device once it is reattached. The delay between attempts grows
// exponentially from the configured initial value up to the cap, with
// jitter so that multiple devices sharing a USB hub don't reconnect in
// lockstep.
type Supervisor struct {
	conn   *Conn
	logger logger.Logger
	delay  time.Duration
}

// NewSupervisor creates a supervisor for the given connection.
func NewSupervisor(conn *Conn) *Supervisor {
	return &Supervisor{
		conn:   conn,
		logger: conn.logger,
		delay:  conn.cfg.backoffInitial,
	}
}

// Start registers the supervisor loop on the task manager. The loop runs
// until the manager stops.
func (s *Supervisor) Start(mgr *task.Manager) error {
	ctx := mgr.Context()

	return mgr.Start("supervisor/"+s.conn.Name(), func() bool {
		return s.iterate(ctx)
	})
}

// iterate waits for the link to fault, then drives close/open attempts
// with backoff until the link is Open again. Returns false on shutdown.
func (s *Supervisor) iterate(ctx context.Context) bool {
	if err := s.conn.WaitState(ctx, Faulted); err != nil {
		return false
	}

	s.delay = s.conn.cfg.backoffInitial

	for {
		if !s.sleep(ctx, s.jittered(s.delay)) {
			return false
		}

		_ = s.conn.Close()

		if err := s.conn.Open(); err != nil {
			s.conn.metrics.incReconnectFailCount()

			s.logger.Warn("reconnect attempt failed",
				"failures", s.conn.ConsecutiveFailures(),
				"next_delay", s.delay,
				"error", err)

			s.delay *= backoffFactor
			if s.delay > s.conn.cfg.backoffMax {
				s.delay = s.conn.cfg.backoffMax
			}

			continue
		}

		s.conn.metrics.incReconnectCount()
		s.logger.Info("link recovered")

		return true
	}
}

// sleep waits for d or until ctx is done. Returns false on ctx done.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// jittered spreads d by the configured jitter fraction in both directions.
func (s *Supervisor) jittered(d time.Duration) time.Duration {
	jitter := s.conn.cfg.backoffJitter
	if jitter <= 0 {
		return d
	}

	spread := 1 + jitter*(2*rand.Float64()-1)

	return time.Duration(float64(d) * spread)
}
