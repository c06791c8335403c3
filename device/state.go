package device

import (
	"context"
	"sync"
	"sync/atomic"
)

// LinkState represents the connection state of a single serial link.
type LinkState uint32

const (
	// Closed indicates that the serial port is not open.
	Closed LinkState = iota
	// Connecting indicates that an open attempt is in progress.
	Connecting
	// Open indicates that the link is established and ready for exchanges.
	Open
	// Faulted indicates that the link failed (open error, I/O error or
	// reply timeout) and is awaiting recovery by the Supervisor.
	Faulted
)

// String returns the string representation of the link state.
func (s LinkState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsOpen returns true if the state is Open.
func (s LinkState) IsOpen() bool { return s == Open }

// IsFaulted returns true if the state is Faulted.
func (s LinkState) IsFaulted() bool { return s == Faulted }

// StateChangeHandler is invoked on every link state transition, in blocking
// mode under the state lock. Keep implementations short.
type StateChangeHandler func(prev, cur LinkState)

// linkStateMgr tracks the LinkState of one Conn.
//
// Reads are lock-free; transitions take a mutex so that handlers observe
// transitions in order and waiters can be woken through the condition
// variable.
type linkStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	handlers []StateChangeHandler
}

func newLinkStateMgr(handlers ...StateChangeHandler) *linkStateMgr {
	mgr := &linkStateMgr{handlers: handlers}
	mgr.cond = sync.NewCond(&mgr.mu)
	mgr.state.Store(uint32(Closed))

	return mgr
}

// Get returns the current link state.
func (m *linkStateMgr) Get() LinkState {
	return LinkState(m.state.Load())
}

// Is returns true if the current state equals s.
func (m *linkStateMgr) Is(s LinkState) bool {
	return m.Get() == s
}

// Set transitions to the given state, invoking handlers and waking waiters.
// Setting the current state again is a no-op.
func (m *linkStateMgr) Set(s LinkState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.Get()
	if prev == s {
		return
	}

	m.state.Store(uint32(s))

	for _, handler := range m.handlers {
		if handler != nil {
			handler(prev, s)
		}
	}

	m.cond.Broadcast()
}

// Wait blocks until the link reaches the given state or ctx is done.
func (m *linkStateMgr) Wait(ctx context.Context, s LinkState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Get() == s {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	for m.Get() != s {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			m.cond.Wait()
		}
	}

	return nil
}
