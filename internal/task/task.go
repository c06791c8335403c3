// Package task manages the lifecycle of long-running goroutines: the TCP
// accept loop, per-client session loops, and per-device reconnect
// supervisors. It provides structured start/stop/wait semantics with panic
// isolation so a misbehaving task cannot take down the process.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lvmi/presbridge/logger"
)

// Func is one iteration of a task loop. It returns true to keep running
// or false to stop the task.
type Func func() bool

// CleanupFunc runs when a task loop exits, regardless of the reason.
type CleanupFunc func()

// Manager runs task loops as goroutines tied to a shared context.
//
// Stop cancels the context, signalling every loop to finish its current
// iteration and exit; Wait blocks until they all have. A Manager can be
// reused after Wait returns.
type Manager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex // protects ctx and cancel
	wg     sync.WaitGroup
	count  atomic.Int32
	logger logger.Logger
}

// NewManager creates a Manager whose tasks stop when ctx is cancelled or
// Stop is called.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	m := &Manager{pctx: ctx, logger: l}
	m.ctx, m.cancel = context.WithCancel(ctx)

	return m
}

// Start launches a named task loop. fn is called repeatedly until it
// returns false or the manager is stopped.
func (m *Manager) Start(name string, fn Func) error {
	return m.StartWithCleanup(name, fn, nil)
}

// StartWithCleanup launches a named task loop with a cleanup function that
// runs when the loop exits.
func (m *Manager) StartWithCleanup(name string, fn Func, cleanup CleanupFunc) error {
	ctx := m.context()

	select {
	case <-ctx.Done():
		return fmt.Errorf("task manager already stopped, cannot start %q", name)
	default:
	}

	m.logger.Debug("start task", "name", name)

	m.wg.Add(1)
	m.count.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic in task", "name", name, "panic", r)
			}

			if cleanup != nil {
				cleanup()
			}

			m.count.Add(-1)
			m.wg.Done()
			m.logger.Debug("task terminated", "name", name, "task_count", m.Count())
		}()

		for {
			select {
			case <-ctx.Done():
				return
			default:
				if !fn() {
					return
				}
			}
		}
	}()

	return nil
}

// Stop signals all running task loops to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
}

// Wait blocks until every task loop has exited, then re-arms the manager
// so new tasks can be started.
func (m *Manager) Wait() {
	m.wg.Wait()

	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(m.pctx)
	m.mu.Unlock()
}

// Count returns the number of currently running tasks.
func (m *Manager) Count() int {
	return int(m.count.Load())
}

// Context returns the context that signals task shutdown.
func (m *Manager) Context() context.Context {
	return m.context()
}

func (m *Manager) context() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.ctx
}
