package device

import (
	"fmt"
	"sort"

	"github.com/lvmi/presbridge/internal/task"
)

// Registry maps logical device names to their connections.
//
// It is built once at startup and never mutated afterwards, so lookups are
// safe for concurrent use without locking.
type Registry struct {
	conns map[string]*Conn
	names []string
}

// NewRegistry builds a registry from the given device configurations.
// Device names must be unique.
func NewRegistry(cfgs ...*Config) (*Registry, error) {
	r := &Registry{
		conns: make(map[string]*Conn, len(cfgs)),
		names: make([]string, 0, len(cfgs)),
	}

	for _, cfg := range cfgs {
		conn, err := NewConn(cfg)
		if err != nil {
			return nil, err
		}

		if _, exists := r.conns[conn.Name()]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDevice, conn.Name())
		}

		r.conns[conn.Name()] = conn
		r.names = append(r.names, conn.Name())
	}

	sort.Strings(r.names)

	return r, nil
}

// Resolve returns the connection for the given device name, or
// ErrUnknownDevice if the name is not configured.
func (r *Registry) Resolve(name string) (*Conn, error) {
	conn, ok := r.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
	}

	return conn, nil
}

// Names returns the configured device names in sorted order.
func (r *Registry) Names() []string {
	return r.names
}

// Len returns the number of configured devices.
func (r *Registry) Len() int {
	return len(r.conns)
}

// Default returns the single configured connection when the registry serves
// exactly one device, enabling the bare-command client shorthand.
func (r *Registry) Default() (*Conn, bool) {
	if len(r.names) != 1 {
		return nil, false
	}

	return r.conns[r.names[0]], true
}

// OpenAll attempts to open every connection. Failures are not fatal: the
// link is left Faulted for its supervisor to recover, and the first error
// is returned for logging.
func (r *Registry) OpenAll() error {
	var firstErr error
	for _, name := range r.names {
		if err := r.conns[name].Open(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// CloseAll closes every connection. Called at process shutdown.
func (r *Registry) CloseAll() {
	for _, name := range r.names {
		_ = r.conns[name].Close()
	}
}

// StartSupervisors starts one reconnect supervisor per connection on the
// given task manager.
func (r *Registry) StartSupervisors(mgr *task.Manager) error {
	for _, name := range r.names {
		if err := NewSupervisor(r.conns[name]).Start(mgr); err != nil {
			return err
		}
	}

	return nil
}
