// Package pool provides pooled time.Timer instances for hot paths that
// create short-lived deadlines, such as per-exchange timeouts.
package pool

import (
	"sync"
	"time"
)

var timers sync.Pool

// GetTimer returns a timer set to fire after d, reusing a pooled timer
// when one is available. Return it with PutTimer when done.
func GetTimer(d time.Duration) *time.Timer {
	v := timers.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t := v.(*time.Timer)
	if t.Reset(d) {
		// The timer was still active; drain any pending fire.
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool. The caller must not touch
// t afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}
