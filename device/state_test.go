package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLinkStateString(t *testing.T) {
	require.Equal(t, "closed", Closed.String())
	require.Equal(t, "connecting", Connecting.String())
	require.Equal(t, "open", Open.String())
	require.Equal(t, "faulted", Faulted.String())
	require.Equal(t, "unknown", LinkState(99).String())
}

func TestLinkStateMgrTransitions(t *testing.T) {
	var transitions [][2]LinkState
	mgr := newLinkStateMgr(func(prev, cur LinkState) {
		transitions = append(transitions, [2]LinkState{prev, cur})
	})

	require.Equal(t, Closed, mgr.Get())

	mgr.Set(Connecting)
	mgr.Set(Open)
	mgr.Set(Open) // same-state set is a no-op
	mgr.Set(Faulted)

	require.Equal(t, [][2]LinkState{
		{Closed, Connecting},
		{Connecting, Open},
		{Open, Faulted},
	}, transitions)
}

func TestLinkStateMgrWait(t *testing.T) {
	mgr := newLinkStateMgr()

	done := make(chan error, 1)
	go func() {
		done <- mgr.Wait(context.Background(), Open)
	}()

	time.Sleep(10 * time.Millisecond)
	mgr.Set(Open)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after state change")
	}
}

func TestLinkStateMgrWaitContextCancel(t *testing.T) {
	mgr := newLinkStateMgr()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := mgr.Wait(ctx, Open)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
