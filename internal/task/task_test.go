package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lvmi/presbridge/logger"
)

func TestManagerRunsUntilFalse(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	var runs atomic.Int32
	require.NoError(t, mgr.Start("counter", func() bool {
		return runs.Add(1) < 5
	}))

	mgr.Wait()
	require.EqualValues(t, 5, runs.Load())
	require.Equal(t, 0, mgr.Count())
}

func TestManagerStopTerminatesLoops(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	started := make(chan struct{})
	var once atomic.Bool

	require.NoError(t, mgr.Start("spinner", func() bool {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		time.Sleep(time.Millisecond)

		return true
	}))

	<-started
	mgr.Stop()
	mgr.Wait()

	require.Equal(t, 0, mgr.Count())
}

func TestManagerCleanupRuns(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	var cleaned atomic.Bool
	require.NoError(t, mgr.StartWithCleanup("oneshot",
		func() bool { return false },
		func() { cleaned.Store(true) },
	))

	mgr.Wait()
	require.True(t, cleaned.Load())
}

func TestManagerCleanupRunsOnPanic(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	var cleaned atomic.Bool
	require.NoError(t, mgr.StartWithCleanup("panicky",
		func() bool { panic("boom") },
		func() { cleaned.Store(true) },
	))

	mgr.Wait()
	require.True(t, cleaned.Load())
	require.Equal(t, 0, mgr.Count())
}

func TestManagerRejectsStartAfterStop(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	mgr.Stop()
	require.Error(t, mgr.Start("late", func() bool { return false }))
}

func TestManagerReusableAfterWait(t *testing.T) {
	mgr := NewManager(context.Background(), logger.GetLogger())

	mgr.Stop()
	mgr.Wait()

	// Wait re-arms the manager.
	var ran atomic.Bool
	require.NoError(t, mgr.Start("second-life", func() bool {
		ran.Store(true)

		return false
	}))

	mgr.Wait()
	require.True(t, ran.Load())
}

func TestManagerParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mgr := NewManager(ctx, logger.GetLogger())

	require.NoError(t, mgr.Start("spinner", func() bool {
		time.Sleep(time.Millisecond)

		return true
	}))

	cancel()
	mgr.Wait()
	require.Equal(t, 0, mgr.Count())
}
