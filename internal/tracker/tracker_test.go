package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAwaitZeroReturnsImmediatelyWhenIdle(t *testing.T) {
	t.Parallel()

	tr := New()
	require.NoError(t, tr.AwaitZero(context.Background()))
}

func TestAwaitZeroBlocksUntilComplete(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Register()
	tr.Register()

	done := make(chan error, 1)
	go func() {
		done <- tr.AwaitZero(context.Background())
	}()

	tr.Complete()
	select {
	case <-done:
		t.Fatal("AwaitZero returned with one task outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	tr.Complete()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AwaitZero did not return after the last Complete")
	}
	require.Equal(t, int64(0), tr.Outstanding())
	require.Equal(t, uint64(1), tr.Generation())
}

func TestRegisterBeforeCompleteKeepsBarrierClosed(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Register() // parent

	released := make(chan struct{})
	go func() {
		_ = tr.AwaitZero(context.Background())
		close(released)
	}()

	// The parent discovers two children and registers them before completing.
	tr.Register()
	tr.Register()
	tr.Complete()

	select {
	case <-released:
		t.Fatal("barrier released while children were outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	tr.Complete()
	tr.Complete()
	require.Eventually(t, func() bool {
		select {
		case <-released:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	registered, completed := tr.Totals()
	require.Equal(t, uint64(3), registered)
	require.Equal(t, registered, completed)
}

func TestCompletePastZeroPanics(t *testing.T) {
	t.Parallel()

	tr := New()
	require.PanicsWithValue(t, ErrNegativeOutstanding, func() {
		tr.Complete()
	})

	tr.Register()
	tr.Complete()
	require.PanicsWithValue(t, ErrNegativeOutstanding, func() {
		tr.Complete()
	})
}

func TestGenerationsAreReusable(t *testing.T) {
	t.Parallel()

	tr := New()
	for round := 1; round <= 3; round++ {
		tr.Register()
		done := make(chan error, 1)
		go func() { done <- tr.AwaitZero(context.Background()) }()
		tr.Complete()
		require.NoError(t, <-done)
		require.Equal(t, uint64(round), tr.Generation())
	}
}

func TestAwaitZeroHonorsContext(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Register()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tr.AwaitZero(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(1), tr.Outstanding())
}

func TestConcurrentRegisterComplete(t *testing.T) {
	t.Parallel()

	tr := New()
	tr.Register() // keep the barrier closed while workers churn

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Register()
				tr.Complete()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), tr.Outstanding())
	require.Equal(t, uint64(0), tr.Generation())

	tr.Complete()
	require.NoError(t, tr.AwaitZero(context.Background()))
	registered, completed := tr.Totals()
	require.Equal(t, registered, completed)
}
