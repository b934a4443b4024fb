package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(values ...float64) (FetchFunc, *int32) {
	var calls int32

	return func() (float64, error) {
		n := atomic.AddInt32(&calls, 1)
		if int(n) > len(values) {
			return values[len(values)-1], nil
		}

		return values[n-1], nil
	}, &calls
}

func TestPoll_IncreasingSequenceCompletes(t *testing.T) {
	fetch, calls := sequence(0.0, 0.2, 0.4, 0.6, 0.8, 1.0)

	var stops int32

	err := Poll(context.Background(), fetch, Options{
		Interval: time.Millisecond,
		OnStop:   func() { atomic.AddInt32(&stops, 1) },
	})

	require.NoError(t, err)
	assert.Equal(t, int32(6), atomic.LoadInt32(calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&stops))
}

func TestPoll_ConstantProgressStalls(t *testing.T) {
	fetch, _ := sequence(0.5)

	var stops int32

	err := Poll(context.Background(), fetch, Options{
		Interval:    10 * time.Millisecond,
		StallWindow: 10 * time.Millisecond,
		OnStop:      func() { atomic.AddInt32(&stops, 1) },
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrStall)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

func TestPoll_NegativeProgressFailsImmediately(t *testing.T) {
	fetch, calls := sequence(0.1, 0.2, -1, 0.9, 1.0)

	var stops int32

	err := Poll(context.Background(), fetch, Options{
		Interval: time.Millisecond,
		OnStop:   func() { atomic.AddInt32(&stops, 1) },
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrNative)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

func TestPoll_FetchErrorIsNativeFailure(t *testing.T) {
	boom := errors.New("interop error")

	err := Poll(context.Background(), func() (float64, error) {
		return 0, boom
	}, Options{Interval: time.Millisecond})

	assert.ErrorIs(t, err, failure.ErrNative)
	assert.ErrorIs(t, err, boom)
}

func TestPoll_IterationBudgetExhausted(t *testing.T) {
	fetch, calls := sequence(0.1, 0.2, 0.3, 0.4, 0.5)

	var stops int32

	err := Poll(context.Background(), fetch, Options{
		Interval:      time.Millisecond,
		MaxIterations: 3,
		OnStop:        func() { atomic.AddInt32(&stops, 1) },
	})

	assert.ErrorIs(t, err, failure.ErrTimeout)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

func TestPoll_StopFlagExitsCooperatively(t *testing.T) {
	fetch, _ := sequence(0.1)
	stop := NewFlag()

	var stops int32

	done := Start(context.Background(), fetch, Options{
		Interval: time.Hour,
		Stop:     stop,
		OnStop:   func() { atomic.AddInt32(&stops, 1) },
	})

	stop.Set()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not observe stop flag")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

func TestPoll_FailedFetchAfterStopIsNotAnError(t *testing.T) {
	stop := NewFlag()

	var stops int32

	fetch := func() (float64, error) {
		// The operation is torn down between the flag check and the fetch.
		stop.Set()

		return -1, nil
	}

	err := Poll(context.Background(), fetch, Options{
		Interval: time.Millisecond,
		Stop:     stop,
		OnStop:   func() { atomic.AddInt32(&stops, 1) },
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

func TestPoll_ContextCancelled(t *testing.T) {
	fetch, _ := sequence(0.1)
	ctx, cancel := context.WithCancel(context.Background())

	var stops int32

	done := Start(ctx, fetch, Options{
		Interval: time.Hour,
		OnStop:   func() { atomic.AddInt32(&stops, 1) },
	})

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, failure.ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not observe cancellation")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&stops))
}

func TestFlag(t *testing.T) {
	var f Flag

	assert.False(t, f.IsSet())

	f.Set()
	f.Set()

	assert.True(t, f.IsSet())

	select {
	case <-f.Done():
	default:
		t.Fatal("done channel not closed")
	}
}
