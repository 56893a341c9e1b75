package uat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalScheduler_RunOnce(t *testing.T) {
	var calls atomic.Int32
	scheduler := NewIntervalScheduler(10*time.Millisecond, true, log.NewLogger(log.DiscardHandler()))
	scheduler.RegisterCallback(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))
	assert.Equal(t, int32(1), calls.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "run-once mode must not repeat")
	assert.Equal(t, int64(1), scheduler.Runs())
}

func TestIntervalScheduler_RunOnceReturnsError(t *testing.T) {
	scheduler := NewIntervalScheduler(0, true, log.NewLogger(log.DiscardHandler()))
	want := errors.New("features directory missing")
	scheduler.RegisterCallback(func(ctx context.Context) error { return want })

	err := scheduler.Start(context.Background())
	assert.ErrorIs(t, err, want)
}

func TestIntervalScheduler_Periodic(t *testing.T) {
	calls := make(chan struct{}, 10)
	scheduler := NewIntervalScheduler(10*time.Millisecond, false, log.NewLogger(log.DiscardHandler()))
	scheduler.RegisterCallback(func(ctx context.Context) error {
		calls <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, scheduler.Start(ctx))

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for run %d", i+1)
		}
	}

	require.NoError(t, scheduler.Stop())
	assert.True(t, scheduler.Stopped())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, scheduler.WaitForShutdown(waitCtx))
	assert.GreaterOrEqual(t, scheduler.Runs(), int64(3))

	// stopping twice is harmless
	assert.NoError(t, scheduler.Stop())
}

func TestIntervalScheduler_ContextCancelStops(t *testing.T) {
	scheduler := NewIntervalScheduler(5*time.Millisecond, false, log.NewLogger(log.DiscardHandler()))
	scheduler.RegisterCallback(func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, scheduler.WaitForShutdown(waitCtx))
	assert.True(t, scheduler.Stopped())
}

func TestIntervalScheduler_Validation(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	s := NewIntervalScheduler(time.Second, true, logger)
	assert.Error(t, s.Start(context.Background()), "callback is required")

	s = NewIntervalScheduler(0, false, logger)
	s.RegisterCallback(func(ctx context.Context) error { return nil })
	assert.Error(t, s.Start(context.Background()), "periodic mode needs an interval")
}
