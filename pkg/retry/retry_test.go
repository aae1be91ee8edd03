package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	b := Backoff{
		Initial:    100 * time.Millisecond,
		Max:        400 * time.Millisecond,
		Multiplier: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
	assert.Equal(t, 400*time.Millisecond, b.Delay(10), "delay must cap at Max")
}

func TestBackoff_DelayClampsLowAttempts(t *testing.T) {
	b := Backoff{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 2.0}
	assert.Equal(t, b.Delay(1), b.Delay(0))
	assert.Equal(t, b.Delay(1), b.Delay(-3))
}

func TestBackoff_JitterStaysWithinBounds(t *testing.T) {
	b := Backoff{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}

	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestTransient_Marking(t *testing.T) {
	base := errors.New("flaky")

	marked := Transient(base)
	assert.True(t, IsTransient(marked))
	assert.ErrorIs(t, marked, base)

	assert.False(t, IsTransient(base))
	assert.Nil(t, Transient(nil))
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1.0}

	calls := 0
	err := Do(context.Background(), b, 5, func() error {
		calls++
		if calls < 3 {
			return Transient(errors.New("not yet"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientAbortsImmediately(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1.0}
	fatal := errors.New("permission denied")

	calls := 0
	err := Do(context.Background(), b, 5, func() error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	b := Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1.0}
	flaky := errors.New("still down")

	calls := 0
	err := Do(context.Background(), b, 3, func() error {
		calls++
		return Transient(flaky)
	})

	assert.ErrorIs(t, err, flaky)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancellationStopsWaiting(t *testing.T) {
	b := Backoff{Initial: time.Hour, Max: time.Hour, Multiplier: 1.0}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, b, 3, func() error {
			return Transient(errors.New("down"))
		})
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not honor context cancellation")
	}
}
