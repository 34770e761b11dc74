package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCoordinator(maxAttempts int) *Coordinator {
	return &Coordinator{
		MaxAttempts: maxAttempts,
		Delay:       time.Millisecond,
		Timeout:     time.Second,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	c := testCoordinator(3)

	calls := 0
	attempts, err := c.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	c := testCoordinator(3)

	calls := 0
	attempts, err := c.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transientf("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsTransient(t *testing.T) {
	c := testCoordinator(3)

	calls := 0
	attempts, err := c.Do(context.Background(), "fetch", func(ctx context.Context) error {
		calls++
		return Transientf("still down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)

	// Exhaustion is terminal but keeps the transient provenance visible.
	assert.True(t, IsExhausted(err))
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "still down")
}

func TestDoStopsOnPermanent(t *testing.T) {
	c := testCoordinator(5)

	calls := 0
	attempts, err := c.Do(context.Background(), "extract", func(ctx context.Context) error {
		calls++
		return Permanentf("corrupt attachment")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
	assert.False(t, IsExhausted(err))
}

func TestDoHonorsCancelledContext(t *testing.T) {
	c := testCoordinator(3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := c.Do(ctx, "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 0, calls)
	assert.True(t, IsExhausted(err))
}

func TestDoDeadlineDuringDelay(t *testing.T) {
	c := &Coordinator{MaxAttempts: 5, Delay: time.Minute, Timeout: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	_, err := c.Do(ctx, "fetch", func(ctx context.Context) error {
		calls++
		return Transientf("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsExhausted(err))
	// The inter-attempt sleep must give up at the deadline, not run out.
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestClassification(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("boom"))))
	assert.False(t, IsPermanent(Transient(errors.New("boom"))))

	assert.True(t, IsPermanent(Permanent(errors.New("boom"))))
	assert.False(t, IsTransient(Permanent(errors.New("boom"))))

	// Unclassified errors default to transient.
	assert.True(t, IsTransient(errors.New("boom")))
	assert.False(t, IsPermanent(errors.New("boom")))

	assert.False(t, IsTransient(nil))
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))
}

func TestClassificationUnwraps(t *testing.T) {
	base := errors.New("root cause")
	wrapped := Transientf("fetching message: %w", base)
	assert.True(t, errors.Is(wrapped, base))

	exhausted := &ExhaustedError{Stage: "fetch", Err: fmt.Errorf("wrapped: %w", base)}
	assert.True(t, errors.Is(exhausted, base))
}

func TestNewCoordinatorDefaults(t *testing.T) {
	c := NewCoordinator(0, 0, 0)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, 60*time.Second, c.Delay)
	assert.Equal(t, 300*time.Second, c.Timeout)

	c = NewCoordinator(5, time.Second, time.Minute)
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, time.Second, c.Delay)
	assert.Equal(t, time.Minute, c.Timeout)
}
