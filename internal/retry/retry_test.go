package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

func TestRetrierSucceedsWithoutRetrying(t *testing.T) {
	r := New(&Config{MaxAttempts: 3, InitialDelay: time.Millisecond})
	var calls int
	result := r.Do(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestRetrierRetriesUntilSuccess(t *testing.T) {
	r := New(&Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	var calls int
	result := r.Do(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Attempts)
}

func TestRetrierStopsAtMaxAttempts(t *testing.T) {
	r := New(&Config{MaxAttempts: 2, InitialDelay: time.Millisecond})
	var calls int
	result := r.Do(context.Background(), func(_ context.Context) error {
		calls++
		return errTransient
	})
	assert.Error(t, result.Err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, result.Attempts)
}

func TestRetrierHonorsPermanentError(t *testing.T) {
	r := New(&Config{MaxAttempts: 5, InitialDelay: time.Millisecond})
	var calls int
	result := r.Do(context.Background(), func(_ context.Context) error {
		calls++
		return &PermanentError{Err: errors.New("bad request")}
	})
	assert.Error(t, result.Err)
	assert.Equal(t, 1, calls, "a permanent error must not be retried")
}

func TestRetrierHonorsCustomRetryIf(t *testing.T) {
	r := New(&Config{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		RetryIf:      func(err error) bool { return false },
	})
	var calls int
	result := r.Do(context.Background(), func(_ context.Context) error {
		calls++
		return errTransient
	})
	assert.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestRetrierStopsOnContextCancellation(t *testing.T) {
	r := New(&Config{MaxAttempts: 0, InitialDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	done := make(chan *Result, 1)
	go func() {
		done <- r.Do(ctx, func(_ context.Context) error {
			calls++
			return errTransient
		})
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	result := <-done
	assert.Error(t, result.Err)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestNewClampsOutOfRangeConfig(t *testing.T) {
	r := New(&Config{MaxAttempts: 1, Multiplier: 0, RandomizeFactor: 5})
	assert.Equal(t, float64(1), r.config.Multiplier)
	assert.Equal(t, float64(1), r.config.RandomizeFactor)
}

func TestDefaultRetryIfRespectsTemporaryInterface(t *testing.T) {
	assert.True(t, DefaultRetryIf(&TemporaryError{Err: errors.New("flaky")}))
	assert.False(t, DefaultRetryIf(&PermanentError{Err: errors.New("bad input")}))
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(errTransient), "unclassified errors retry by default")
}

func TestNextDelayCapsAtMaxDelay(t *testing.T) {
	r := New(&Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10})
	assert.Equal(t, 2*time.Second, r.nextDelay(time.Second))
}
