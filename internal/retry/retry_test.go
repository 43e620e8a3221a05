package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		Op:         "test",
		Timeout:    20 * time.Millisecond,
		MaxRetries: 2,
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
	}
}

func TestDelaySchedule(t *testing.T) {
	policy := DefaultPolicy("explain")
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
		{-1, time.Second},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, policy.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var calls int32
	value, err := Do(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var calls int32
	value, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 0, errors.New("status 503")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoAlwaysTimingOutMakesThreeAttempts(t *testing.T) {
	policy := fastPolicy()
	var calls int32
	start := time.Now()
	_, err := Do(context.Background(), policy, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return "", ctx.Err()
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.True(t, errors.Is(err, ErrServiceTimeout))
	assert.False(t, errors.Is(err, ErrServiceFailure))

	var serviceErr *ExternalServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, 3, serviceErr.Attempts)
	assert.Equal(t, "test", serviceErr.Op)

	// three timeouts plus the two backoff sleeps (10ms + 20ms)
	minimum := 3*policy.Timeout + policy.Delay(0) + policy.Delay(1)
	assert.GreaterOrEqual(t, elapsed, minimum)
	assert.Less(t, elapsed, minimum+time.Second)
}

func TestDoFailureKeepsLastError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		return "", boom
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServiceFailure))
	assert.True(t, errors.Is(err, boom))
}

func TestDoPermanentStopsRetrying(t *testing.T) {
	var calls int32
	invalid := errors.New("invalid api key")
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", Permanent(invalid)
	})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.True(t, errors.Is(err, invalid))
	assert.True(t, errors.Is(err, ErrServiceFailure))
}

func TestDoStopsOnParentCancel(t *testing.T) {
	policy := fastPolicy()
	policy.Timeout = time.Second
	policy.BaseDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Do(ctx, policy, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDoIgnoresLateResultAfterTimeout(t *testing.T) {
	policy := fastPolicy()
	policy.MaxRetries = 0
	_, err := Do(context.Background(), policy, func(context.Context) (string, error) {
		time.Sleep(60 * time.Millisecond)
		return "late", nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServiceTimeout))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.NoError(t, Permanent(nil))
}
