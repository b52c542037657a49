package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithBaseDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, WithMaxAttempts(2), WithBaseDelay(time.Millisecond))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "max retries (2)")
	assert.Equal(t, 2, calls)
}

func TestDo_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, func() error {
		calls++
		return errors.New("transient")
	}, WithBaseDelay(time.Minute))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	assert.Equal(t, 100*time.Millisecond, backoff(0, base, max))
	assert.Equal(t, 200*time.Millisecond, backoff(1, base, max))
	assert.Equal(t, 400*time.Millisecond, backoff(2, base, max))
	assert.Equal(t, time.Second, backoff(5, base, max))
}
