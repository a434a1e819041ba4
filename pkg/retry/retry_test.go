package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast() []Option {
	return []Option{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("busy"))
		}
		return nil
	}, append(fast(), WithMaxAttempts(3))...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPlainAndPermanentErrors(t *testing.T) {
	boom := errors.New("boom")

	for name, wrap := range map[string]func(error) error{
		"plain":     func(err error) error { return err },
		"permanent": Permanent,
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), func(context.Context) error {
				calls++
				return wrap(boom)
			}, fast()...)

			assert.Same(t, boom, err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	var retried []int
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errors.New("still busy"))
	}, append(fast(),
		WithMaxAttempts(2),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }),
	)...)

	require.EqualError(t, err, "still busy")
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, retried)
}

func TestDo_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDo_RetryIfOverridesMarkers(t *testing.T) {
	transient := errors.New("transient")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return transient
		}
		return nil
	}, append(fast(), WithRetryIf(func(err error) bool { return errors.Is(err, transient) }))...)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDelay_IsCapped(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))

	assert.Equal(t, 100*time.Millisecond, r.delay(1))
	assert.Equal(t, 200*time.Millisecond, r.delay(2))
	assert.Equal(t, 300*time.Millisecond, r.delay(5))
}
