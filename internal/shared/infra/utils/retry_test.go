package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayGrowsAndIsBounded(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 80 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 10*time.Millisecond, b.Delay(1))
	assert.Equal(t, 20*time.Millisecond, b.Delay(2))
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
	assert.Equal(t, 80*time.Millisecond, b.Delay(4))
	assert.Equal(t, 80*time.Millisecond, b.Delay(10), "nunca supera Max")
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.5}

	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, Backoff{}, nil, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, Backoff{}, nil, func(int) error {
		calls++
		return errors.New("still down")
	})

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), 5, Backoff{}, func(err error) bool { return !errors.Is(err, permanent) }, func(int) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Retry(ctx, 5, Backoff{Initial: time.Second, Multiplier: 1}, nil, func(int) error {
		return errors.New("down")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoff_OrDefault(t *testing.T) {
	assert.Equal(t, DefaultBackoff, Backoff{}.OrDefault())
	assert.Equal(t, DefaultBackoff, Backoff{Initial: -time.Second, Max: time.Second}.OrDefault())

	custom := Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, custom, custom.OrDefault())
}
