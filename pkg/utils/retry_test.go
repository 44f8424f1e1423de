package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 35*time.Millisecond)

	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 20*time.Millisecond, b.Next())
	assert.Equal(t, 35*time.Millisecond, b.Next())
	assert.Equal(t, 35*time.Millisecond, b.Next())

	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoffWaitInterrupted(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour)

	stop := make(chan struct{})
	close(stop)
	assert.ErrorIs(t, b.Wait(context.Background(), stop), ErrStopped)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx, nil), context.Canceled)
}

func TestBackoffWaitZero(t *testing.T) {
	b := NewBackoff(0, 0)
	require.NoError(t, b.Wait(context.Background(), nil))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, NewBackoff(time.Millisecond, time.Millisecond), func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 1, NewBackoff(0, 0), func(int) error {
		calls++
		return errors.New("permanent")
	})
	assert.EqualError(t, err, "permanent")
	assert.Equal(t, 2, calls)
}
