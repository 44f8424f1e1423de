package signal

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
)

func TestWithShutdownCancelsOnSignal(t *testing.T) {
	logger.SetLogger(zap.NewNop())

	ctx, cancel := WithShutdown(context.Background())
	defer cancel()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWithShutdownFollowsParent(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WithShutdown(parent)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
