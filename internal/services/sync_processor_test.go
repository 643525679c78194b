package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSyncer) ProcessPending(context.Context) (int, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	assert.Equal(t, time.Minute, DefaultSyncProcessorConfig().PollInterval)

	processor := NewSyncProcessor(&countingSyncer{}, SyncProcessorConfig{}, nil)
	assert.Equal(t, time.Minute, processor.config.PollInterval, "zero interval falls back to default")
}

func TestSyncProcessor_Lifecycle(t *testing.T) {
	processor := NewSyncProcessor(&countingSyncer{}, SyncProcessorConfig{PollInterval: time.Hour}, nil)
	assert.False(t, processor.IsRunning())
	require.NoError(t, processor.Stop(context.Background()), "stopping an idle processor is a no-op")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, processor.Start(ctx))
	assert.True(t, processor.IsRunning())
	assert.ErrorIs(t, processor.Start(ctx), errSweeperRunning)

	require.NoError(t, processor.Stop(ctx))
	assert.False(t, processor.IsRunning())
	require.NoError(t, processor.Start(ctx), "a stopped processor can start again")
	require.NoError(t, processor.Stop(ctx))
}

func TestSyncProcessor_SweepsOnStartAndTick(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("sheets unavailable")}
	processor := NewSyncProcessor(syncer, SyncProcessorConfig{PollInterval: 10 * time.Millisecond}, nil)

	ctx := context.Background()
	require.NoError(t, processor.Start(ctx))

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"sweeps continue despite errors")

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, processor.Stop(stopCtx))

	stats := processor.Stats()
	assert.GreaterOrEqual(t, stats.Sweeps, 3)
	assert.Equal(t, stats.Sweeps, stats.Failures)
	assert.Equal(t, stats.Sweeps, stats.Synced)
	assert.EqualError(t, stats.LastError, "sheets unavailable")
	assert.False(t, stats.LastSweep.IsZero())
}
