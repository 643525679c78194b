package cli

import (
	"context"
	"errors"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneyflow/internal/log"
)

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "db", "moneyflow.db"))
	t.Setenv("CRON_TIMEZONE", "Asia/Ho_Chi_Minh")

	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Location().String())

	t.Setenv("CRON_TIMEZONE", "Mars/Olympus")
	_, err = LoadAndValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron timezone")
}

func TestGracefulShutdown_Signal(t *testing.T) {
	ctx, cancel := GracefulShutdown(context.Background(), log.Discard())
	defer cancel()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled by SIGTERM")
	}
}

func TestGracefulShutdown_Cancel(t *testing.T) {
	ctx, cancel := GracefulShutdown(context.Background(), log.Discard())
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRunCleanup(t *testing.T) {
	var gotDeadline bool
	RunCleanup(log.Discard(), "store", time.Second, func(ctx context.Context) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	})
	assert.True(t, gotDeadline)

	RunCleanup(log.Discard(), "amqp", time.Second, func(context.Context) error {
		return errors.New("connection already closed")
	})
}
