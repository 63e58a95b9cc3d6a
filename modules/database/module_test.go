package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_Lifecycle(t *testing.T) {
	manager := newTestManager(t, testConfig())
	mod := NewModule(manager, &mockLogger{})
	ctx := context.Background()

	assert.Equal(t, "database", mod.Name())
	assert.Same(t, manager, mod.Manager())

	health := mod.Health(ctx)
	assert.False(t, health.Healthy)
	assert.Equal(t, StateUnknown, health.Details["state"])

	require.NoError(t, mod.Start(ctx))
	assert.Eventually(t, manager.IsAvailable, 2*time.Second, 10*time.Millisecond)

	health = mod.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, "Database is connected and ready for operations", health.Message)
	assert.Equal(t, DriverSQLite, health.Details["driver"])

	require.NoError(t, mod.Stop(ctx))
	assert.False(t, manager.IsAvailable())
	require.NoError(t, mod.Stop(ctx))
}

func TestModule_StartNeverFails(t *testing.T) {
	var calls atomic.Int32
	manager := newTestManager(t, testConfig(), WithOpener(countingOpener(&calls, 100)))
	mod := NewModule(manager, &mockLogger{})

	require.NoError(t, mod.Start(context.Background()))
	assert.Eventually(t, func() bool { return manager.State() == StateDisconnected },
		2*time.Second, 10*time.Millisecond)

	health := mod.Health(context.Background())
	assert.False(t, health.Healthy)
	assert.Equal(t, "Database is currently unavailable", health.Message)
	require.NoError(t, mod.Stop(context.Background()))
}

func TestModule_Handlers(t *testing.T) {
	schema := &stubSchema{errs: []error{&MigrationError{Err: assert.AnError}}}
	manager := newTestManager(t, testConfig(), WithSchema(schema))
	mod := NewModule(manager, &mockLogger{})
	ctx := context.Background()

	require.Equal(t, StateMigrationFailed, manager.Initialize(ctx))

	st, err := mod.handleStatus(ctx, StatusRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateMigrationFailed, st.State)
	assert.False(t, st.Available)
	assert.Contains(t, st.LastError, "schema migration failed")

	resp, err := mod.handleReset(ctx, ResetRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateMigrationFailed, resp.Previous)
	assert.Equal(t, StateConnected, resp.State)
	assert.Equal(t, StateConnected.StatusMessage(), resp.Message)
}

func TestMonitor_ReconnectsAfterLoss(t *testing.T) {
	cfg := testConfig()
	cfg.HealthCheckInterval = 20 * time.Millisecond
	cfg.MaxRetryAttempts = 1
	manager := newTestManager(t, cfg)

	mon := newMonitor(manager, &mockLogger{})
	mon.start(context.Background())
	t.Cleanup(func() { mon.stop(context.Background()) })

	require.Eventually(t, manager.IsAvailable, 2*time.Second, 10*time.Millisecond)

	manager.mu.RLock()
	db := manager.db
	manager.mu.RUnlock()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.Eventually(t, func() bool {
		return manager.Status().Attempts >= 2 && manager.IsAvailable()
	}, 2*time.Second, 10*time.Millisecond)
}

// recordingLogger keeps the messages logged at info and error level.
type recordingLogger struct {
	mockLogger
	mu     sync.Mutex
	infos  []string
	failed []string
}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, msg)
}

func (l *recordingLogger) With(args ...any) types.Logger    { return l }
func (l *recordingLogger) WithError(err error) types.Logger { return l }

func TestMonitor_ReconnectIntoFailedStateIsNotSuccess(t *testing.T) {
	schema := &stubSchema{errs: []error{nil, &MigrationError{Err: errors.New("permission denied for schema public")}}}
	manager := newTestManager(t, testConfig(), WithSchema(schema))
	require.Equal(t, StateConnected, manager.Initialize(context.Background()))

	manager.mu.RLock()
	db := manager.db
	manager.mu.RUnlock()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	logger := &recordingLogger{}
	mon := newMonitor(manager, logger)
	mon.tick(context.Background())

	assert.Equal(t, StateMigrationFailed, manager.State())
	assert.NotContains(t, logger.infos, "Database reconnected by monitor")
	assert.Contains(t, logger.failed, "Database reconnection ended in a failed state; reset required")
}
