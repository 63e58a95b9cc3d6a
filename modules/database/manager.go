package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const connectKey = "connect"

// Manager owns the process-wide connection pool and its lifecycle state.
// All state changes go through the statechart under mu; physical connection
// attempts are collapsed by a singleflight group so at most one is in flight.
type Manager struct {
	cfg    Config
	logger types.Logger
	open   Opener
	schema SchemaChecker
	models []any
	now    func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	machine     *lifecycle
	db          *gorm.DB
	stale       *gorm.DB
	lastAttempt time.Time
	lastErr     error
	attempts    int
	closed      bool

	sessionsOpened atomic.Int64
	sessionsClosed atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOpener replaces the function used to open connections.
func WithOpener(open Opener) ManagerOption {
	return func(m *Manager) {
		m.open = open
	}
}

// WithSchema replaces the schema checker.
func WithSchema(schema SchemaChecker) ManagerOption {
	return func(m *Manager) {
		m.schema = schema
	}
}

// WithModels sets the gorm models the default schema checker requires.
func WithModels(models ...any) ManagerOption {
	return func(m *Manager) {
		m.models = append(m.models, models...)
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager in the UNKNOWN state. No connection is
// attempted until Initialize or the first session request.
func NewManager(cfg Config, logger types.Logger, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		logger: logger,
		open:   Open,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.schema == nil {
		m.schema = NewModelSchema(cfg.AutoMigrate, m.models...)
	}

	machine, err := newLifecycle(m.now)
	if err != nil {
		return nil, err
	}
	m.machine = machine
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.machine.State()
}

// IsAvailable reports whether the state is CONNECTED.
func (m *Manager) IsAvailable() bool {
	return m.State().Available()
}

// SafeURL returns the connection string with the password masked.
func (m *Manager) SafeURL() string {
	return m.cfg.SafeURL()
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Initialize runs one connect and schema check sequence unless the manager
// is already connected or in a terminal state. Failures are recorded as
// state transitions; the resulting state is returned.
func (m *Manager) Initialize(ctx context.Context) State {
	state := m.State()
	if state == StateConnected || state.Terminal() {
		return state
	}
	return m.attempt(ctx)
}

// Reconnect attempts a connection from UNKNOWN or DISCONNECTED without the
// minimum retry interval guard. Other states are returned unchanged.
func (m *Manager) Reconnect(ctx context.Context) State {
	state := m.State()
	if state != StateUnknown && state != StateDisconnected {
		return state
	}
	return m.attempt(ctx)
}

// Reset clears a failed state and retries the connection. It is the
// operator action that leaves MIGRATION_FAILED and SCHEMA_INCOMPATIBLE.
func (m *Manager) Reset(ctx context.Context) State {
	m.mu.Lock()
	if m.closed {
		state := m.machine.State()
		m.mu.Unlock()
		return state
	}
	state := m.machine.State()
	if m.machine.Can(EventReset) {
		if err := m.fire(EventReset, nil); err == nil {
			state = StateUnknown
			m.lastAttempt = time.Time{}
		}
	}
	m.mu.Unlock()

	if state != StateUnknown {
		return state
	}
	return m.attempt(ctx)
}

// WithSession runs fn inside a transaction bound to the shared connection.
// The transaction is committed when fn returns nil and rolled back on an
// error or panic; either way it is released exactly once before returning.
// When no connection is usable an *UnavailableError is returned and fn is
// not called.
func (m *Manager) WithSession(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := m.acquire(ctx)
	if err != nil {
		return err
	}

	m.sessionsOpened.Add(1)
	defer m.sessionsClosed.Add(1)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		m.observe(ctx, tx.Error)
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback().Error
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.logger.WithError(rbErr).Warn("Failed to roll back transaction")
		}
		m.observe(ctx, err)
		return err
	}

	if err := tx.Commit().Error; err != nil {
		m.observe(ctx, err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SessionCounts returns how many sessions were opened and closed.
func (m *Manager) SessionCounts() (opened, closed int64) {
	return m.sessionsOpened.Load(), m.sessionsClosed.Load()
}

// Probe actively checks a CONNECTED pool and records a lost connection.
func (m *Manager) Probe(ctx context.Context) error {
	m.mu.RLock()
	closed, state, db := m.closed, m.machine.State(), m.db
	m.mu.RUnlock()

	if closed {
		return ErrShutdown
	}
	if state != StateConnected || db == nil {
		return &UnavailableError{State: state}
	}
	if err := m.ping(ctx, db); err != nil {
		if ctx.Err() == nil && IsConnectionError(err) {
			m.markLost(err)
		}
		return err
	}
	return nil
}

// Shutdown releases the pool. It is idempotent and safe to call when no
// connection was ever made; later session requests fail as unavailable.
func (m *Manager) Shutdown(_ context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.machine.State() == StateConnected {
		_ = m.fire(EventConnectionLost, ErrShutdown)
	}
	db, stale := m.db, m.stale
	m.db, m.stale = nil, nil
	m.mu.Unlock()

	opened, closed := m.SessionCounts()
	m.logger.Info("Database manager shut down", "sessions_opened", opened, "sessions_closed", closed)
	return errors.Join(closeDB(db), closeDB(stale))
}

// acquire returns the live pool, performing at most one lazy
// (re)connection attempt.
func (m *Manager) acquire(ctx context.Context) (*gorm.DB, error) {
	m.mu.RLock()
	closed, state, db := m.closed, m.machine.State(), m.db
	lastAttempt, lastErr := m.lastAttempt, m.lastErr
	m.mu.RUnlock()

	if closed {
		return nil, &UnavailableError{State: state, Cause: ErrShutdown}
	}

	switch {
	case state == StateConnected:
		if !m.cfg.PingOnAcquire || saturated(db) {
			return db, nil
		}
		err := m.ping(ctx, db)
		if err == nil {
			return db, nil
		}
		if ctx.Err() != nil {
			return nil, &UnavailableError{State: state, Cause: ctx.Err()}
		}
		if !IsConnectionError(err) {
			// A slow ping on a busy pool says nothing about the connection;
			// Begin will surface a real failure through observe.
			return db, nil
		}
		m.markLost(err)
	case state.Terminal():
		return nil, &UnavailableError{State: state, Cause: lastErr}
	case state == StateDisconnected && m.throttled(lastAttempt):
		return nil, &UnavailableError{State: state, Cause: lastErr}
	}

	if state = m.attempt(ctx); state != StateConnected {
		m.mu.RLock()
		cause := m.lastErr
		m.mu.RUnlock()
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		return nil, &UnavailableError{State: state, Cause: cause}
	}

	m.mu.RLock()
	state, db = m.machine.State(), m.db
	m.mu.RUnlock()
	if db == nil {
		return nil, &UnavailableError{State: state}
	}
	return db, nil
}

// attempt joins or starts the single in-flight connection attempt. The
// attempt is detached from ctx so a caller that stops waiting does not
// abort it for everyone else; it is bounded by ConnectTimeout instead.
func (m *Manager) attempt(ctx context.Context) State {
	ch := m.group.DoChan(connectKey, func() (any, error) {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ConnectTimeout)
		defer cancel()
		return m.connect(attemptCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(State)
	case <-ctx.Done():
		return m.State()
	}
}

func (m *Manager) connect(ctx context.Context) State {
	m.mu.Lock()
	if m.closed || !m.machine.Can(EventConnect) {
		state := m.machine.State()
		m.mu.Unlock()
		return state
	}
	if err := m.fire(EventConnect, nil); err != nil {
		state := m.machine.State()
		m.mu.Unlock()
		return state
	}
	m.attempts++
	m.lastAttempt = m.now()
	m.mu.Unlock()

	m.logger.Info("Connecting to database", "driver", m.cfg.Driver, "url", m.cfg.SafeURL())

	db, err := m.open(ctx, m.cfg)
	if err != nil {
		return m.finish(nil, EventConnectFailed, err)
	}

	if err := m.schema.Ensure(ctx, db); err != nil {
		event := m.classifySchemaFailure(ctx, db, err)
		_ = closeDB(db)
		return m.finish(nil, event, err)
	}

	return m.finish(db, EventEstablished, nil)
}

// classifySchemaFailure separates genuine schema problems from a
// connection that broke while the schema was being inspected.
func (m *Manager) classifySchemaFailure(ctx context.Context, db *gorm.DB, err error) statekit.EventType {
	if IsConnectionError(err) || ctx.Err() != nil {
		return EventConnectFailed
	}
	var migrationErr *MigrationError
	var schemaErr *SchemaError
	if !errors.As(err, &migrationErr) && !errors.As(err, &schemaErr) {
		return EventConnectFailed
	}
	if pingErr := m.ping(ctx, db); pingErr != nil {
		return EventConnectFailed
	}
	if migrationErr != nil {
		return EventMigrationFailed
	}
	return EventSchemaMismatch
}

func (m *Manager) finish(db *gorm.DB, event statekit.EventType, cause error) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed && db != nil {
		_ = closeDB(db)
		db, event, cause = nil, EventConnectFailed, ErrShutdown
	}

	if err := m.fire(event, cause); err != nil {
		_ = closeDB(db)
		return m.machine.State()
	}

	m.lastErr = cause
	if event == EventEstablished {
		m.db = db
		if m.stale != nil {
			stale := m.stale
			m.stale = nil
			go func() { _ = closeDB(stale) }()
		}
	}
	return m.machine.State()
}

// markLost moves CONNECTED to DISCONNECTED. The old pool is kept until a
// replacement is established so in-flight sessions can finish.
func (m *Manager) markLost(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.machine.State() != StateConnected {
		return
	}
	if err := m.fire(EventConnectionLost, cause); err != nil {
		return
	}
	if m.stale != nil {
		_ = closeDB(m.stale)
	}
	m.stale, m.db = m.db, nil
	m.lastErr = cause
}

// observe inspects an error returned inside a session for signs that the
// connection itself is gone.
func (m *Manager) observe(ctx context.Context, err error) {
	if ctx.Err() != nil || !IsConnectionError(err) {
		return
	}
	m.markLost(err)
}

// fire applies a transition; the caller must hold mu.
func (m *Manager) fire(event statekit.EventType, cause error) error {
	tr, err := m.machine.Fire(event, cause)
	if err != nil {
		m.logger.Error("Rejected connection state transition",
			"event", event, "state", m.machine.State(), "error", err)
		return err
	}

	log := m.logger.With("from", tr.From, "to", tr.To, "event", tr.Event)
	if cause != nil {
		log.WithError(cause).Warn("Database connection state changed")
	} else {
		log.Info("Database connection state changed")
	}
	return nil
}

func (m *Manager) ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return sql.ErrConnDone
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// saturated reports whether every connection the pool may open is in use,
// in which case a ping would only queue behind the running sessions.
func saturated(db *gorm.DB) bool {
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	stats := sqlDB.Stats()
	return stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections
}

func (m *Manager) throttled(lastAttempt time.Time) bool {
	if m.cfg.MinRetryInterval <= 0 || lastAttempt.IsZero() {
		return false
	}
	return m.now().Sub(lastAttempt) < m.cfg.MinRetryInterval
}
