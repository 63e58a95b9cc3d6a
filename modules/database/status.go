package database

import "time"

// Status is a diagnostics snapshot of the manager.
type Status struct {
	State          State        `json:"state"`
	Available      bool         `json:"available"`
	Message        string       `json:"message"`
	Since          time.Time    `json:"since"`
	Driver         string       `json:"driver"`
	URL            string       `json:"url"`
	Attempts       int          `json:"attempts"`
	LastAttempt    *time.Time   `json:"last_attempt,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	SessionsOpened int64        `json:"sessions_opened"`
	SessionsClosed int64        `json:"sessions_closed"`
	Pool           *PoolStats   `json:"pool,omitempty"`
	Transitions    []Transition `json:"transitions"`
}

// PoolStats mirrors the interesting parts of sql.DBStats.
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Status returns a diagnostics snapshot.
func (m *Manager) Status() Status {
	m.mu.RLock()
	state := m.machine.State()
	st := Status{
		State:       state,
		Available:   state.Available(),
		Message:     state.StatusMessage(),
		Since:       m.machine.Since(),
		Driver:      m.cfg.Driver,
		URL:         m.cfg.SafeURL(),
		Attempts:    m.attempts,
		Transitions: m.machine.History(),
	}
	if !m.lastAttempt.IsZero() {
		at := m.lastAttempt
		st.LastAttempt = &at
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	db := m.db
	m.mu.RUnlock()

	st.SessionsOpened, st.SessionsClosed = m.SessionCounts()

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			stats := sqlDB.Stats()
			st.Pool = &PoolStats{
				MaxOpenConnections: stats.MaxOpenConnections,
				OpenConnections:    stats.OpenConnections,
				InUse:              stats.InUse,
				Idle:               stats.Idle,
				WaitCount:          stats.WaitCount,
				WaitDuration:       stats.WaitDuration,
			}
		}
	}
	return st
}
