package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module exposes the connection Manager as a mono module. Starting it never
// fails: the first connection attempt runs in the background.
type Module struct {
	manager *Manager
	monitor *monitor
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a database module around manager.
func NewModule(manager *Manager, logger types.Logger) *Module {
	return &Module{
		manager: manager,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "database"
}

// Manager returns the shared connection manager.
func (m *Module) Manager() *Manager {
	return m.manager
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceStatus, json.Unmarshal, json.Marshal, m.handleStatus,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceStatus, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceReset, json.Unmarshal, json.Marshal, m.handleReset,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceReset, err)
	}

	m.logger.Info("Registered services", "services", []string{ServiceStatus, ServiceReset})
	return nil
}

// Start launches the background connection monitor.
func (m *Module) Start(ctx context.Context) error {
	m.monitor = newMonitor(m.manager, m.logger)
	m.monitor.start(ctx)
	m.logger.Info("Database module started",
		"driver", m.manager.Config().Driver,
		"url", m.manager.SafeURL(),
		"health_check_interval", m.manager.Config().HealthCheckInterval)
	return nil
}

// Stop stops the monitor and releases the pool.
func (m *Module) Stop(ctx context.Context) error {
	if m.monitor != nil {
		m.monitor.stop(ctx)
	}
	if err := m.manager.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down database: %w", err)
	}
	m.logger.Info("Database module stopped")
	return nil
}

// Health reports healthy only while the connection is usable.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	st := m.manager.Status()
	return mono.HealthStatus{
		Healthy: st.Available,
		Message: st.Message,
		Details: map[string]any{
			"state":           st.State,
			"driver":          st.Driver,
			"url":             st.URL,
			"attempts":        st.Attempts,
			"sessions_opened": st.SessionsOpened,
			"sessions_closed": st.SessionsClosed,
		},
	}
}

func (m *Module) handleStatus(ctx context.Context, _ StatusRequest, _ *mono.Msg) (Status, error) {
	return Local{Manager: m.manager}.Status(ctx)
}

func (m *Module) handleReset(ctx context.Context, _ ResetRequest, _ *mono.Msg) (ResetResponse, error) {
	resp, err := Local{Manager: m.manager}.Reset(ctx)
	m.logger.Info("Database reset requested", "previous", resp.Previous, "state", resp.State)
	return resp, err
}
