package database

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/go-monolith/mono/pkg/types"
)

// monitor performs the initial connection in the background and then, if
// an interval is configured, keeps probing and reconnecting.
type monitor struct {
	manager  *Manager
	interval time.Duration
	retry    retry.Retry[State]
	logger   types.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func newMonitor(manager *Manager, logger types.Logger) *monitor {
	cfg := manager.Config()
	return &monitor{
		manager:  manager,
		interval: cfg.HealthCheckInterval,
		retry: retry.New[State](retry.Config{
			MaxAttempts:   cfg.MaxRetryAttempts,
			InitialDelay:  time.Second,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
		}),
		logger: logger,
	}
}

func (mon *monitor) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	mon.cancel = cancel
	mon.done = make(chan struct{})
	go mon.run(ctx)
}

func (mon *monitor) stop(ctx context.Context) {
	if mon.cancel == nil {
		return
	}
	mon.cancel()
	select {
	case <-mon.done:
	case <-ctx.Done():
		mon.logger.Warn("Timed out waiting for database monitor to stop")
	}
}

func (mon *monitor) run(ctx context.Context) {
	defer close(mon.done)

	state := mon.manager.Initialize(ctx)
	if state.Available() {
		mon.logger.Info("Database initialized", "state", state)
	} else {
		mon.logger.Warn("Database unavailable at startup, operations will fail until it recovers",
			"state", state, "hint", state.Message())
	}

	if mon.interval <= 0 {
		return
	}

	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.tick(ctx)
		}
	}
}

func (mon *monitor) tick(ctx context.Context) {
	state := mon.manager.State()
	if state == StateConnected {
		err := mon.manager.Probe(ctx)
		if err == nil {
			return
		}
		mon.logger.WithError(err).Warn("Database liveness probe failed")
		state = mon.manager.State()
	}
	if state != StateDisconnected && state != StateUnknown {
		return
	}

	state, err := mon.retry.Do(ctx, func(ctx context.Context) (State, error) {
		s := mon.manager.Reconnect(ctx)
		if s == StateDisconnected || s == StateUnknown {
			return s, &UnavailableError{State: s}
		}
		return s, nil
	})
	if err != nil {
		mon.logger.WithError(err).Warn("Database reconnection failed", "state", mon.manager.State())
		return
	}
	if state != StateConnected {
		mon.logger.Error("Database reconnection ended in a failed state; reset required",
			"state", state, "recommendation", state.Recommendation())
		return
	}
	mon.logger.Info("Database reconnected by monitor", "state", state)
}
