package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/store-db/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// ServiceRecent returns recent catalog activity.
const ServiceRecent = "recent"

// maxRecent caps a single recent request.
const maxRecent = 500

// Module consumes catalog events into an activity log.
type Module struct {
	log    *Log
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
)

// NewModule creates the audit module retaining capacity activities.
func NewModule(capacity int, logger types.Logger) *Module {
	return &Module{
		log:    NewLog(capacity),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "audit"
}

// Log returns the activity log.
func (m *Module) Log() *Log {
	return m.log
}

// RegisterEventConsumers subscribes to catalog events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.ProductAddedV1, m.handleProductAdded, m,
	); err != nil {
		return fmt.Errorf("failed to register ProductAdded consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.ProductRemovedV1, m.handleProductRemoved, m,
	); err != nil {
		return fmt.Errorf("failed to register ProductRemoved consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.OrderPlacedV1, m.handleOrderPlaced, m,
	); err != nil {
		return fmt.Errorf("failed to register OrderPlaced consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"ProductAdded.v1", "ProductRemoved.v1", "OrderPlaced.v1"})
	return nil
}

// RegisterServices registers the recent service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRecent, json.Unmarshal, json.Marshal, m.handleRecent,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecent, err)
	}
	return nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Audit module started", "capacity", m.log.capacity)
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Audit module stopped", "recorded", m.log.Total())
	return nil
}

func (m *Module) handleProductAdded(_ context.Context, event events.ProductAddedEvent, _ *mono.Msg) error {
	m.log.Record(Activity{
		EventID:    event.EventID,
		Type:       TypeProductAdded,
		ProductID:  event.ProductID,
		Summary:    fmt.Sprintf("Product '%s' added with %d in stock at %.2f", event.Name, event.Inventory, event.Price),
		OccurredAt: event.AddedAt,
	})
	m.logger.Debug("Recorded product addition", "product_id", event.ProductID)
	return nil
}

func (m *Module) handleProductRemoved(_ context.Context, event events.ProductRemovedEvent, _ *mono.Msg) error {
	m.log.Record(Activity{
		EventID:    event.EventID,
		Type:       TypeProductRemoved,
		ProductID:  event.ProductID,
		Summary:    fmt.Sprintf("Product '%s' removed", event.Name),
		OccurredAt: event.RemovedAt,
	})
	m.logger.Debug("Recorded product removal", "product_id", event.ProductID)
	return nil
}

func (m *Module) handleOrderPlaced(_ context.Context, event events.OrderPlacedEvent, _ *mono.Msg) error {
	m.log.Record(Activity{
		EventID:   event.EventID,
		Type:      TypeOrderPlaced,
		ProductID: event.ProductID,
		OrderID:   event.OrderID,
		Summary: fmt.Sprintf("%s ordered %d x '%s', %d left",
			event.CustomerIdentifier, event.Quantity, event.ProductName, event.RemainingInventory),
		OccurredAt: event.PlacedAt,
	})
	m.logger.Debug("Recorded order", "order_id", event.OrderID, "product_id", event.ProductID)
	return nil
}

func (m *Module) handleRecent(_ context.Context, req RecentRequest, _ *mono.Msg) (RecentResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	return RecentResponse{
		Activities: m.log.Recent(limit),
		Total:      m.log.Total(),
	}, nil
}
