package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/store-db/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module exposes the catalog Service as request-reply services and emits
// catalog events.
type Module struct {
	service *Service
	logger  types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the catalog module over sessions.
func NewModule(sessions SessionProvider, logger types.Logger) *Module {
	return &Module{
		service: NewService(sessions, logger),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "catalog"
}

// Service returns the catalog service for in-process callers.
func (m *Module) Service() *Service {
	return m.service
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.service.SetEventBus(bus)
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ProductAddedV1.ToBase(),
		events.ProductRemovedV1.ToBase(),
		events.OrderPlacedV1.ToBase(),
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetProducts, json.Unmarshal, json.Marshal, m.getProducts,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetProducts, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetProductByID, json.Unmarshal, json.Marshal, m.getProductByID,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetProductByID, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetProductByName, json.Unmarshal, json.Marshal, m.getProductByName,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetProductByName, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSearchProducts, json.Unmarshal, json.Marshal, m.searchProducts,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSearchProducts, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceAddProduct, json.Unmarshal, json.Marshal, m.addProduct,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceAddProduct, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRemoveProduct, json.Unmarshal, json.Marshal, m.removeProduct,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRemoveProduct, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceOrderProduct, json.Unmarshal, json.Marshal, m.orderProduct,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceOrderProduct, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceConnectivity, json.Unmarshal, json.Marshal, m.connectivity,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceConnectivity, err)
	}

	m.logger.Info("Registered services", "services", Services)
	return nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Catalog module started", "database_state", m.service.State())
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Catalog module stopped")
	return nil
}

// Health reports whether catalog operations can run.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	state := m.service.State()
	return mono.HealthStatus{
		Healthy: state.Available(),
		Message: state.StatusMessage(),
		Details: map[string]any{"database_state": state},
	}
}

func (m *Module) getProducts(ctx context.Context, req GetProductsRequest, _ *mono.Msg) (ProductsResponse, error) {
	products, err := m.service.GetProducts(ctx, req.Skip, req.Limit)
	return ProductsResponse{Products: products, Error: NewErrorPayload(err)}, nil
}

func (m *Module) getProductByID(ctx context.Context, req GetProductByIDRequest, _ *mono.Msg) (ProductResponse, error) {
	product, err := m.service.GetProductByID(ctx, req.ID)
	return ProductResponse{Product: product, Error: NewErrorPayload(err)}, nil
}

func (m *Module) getProductByName(ctx context.Context, req GetProductByNameRequest, _ *mono.Msg) (ProductResponse, error) {
	product, err := m.service.GetProductByName(ctx, req.Name)
	return ProductResponse{Product: product, Error: NewErrorPayload(err)}, nil
}

func (m *Module) searchProducts(ctx context.Context, req SearchProductsRequest, _ *mono.Msg) (ProductsResponse, error) {
	products, err := m.service.SearchProducts(ctx, req.Query, req.Skip, req.Limit)
	return ProductsResponse{Products: products, Error: NewErrorPayload(err)}, nil
}

func (m *Module) addProduct(ctx context.Context, req AddProductRequest, _ *mono.Msg) (ProductResponse, error) {
	product, err := m.service.AddProduct(ctx, req)
	return ProductResponse{Product: product, Error: NewErrorPayload(err)}, nil
}

func (m *Module) removeProduct(ctx context.Context, req RemoveProductRequest, _ *mono.Msg) (ProductResponse, error) {
	product, err := m.service.RemoveProduct(ctx, req.ID)
	return ProductResponse{Product: product, Error: NewErrorPayload(err)}, nil
}

func (m *Module) orderProduct(ctx context.Context, req OrderProductRequest, _ *mono.Msg) (OrderResponse, error) {
	order, err := m.service.OrderProduct(ctx, req)
	return OrderResponse{Order: order, Error: NewErrorPayload(err)}, nil
}

func (m *Module) connectivity(ctx context.Context, _ ConnectivityRequest, _ *mono.Msg) (ConnectivityResponse, error) {
	c, err := m.service.Connectivity(ctx)
	return ConnectivityResponse{Connectivity: c}, err
}
