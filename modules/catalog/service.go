package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/example/store-db/domain/catalog"
	"github.com/example/store-db/events"
	"github.com/example/store-db/modules/database"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "github.com/example/store-db/modules/catalog"

// SessionProvider hands out units of work bound to the shared connection.
// *database.Manager implements it.
type SessionProvider interface {
	WithSession(ctx context.Context, fn func(tx *gorm.DB) error) error
	State() database.State
	IsAvailable() bool
}

var _ SessionProvider = (*database.Manager)(nil)

// Port is the catalog's interface for adapters and dependent modules.
type Port interface {
	GetProducts(ctx context.Context, skip, limit int) ([]Product, error)
	GetProductByID(ctx context.Context, id uint) (*Product, error)
	GetProductByName(ctx context.Context, name string) (*Product, error)
	SearchProducts(ctx context.Context, query string, skip, limit int) ([]Product, error)
	AddProduct(ctx context.Context, p NewProduct) (*Product, error)
	RemoveProduct(ctx context.Context, id uint) (*Product, error)
	OrderProduct(ctx context.Context, req OrderRequest) (*Order, error)
	Connectivity(ctx context.Context) (Connectivity, error)
}

// Service implements the record store and order workflow. Every operation
// runs in exactly one unit of work and returns errors of type *Error.
type Service struct {
	sessions SessionProvider
	eventBus mono.EventBus
	tracer   trace.Tracer
	logger   types.Logger
	now      func() time.Time
}

var _ Port = (*Service)(nil)

// NewService creates a catalog service over sessions.
func NewService(sessions SessionProvider, logger types.Logger) *Service {
	return &Service{
		sessions: sessions,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		now:      time.Now,
	}
}

// SetEventBus enables event publishing after successful mutations.
func (s *Service) SetEventBus(bus mono.EventBus) {
	s.eventBus = bus
}

// State returns the connection state.
func (s *Service) State() database.State {
	return s.sessions.State()
}

// IsAvailable reports whether operations can currently run.
func (s *Service) IsAvailable() bool {
	return s.sessions.IsAvailable()
}

// Connectivity reports the connection state for automated callers.
func (s *Service) Connectivity(_ context.Context) (Connectivity, error) {
	return NewConnectivity(s.sessions.State(), s.now()), nil
}

// GetProducts returns a page of products ordered by ID.
func (s *Service) GetProducts(ctx context.Context, skip, limit int) ([]Product, error) {
	const op = "get_products"
	var products []Product
	err := s.run(ctx, op, func(repo *domain.Repository) error {
		limit, err := page(op, skip, limit)
		if err != nil {
			return err
		}
		found, err := repo.List(skip, limit)
		if err != nil {
			return err
		}
		products = toProducts(found)
		return nil
	}, attribute.Int("catalog.skip", skip), attribute.Int("catalog.limit", limit))
	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetProductByID returns the product, or nil when it does not exist.
func (s *Service) GetProductByID(ctx context.Context, id uint) (*Product, error) {
	var product *Product
	err := s.run(ctx, "get_product_by_id", func(repo *domain.Repository) error {
		found, err := repo.FindByID(id)
		product = toProduct(found)
		return err
	}, attribute.Int64("catalog.product_id", int64(id)))
	if err != nil {
		return nil, err
	}
	return product, nil
}

// GetProductByName returns the product with exactly name, or nil.
func (s *Service) GetProductByName(ctx context.Context, name string) (*Product, error) {
	var product *Product
	err := s.run(ctx, "get_product_by_name", func(repo *domain.Repository) error {
		found, err := repo.FindByName(name)
		product = toProduct(found)
		return err
	}, attribute.String("catalog.product_name", name))
	if err != nil {
		return nil, err
	}
	return product, nil
}

// SearchProducts returns a page of products whose name or description
// contains query, ignoring case.
func (s *Service) SearchProducts(ctx context.Context, query string, skip, limit int) ([]Product, error) {
	const op = "search_products"
	var products []Product
	err := s.run(ctx, op, func(repo *domain.Repository) error {
		limit, err := page(op, skip, limit)
		if err != nil {
			return err
		}
		found, err := repo.Search(query, skip, limit)
		if err != nil {
			return err
		}
		products = toProducts(found)
		return nil
	}, attribute.String("catalog.query", query), attribute.Int("catalog.skip", skip), attribute.Int("catalog.limit", limit))
	if err != nil {
		return nil, err
	}
	return products, nil
}

// AddProduct inserts a product and returns it with its assigned ID.
func (s *Service) AddProduct(ctx context.Context, p NewProduct) (*Product, error) {
	const op = "add_product"
	var product *Product
	err := s.run(ctx, op, func(repo *domain.Repository) error {
		switch {
		case strings.TrimSpace(p.Name) == "":
			return businessError(op, CodeInvalidProduct, "Product name must not be empty.")
		case p.Inventory < 0:
			return businessError(op, CodeInvalidProduct, "Product inventory must be non-negative, got %d.", p.Inventory)
		case !(p.Price >= 0):
			return businessError(op, CodeInvalidProduct, "Product price must be non-negative, got %v.", p.Price)
		}

		entity := &domain.Product{
			Name:        p.Name,
			Description: p.Description,
			Inventory:   p.Inventory,
			Price:       p.Price,
		}
		if err := repo.Create(entity); err != nil {
			return err
		}
		product = toProduct(entity)
		return nil
	}, attribute.String("catalog.product_name", p.Name))
	if err != nil {
		return nil, err
	}

	s.publish(op, func() error {
		return events.ProductAddedV1.Publish(s.eventBus, events.ProductAddedEvent{
			EventID:   uuid.NewString(),
			ProductID: product.ID,
			Name:      product.Name,
			Inventory: product.Inventory,
			Price:     product.Price,
			AddedAt:   s.now(),
		}, nil)
	})
	return product, nil
}

// RemoveProduct deletes a product and returns it, or nil when it did not
// exist. A product that still has orders cannot be removed.
func (s *Service) RemoveProduct(ctx context.Context, id uint) (*Product, error) {
	const op = "remove_product"
	var product *Product
	err := s.run(ctx, op, func(repo *domain.Repository) error {
		removed, err := repo.Delete(id)
		product = toProduct(removed)
		return err
	}, attribute.Int64("catalog.product_id", int64(id)))
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	s.publish(op, func() error {
		return events.ProductRemovedV1.Publish(s.eventBus, events.ProductRemovedEvent{
			EventID:   uuid.NewString(),
			ProductID: product.ID,
			Name:      product.Name,
			RemovedAt: s.now(),
		}, nil)
	})
	return product, nil
}

// OrderProduct decrements the product's inventory and records the order in
// one unit of work. Missing products and insufficient inventory are
// business errors and leave no trace.
func (s *Service) OrderProduct(ctx context.Context, req OrderRequest) (*Order, error) {
	const op = "order_product"
	var (
		order     *Order
		name      string
		remaining int
	)
	err := s.run(ctx, op, func(repo *domain.Repository) error {
		if req.Quantity <= 0 {
			return businessError(op, CodeInvalidQuantity, "Quantity must be a positive integer, got %d.", req.Quantity)
		}
		if strings.TrimSpace(req.CustomerIdentifier) == "" {
			return businessError(op, CodeInvalidCustomer, "Customer identifier must not be empty.")
		}

		product, err := repo.FindByIDForUpdate(req.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return productNotFound(op, req.ProductID)
		}
		if product.Inventory < req.Quantity {
			return insufficientInventory(op, product.Name, product.Inventory, req.Quantity)
		}

		if err := repo.DecrementInventory(product.ID, req.Quantity); err != nil {
			if !errors.Is(err, domain.ErrInventoryChanged) {
				return err
			}
			// Lost a race with a concurrent order; report what is left now.
			current, findErr := repo.FindByID(product.ID)
			if findErr != nil {
				return findErr
			}
			if current == nil {
				return productNotFound(op, req.ProductID)
			}
			return insufficientInventory(op, current.Name, current.Inventory, req.Quantity)
		}

		entity := &domain.Order{
			ProductID:          product.ID,
			Quantity:           req.Quantity,
			CustomerIdentifier: req.CustomerIdentifier,
		}
		if err := repo.CreateOrder(entity); err != nil {
			return err
		}

		order = toOrder(entity)
		name = product.Name
		remaining = product.Inventory - req.Quantity
		return nil
	},
		attribute.Int64("catalog.product_id", int64(req.ProductID)),
		attribute.Int("catalog.quantity", req.Quantity),
	)
	if err != nil {
		return nil, err
	}

	s.publish(op, func() error {
		return events.OrderPlacedV1.Publish(s.eventBus, events.OrderPlacedEvent{
			EventID:            uuid.NewString(),
			OrderID:            order.ID,
			ProductID:          order.ProductID,
			ProductName:        name,
			Quantity:           order.Quantity,
			CustomerIdentifier: order.CustomerIdentifier,
			RemainingInventory: remaining,
			PlacedAt:           order.CreatedAt,
		}, nil)
	})
	return order, nil
}

// run executes fn in one unit of work inside a span and translates the
// resulting error.
func (s *Service) run(ctx context.Context, op string, fn func(repo *domain.Repository) error, attrs ...attribute.KeyValue) error {
	ctx, span := s.tracer.Start(ctx, "catalog."+op, trace.WithAttributes(attrs...))
	defer span.End()

	err := translate(op, s.sessions.WithSession(ctx, func(tx *gorm.DB) error {
		return fn(domain.NewRepository(tx))
	}))
	if err == nil {
		return nil
	}

	kind := KindOf(err)
	span.SetAttributes(
		attribute.String("catalog.error.kind", string(kind)),
		attribute.String("catalog.error.code", CodeOf(err)),
	)
	if kind == KindBusiness {
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.WithError(err).Warn("Catalog operation failed", "op", op, "kind", kind, "code", CodeOf(err))
	return err
}

func (s *Service) publish(op string, fn func() error) {
	if s.eventBus == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.WithError(err).Warn("Failed to publish catalog event", "op", op)
	}
}

// page validates pagination and caps limit at MaxPageSize.
func page(op string, skip, limit int) (int, error) {
	if skip < 0 || limit < 0 {
		return 0, businessError(op, CodeInvalidPagination,
			"Pagination values must be non-negative, got skip=%d limit=%d.", skip, limit)
	}
	return min(limit, MaxPageSize), nil
}
