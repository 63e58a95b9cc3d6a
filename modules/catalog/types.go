package catalog

import (
	"time"

	domain "github.com/example/store-db/domain/catalog"
	"github.com/example/store-db/modules/database"
)

// MaxPageSize caps the limit of paged reads.
const MaxPageSize = 500

// DefaultPageSize is the limit adapters use when the caller gives none.
const DefaultPageSize = 100

// Product is the catalog's view of a stored product.
type Product struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Inventory   int     `json:"inventory"`
	Price       float64 `json:"price"`
}

// Order is the catalog's view of a placed order.
type Order struct {
	ID                 uint      `json:"id"`
	ProductID          uint      `json:"product_id"`
	Quantity           int       `json:"quantity"`
	CustomerIdentifier string    `json:"customer_identifier"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewProduct describes a product to add. Inventory and Price default to zero.
type NewProduct struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Inventory   int     `json:"inventory"`
	Price       float64 `json:"price"`
}

// OrderRequest describes an order to place.
type OrderRequest struct {
	ProductID          uint   `json:"product_id"`
	Quantity           int    `json:"quantity"`
	CustomerIdentifier string `json:"customer_identifier"`
}

// Connectivity is the status report an automated caller checks before
// issuing operations.
type Connectivity struct {
	DatabaseStatus       database.State `json:"database_status"`
	DatabaseAvailable    bool           `json:"database_available"`
	StatusMessage        string         `json:"status_message"`
	CanPerformOperations bool           `json:"can_perform_operations"`
	Recommendation       string         `json:"recommendation"`
	Timestamp            time.Time      `json:"timestamp"`
}

// NewConnectivity builds the report for state.
func NewConnectivity(state database.State, at time.Time) Connectivity {
	return Connectivity{
		DatabaseStatus:       state,
		DatabaseAvailable:    state.Available(),
		StatusMessage:        state.StatusMessage(),
		CanPerformOperations: state.Available(),
		Recommendation:       state.Recommendation(),
		Timestamp:            at,
	}
}

// ErrorPayload carries a catalog error across the service boundary.
type ErrorPayload struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`
	State   database.State `json:"state,omitempty"`
	Message string         `json:"message"`
}

// NewErrorPayload converts err to its wire form; nil yields nil.
func NewErrorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	e := translate("", err).(*Error)
	return &ErrorPayload{Kind: e.Kind, Code: e.Code, State: e.State, Message: e.Error()}
}

// Err rebuilds the typed error; a nil payload yields nil.
func (p *ErrorPayload) Err() error {
	if p == nil {
		return nil
	}
	return &Error{Kind: p.Kind, Code: p.Code, State: p.State, Message: p.Message}
}

// Request and response types for the catalog services. Every response
// carries Error instead of failing the request so the kind survives the trip.

type GetProductsRequest struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

type GetProductByIDRequest struct {
	ID uint `json:"id"`
}

type GetProductByNameRequest struct {
	Name string `json:"name"`
}

type SearchProductsRequest struct {
	Query string `json:"query"`
	Skip  int    `json:"skip"`
	Limit int    `json:"limit"`
}

type AddProductRequest = NewProduct

type RemoveProductRequest struct {
	ID uint `json:"id"`
}

type OrderProductRequest = OrderRequest

type ConnectivityRequest struct{}

type ProductsResponse struct {
	Products []Product    `json:"products"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// ProductResponse holds one product; Product is nil when it was not found.
type ProductResponse struct {
	Product *Product      `json:"product"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

type OrderResponse struct {
	Order *Order        `json:"order,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
}

type ConnectivityResponse struct {
	Connectivity
}

func toProduct(p *domain.Product) *Product {
	if p == nil {
		return nil
	}
	return &Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Inventory:   p.Inventory,
		Price:       p.Price,
	}
}

func toProducts(products []domain.Product) []Product {
	out := make([]Product, 0, len(products))
	for i := range products {
		out = append(out, *toProduct(&products[i]))
	}
	return out
}

func toOrder(o *domain.Order) *Order {
	return &Order{
		ID:                 o.ID,
		ProductID:          o.ProductID,
		Quantity:           o.Quantity,
		CustomerIdentifier: o.CustomerIdentifier,
		CreatedAt:          o.CreatedAt,
	}
}
