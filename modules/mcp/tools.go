package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/store-db/modules/catalog"
	"github.com/example/store-db/modules/database"
)

// ServiceName identifies the server to MCP clients.
const ServiceName = "mcp-store-db"

// Tool names.
const (
	ToolGetProducts               = "get_products"
	ToolGetProductByID            = "get_product_by_id"
	ToolGetProductByName          = "get_product_by_name"
	ToolSearchProducts            = "search_products"
	ToolAddProduct                = "add_product"
	ToolRemoveProduct             = "remove_product"
	ToolOrderProduct              = "order_product"
	ToolHealthCheck               = "health_check"
	ToolCheckDatabaseConnectivity = "check_database_connectivity"
)

// ToolInfo describes one exposed tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Input       string `json:"input"`
}

// Catalog lists every tool in registration order.
var Catalog = []ToolInfo{
	{ToolGetProducts, "Fetches a page of products ordered by id.", `{"skip": 0, "limit": 100}`},
	{ToolGetProductByID, "Fetches a single product by id. Returns null when it does not exist.", `{"product_id": 1}`},
	{ToolGetProductByName, "Fetches a single product by exact name. Returns null when it does not exist.", `{"name": "Widget"}`},
	{ToolSearchProducts, "Searches product names and descriptions, ignoring case.", `{"query": "widget", "skip": 0, "limit": 100}`},
	{ToolAddProduct, "Adds a new product and returns it with its id.", `{"name": "Widget", "description": null, "inventory": 0, "price": 0.0}`},
	{ToolRemoveProduct, "Removes a product by id. Returns null when it does not exist.", `{"product_id": 1}`},
	{ToolOrderProduct, "Places an order: checks inventory, deducts the quantity and records the order.", `{"product_id": 1, "quantity": 1, "customer_identifier": "alice"}`},
	{ToolHealthCheck, "Reports server health and database connectivity.", `{}`},
	{ToolCheckDatabaseConnectivity, "Reports whether the database can serve operations. Call it before other tools when unsure.", `{}`},
}

// ToolError is returned to MCP clients when a tool fails.
type ToolError struct {
	Kind      catalog.Kind
	Code      string
	Message   string
	Retryable bool
}

func (e *ToolError) Error() string {
	if e.Retryable {
		return e.Message + " (retryable)"
	}
	return e.Message
}

// toolError converts a catalog error into the error an agent sees.
func toolError(err error) error {
	if err == nil {
		return nil
	}
	te := &ToolError{
		Kind:    catalog.KindOf(err),
		Code:    catalog.CodeOf(err),
		Message: err.Error(),
	}
	switch te.Kind {
	case catalog.KindBusiness:
	case catalog.KindOperation:
		te.Retryable = te.Code != catalog.CodeConstraintViolation
	default:
		te.Retryable = true
	}
	return te
}

func invalidInput(tool string, err error) error {
	return &ToolError{
		Kind:    catalog.KindBusiness,
		Code:    "invalid_arguments",
		Message: fmt.Sprintf("Invalid arguments for %s: %v", tool, err),
	}
}

// Tools implements every tool handler over the catalog and database ports.
type Tools struct {
	catalog  catalog.Port
	database database.Port
	now      func() time.Time
}

// NewTools creates the tool handlers.
func NewTools(catalogPort catalog.Port, databasePort database.Port) *Tools {
	return &Tools{
		catalog:  catalogPort,
		database: databasePort,
		now:      time.Now,
	}
}

// Handler is the signature mcp-go invokes.
type Handler = func(ctx context.Context, input json.RawMessage) (string, error)

// Handlers maps tool names to handlers.
func (t *Tools) Handlers() map[string]Handler {
	return map[string]Handler{
		ToolGetProducts:               t.getProducts,
		ToolGetProductByID:            t.getProductByID,
		ToolGetProductByName:          t.getProductByName,
		ToolSearchProducts:            t.searchProducts,
		ToolAddProduct:                t.addProduct,
		ToolRemoveProduct:             t.removeProduct,
		ToolOrderProduct:              t.orderProduct,
		ToolHealthCheck:               t.healthCheck,
		ToolCheckDatabaseConnectivity: t.checkDatabaseConnectivity,
	}
}

type pageInput struct {
	Query string `json:"query"`
	Skip  int    `json:"skip"`
	Limit int    `json:"limit"`
}

type productIDInput struct {
	ProductID uint `json:"product_id"`
}

type nameInput struct {
	Name string `json:"name"`
}

func (t *Tools) getProducts(ctx context.Context, input json.RawMessage) (string, error) {
	in := pageInput{Limit: 100}
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolGetProducts, err)
	}
	products, err := t.catalog.GetProducts(ctx, in.Skip, in.Limit)
	if err != nil {
		return "", toolError(err)
	}
	if products == nil {
		products = []catalog.Product{}
	}
	return encode(products)
}

func (t *Tools) getProductByID(ctx context.Context, input json.RawMessage) (string, error) {
	var in productIDInput
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolGetProductByID, err)
	}
	product, err := t.catalog.GetProductByID(ctx, in.ProductID)
	if err != nil {
		return "", toolError(err)
	}
	return encode(product)
}

func (t *Tools) getProductByName(ctx context.Context, input json.RawMessage) (string, error) {
	var in nameInput
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolGetProductByName, err)
	}
	product, err := t.catalog.GetProductByName(ctx, in.Name)
	if err != nil {
		return "", toolError(err)
	}
	return encode(product)
}

func (t *Tools) searchProducts(ctx context.Context, input json.RawMessage) (string, error) {
	in := pageInput{Limit: 100}
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolSearchProducts, err)
	}
	products, err := t.catalog.SearchProducts(ctx, in.Query, in.Skip, in.Limit)
	if err != nil {
		return "", toolError(err)
	}
	if products == nil {
		products = []catalog.Product{}
	}
	return encode(products)
}

func (t *Tools) addProduct(ctx context.Context, input json.RawMessage) (string, error) {
	var in catalog.NewProduct
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolAddProduct, err)
	}
	product, err := t.catalog.AddProduct(ctx, in)
	if err != nil {
		return "", toolError(err)
	}
	return encode(product)
}

func (t *Tools) removeProduct(ctx context.Context, input json.RawMessage) (string, error) {
	var in productIDInput
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolRemoveProduct, err)
	}
	product, err := t.catalog.RemoveProduct(ctx, in.ProductID)
	if err != nil {
		return "", toolError(err)
	}
	return encode(product)
}

func (t *Tools) orderProduct(ctx context.Context, input json.RawMessage) (string, error) {
	var in catalog.OrderRequest
	if err := decode(input, &in); err != nil {
		return "", invalidInput(ToolOrderProduct, err)
	}
	order, err := t.catalog.OrderProduct(ctx, in)
	if err != nil {
		return "", toolError(err)
	}
	return encode(order)
}

// HealthReport is the health_check tool result.
type HealthReport struct {
	Status            string         `json:"status"`
	Service           string         `json:"service"`
	DatabaseStatus    database.State `json:"database_status"`
	DatabaseAvailable bool           `json:"database_available"`
	DatabaseURL       string         `json:"database_url"`
	Timestamp         time.Time      `json:"timestamp"`
	Message           string         `json:"message"`
}

// The server is healthy while it runs, whatever the database state.
func (t *Tools) healthCheck(ctx context.Context, _ json.RawMessage) (string, error) {
	report := HealthReport{
		Status:         "healthy",
		Service:        ServiceName,
		DatabaseStatus: database.StateUnknown,
		Timestamp:      t.now(),
		Message:        "MCP server is running and ready to process requests",
	}
	if st, err := t.database.Status(ctx); err == nil {
		report.DatabaseStatus = st.State
		report.DatabaseAvailable = st.Available
		report.DatabaseURL = st.URL
	}
	return encode(report)
}

func (t *Tools) checkDatabaseConnectivity(ctx context.Context, _ json.RawMessage) (string, error) {
	c, err := t.catalog.Connectivity(ctx)
	if err != nil {
		return "", toolError(err)
	}
	return encode(c)
}

func decode(input json.RawMessage, v any) error {
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	return json.Unmarshal(input, v)
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
