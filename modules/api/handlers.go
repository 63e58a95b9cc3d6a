package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/example/store-db/modules/audit"
	"github.com/example/store-db/modules/catalog"
	"github.com/example/store-db/modules/database"
	"github.com/example/store-db/modules/mcp"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = 5

// Handlers contains HTTP request handlers over the module ports.
type Handlers struct {
	catalog  catalog.Port
	database database.Port
	audit    audit.Port
	logger   types.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(catalogPort catalog.Port, databasePort database.Port, auditPort audit.Port, logger types.Logger) *Handlers {
	return &Handlers{
		catalog:  catalogPort,
		database: databasePort,
		audit:    auditPort,
		logger:   logger,
	}
}

// HealthCheck handles GET /health. It answers 200 while the process runs.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":             "healthy",
		"service":            mcp.ServiceName,
		"database_status":    database.StateUnknown,
		"database_available": false,
		"message":            "MCP server is running and ready to process requests",
		"timestamp":          time.Now(),
	}
	if st, err := h.database.Status(c.UserContext()); err == nil {
		resp["database_status"] = st.State
		resp["database_available"] = st.Available
		resp["database_url"] = st.URL
	}
	return c.JSON(resp)
}

// ListTools handles GET /tools.
func (h *Handlers) ListTools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     mcp.ServiceName,
		"total_tools": len(mcp.Catalog),
		"tools":       mcp.Catalog,
	})
}

// DatabaseStatus handles GET /api/v1/database/status.
func (h *Handlers) DatabaseStatus(c *fiber.Ctx) error {
	st, err := h.database.Status(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(st)
}

// ResetDatabase handles POST /api/v1/database/reset.
func (h *Handlers) ResetDatabase(c *fiber.Ctx) error {
	resp, err := h.database.Reset(c.UserContext())
	if err != nil {
		return h.writeError(c, err)
	}
	h.logger.Info("Database reset requested", "previous", resp.Previous, "state", resp.State)
	return c.JSON(resp)
}

// ListProducts handles GET /api/v1/products.
func (h *Handlers) ListProducts(c *fiber.Ctx) error {
	products, err := h.catalog.GetProducts(c.UserContext(), c.QueryInt("skip", 0), c.QueryInt("limit", catalog.DefaultPageSize))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(products))
}

// SearchProducts handles GET /api/v1/products/search.
func (h *Handlers) SearchProducts(c *fiber.Ctx) error {
	products, err := h.catalog.SearchProducts(c.UserContext(),
		c.Query("q"), c.QueryInt("skip", 0), c.QueryInt("limit", catalog.DefaultPageSize))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(nonNil(products))
}

// GetProductByName handles GET /api/v1/products/by-name/:name.
func (h *Handlers) GetProductByName(c *fiber.Ctx) error {
	name := c.Params("name")
	product, err := h.catalog.GetProductByName(c.UserContext(), name)
	if err != nil {
		return h.writeError(c, err)
	}
	if product == nil {
		return notFound(c, fmt.Sprintf("Product with name '%s' not found.", name))
	}
	return c.JSON(product)
}

// GetProduct handles GET /api/v1/products/:id.
func (h *Handlers) GetProduct(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return invalidID(c)
	}
	product, err := h.catalog.GetProductByID(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	if product == nil {
		return notFound(c, fmt.Sprintf("Product with id %d not found.", id))
	}
	return c.JSON(product)
}

// AddProduct handles POST /api/v1/products.
func (h *Handlers) AddProduct(c *fiber.Ctx) error {
	var req catalog.NewProduct
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	product, err := h.catalog.AddProduct(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// RemoveProduct handles DELETE /api/v1/products/:id.
func (h *Handlers) RemoveProduct(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return invalidID(c)
	}
	product, err := h.catalog.RemoveProduct(c.UserContext(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	if product == nil {
		return notFound(c, fmt.Sprintf("Product with id %d not found.", id))
	}
	return c.JSON(product)
}

// PlaceOrder handles POST /api/v1/orders.
func (h *Handlers) PlaceOrder(c *fiber.Ctx) error {
	var req catalog.OrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}
	order, err := h.catalog.OrderProduct(c.UserContext(), req)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// Activity handles GET /api/v1/activity.
func (h *Handlers) Activity(c *fiber.Ctx) error {
	resp, err := h.audit.Recent(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return h.writeError(c, err)
	}
	if resp.Activities == nil {
		resp.Activities = []audit.Activity{}
	}
	return c.JSON(resp)
}

// StatusFor maps an error onto an HTTP status code.
func StatusFor(err error) int {
	switch catalog.KindOf(err) {
	case catalog.KindUnavailable:
		return fiber.StatusServiceUnavailable
	case catalog.KindRateLimited:
		return fiber.StatusTooManyRequests
	case catalog.KindBusiness:
		switch catalog.CodeOf(err) {
		case catalog.CodeProductNotFound:
			return fiber.StatusNotFound
		case catalog.CodeInsufficientInventory:
			return fiber.StatusConflict
		default:
			return fiber.StatusBadRequest
		}
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handlers) writeError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	switch status {
	case fiber.StatusServiceUnavailable, fiber.StatusTooManyRequests:
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
	case fiber.StatusInternalServerError:
		h.logger.WithError(err).Error("Request failed", "method", c.Method(), "path", c.Path())
	}
	return c.Status(status).JSON(fiber.Map{"error": catalog.NewErrorPayload(err)})
}

func productID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func invalidID(c *fiber.Ctx) error {
	return badRequest(c, fmt.Sprintf("Invalid product id %q.", c.Params("id")))
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": catalog.ErrorPayload{
		Kind:    catalog.KindBusiness,
		Code:    catalog.CodeProductNotFound,
		Message: message,
	}})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": catalog.ErrorPayload{
		Kind:    catalog.KindBusiness,
		Code:    "invalid_arguments",
		Message: message,
	}})
}

func nonNil(products []catalog.Product) []catalog.Product {
	if products == nil {
		return []catalog.Product{}
	}
	return products
}
