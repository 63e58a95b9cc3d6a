package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/store-db/modules/audit"
	"github.com/example/store-db/modules/catalog"
	"github.com/example/store-db/modules/database"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Module serves the catalog over HTTP using Fiber.
type Module struct {
	app      *fiber.App
	addr     string
	origins  string
	catalog  catalog.Port
	database database.Port
	audit    audit.Port
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module          = (*Module)(nil)
	_ mono.DependentModule = (*Module)(nil)
)

// NewModule creates the HTTP module listening on addr. origins is the CORS
// allow list.
func NewModule(addr, origins string, logger types.Logger) *Module {
	if origins == "" {
		origins = "http://localhost:3000,http://localhost:8080"
	}
	return &Module{
		addr:    addr,
		origins: origins,
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// Dependencies returns the modules this module depends on.
func (m *Module) Dependencies() []string {
	return []string{"catalog", "database", "audit"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "catalog":
		m.catalog = catalog.NewAdapter(container)
	case "database":
		m.database = database.NewAdapter(container)
	case "audit":
		m.audit = audit.NewAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *Module) Start(_ context.Context) error {
	if m.catalog == nil || m.database == nil || m.audit == nil {
		return fmt.Errorf("catalog, database and audit dependencies not set")
	}

	m.app = NewApp(NewHandlers(m.catalog, m.database, m.audit, m.logger), m.origins, m.logger)

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.addr); err != nil {
			errCh <- err
		}
	}()

	// Catch immediate startup errors such as a port already in use.
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", m.addr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// NewApp builds the Fiber app with every route registered.
func NewApp(h *Handlers, origins string, log types.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "store-db",
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			log.Error("HTTP error", "code", code, "message", message, "error", err)
			return c.Status(code).JSON(fiber.Map{"error": fiber.Map{"message": message}})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", h.HealthCheck)
	app.Get("/tools", h.ListTools)

	v1 := app.Group("/api/v1")
	v1.Get("/database/status", h.DatabaseStatus)
	v1.Post("/database/reset", h.ResetDatabase)

	// Static segments before /:id.
	v1.Get("/products", h.ListProducts)
	v1.Get("/products/search", h.SearchProducts)
	v1.Get("/products/by-name/:name", h.GetProductByName)
	v1.Get("/products/:id", h.GetProduct)
	v1.Post("/products", h.AddProduct)
	v1.Delete("/products/:id", h.RemoveProduct)

	v1.Post("/orders", h.PlaceOrder)
	v1.Get("/activity", h.Activity)

	return app
}
