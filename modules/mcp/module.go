package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/store-db/modules/catalog"
	"github.com/example/store-db/modules/database"
	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Transports.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

const instructions = "Tools for the store database. Call check_database_connectivity " +
	"before other tools when unsure whether the database is reachable. " +
	"Errors marked (retryable) are transient; other errors require a different request."

// Config configures the MCP module.
type Config struct {
	Addr      string
	Transport string
	Version   string
}

// Module serves the catalog as MCP tools.
type Module struct {
	config   Config
	catalog  catalog.Port
	database database.Port
	server   *mcpgo.Server
	cancel   context.CancelFunc
	done     chan error
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module          = (*Module)(nil)
	_ mono.DependentModule = (*Module)(nil)
)

// NewModule creates the MCP module.
func NewModule(config Config, logger types.Logger) *Module {
	if config.Transport == "" {
		config.Transport = TransportHTTP
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}
	return &Module{
		config: config,
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "mcp"
}

// Dependencies returns the modules this module depends on.
func (m *Module) Dependencies() []string {
	return []string{"catalog", "database"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "catalog":
		m.catalog = catalog.NewAdapter(container)
	case "database":
		m.database = database.NewAdapter(container)
	}
}

// NewServer builds the mcp-go server with every tool registered.
func NewServer(tools *Tools, version string) *mcpgo.Server {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:        ServiceName,
		Version:     version,
		Description: "Product catalog and order placement over a lazily connected database",
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}, mcpgo.WithInstructions(instructions))

	handlers := tools.Handlers()
	for _, info := range Catalog {
		srv.Tool(info.Name).
			Description(info.Description).
			Handler(handlers[info.Name])
	}
	return srv
}

// ServeOptions returns the request middleware applied on every transport.
func ServeOptions() []mcpgo.ServeOption {
	return []mcpgo.ServeOption{
		mcpgo.WithMiddleware(mcpgo.Recover(), mcpgo.RequestID()),
	}
}

// Start serves the tools in the background.
func (m *Module) Start(_ context.Context) error {
	if m.catalog == nil || m.database == nil {
		return fmt.Errorf("catalog and database dependencies not set")
	}

	m.server = NewServer(NewTools(m.catalog, m.database), m.config.Version)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan error, 1)

	go func() {
		var err error
		switch m.config.Transport {
		case TransportStdio:
			err = mcpgo.ServeStdio(ctx, m.server, ServeOptions()...)
		default:
			err = mcpgo.ServeHTTPWithMiddleware(ctx, m.server, m.config.Addr, nil, ServeOptions()...)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.WithError(err).Error("MCP server stopped")
		}
		m.done <- err
	}()

	m.logger.Info("MCP server started",
		"transport", m.config.Transport,
		"addr", m.config.Addr,
		"tools", len(Catalog))
	return nil
}

// Stop cancels the server and waits for it to return.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()

	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		m.logger.Warn("MCP server did not stop in time")
	}
	m.logger.Info("MCP server stopped")
	return nil
}
