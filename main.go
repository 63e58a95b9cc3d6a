package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/store-db/config"
	domain "github.com/example/store-db/domain/catalog"
	"github.com/example/store-db/middleware/ratelimit"
	"github.com/example/store-db/modules/api"
	"github.com/example/store-db/modules/audit"
	"github.com/example/store-db/modules/catalog"
	"github.com/example/store-db/modules/database"
	"github.com/example/store-db/modules/mcp"
	"github.com/example/store-db/telemetry"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the store service (HTTP API, MCP tools and background monitor)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if code := serve(cfg); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	root := &cobra.Command{
		Use:           "store-db",
		Short:         "Product catalog and order service over a lazily connected database",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		serveCmd,
		newMigrateCmd(&configPath),
		newStatusCmd(&configPath),
	)
	return root
}

// newMigrateCmd connects once, which runs the schema check and migration.
// The exit status is non-zero unless the database ends up CONNECTED.
func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Connect once, apply missing tables and columns, and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			dbCfg := cfg.DatabaseConfig()
			dbCfg.AutoMigrate = true

			status, err := connectOnce(cmd.Context(), dbCfg)
			if err != nil {
				return err
			}
			log.Printf("Database state: %s (%s)", status.State, status.Message)
			if !status.Available {
				if status.LastError != "" {
					log.Printf("Last error: %s", status.LastError)
				}
				return fmt.Errorf("migration did not complete: %s", status.State.Message())
			}
			return nil
		},
	}
}

// newStatusCmd connects once and prints the diagnostics snapshot.
func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect once and print the database connectivity report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			status, err := connectOnce(cmd.Context(), cfg.DatabaseConfig())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}

func connectOnce(ctx context.Context, cfg database.Config) (database.Status, error) {
	app, err := mono.NewMonoApplication(mono.WithLogLevel(mono.LogLevelError))
	if err != nil {
		return database.Status{}, fmt.Errorf("failed to create application: %w", err)
	}
	// The application is only used for its logger; Stop releases its NATS server.
	defer func() { _ = app.Stop(context.Background()) }()
	manager, err := database.NewManager(cfg, app.Logger().WithModule("database"),
		database.WithModels(domain.Models()...))
	if err != nil {
		return database.Status{}, err
	}
	defer func() { _ = manager.Shutdown(context.Background()) }()

	manager.Initialize(ctx)
	return manager.Status(), nil
}

func serve(cfg config.Config) int {
	log.Println("=== Store DB ===")
	log.Printf("Database: %s (%s)", cfg.DatabaseConfig().SafeURL(), cfg.Database.Driver)
	log.Printf("HTTP Addr: %s", cfg.HTTP.Addr)
	log.Printf("MCP: %s on %s", cfg.MCP.Transport, cfg.MCP.Addr)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.TelemetryConfig())
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	// Only "error" lowers verbosity; other levels run at info.
	level := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		level = mono.LogLevelError
	}
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(level),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create mono application: %v", err)
	}
	logger := app.Logger()

	// Middleware must be registered first to intercept service registrations.
	if cfg.RateLimitEnabled() {
		limited := make([]string, 0, len(catalog.Services))
		for _, name := range catalog.Services {
			if name != catalog.ServiceConnectivity {
				limited = append(limited, name)
			}
		}
		rateLimiter, err := ratelimit.New(logger.WithModule("rate-limit"), cfg.RateLimitOptions(limited...)...)
		if err != nil {
			log.Fatalf("Failed to create rate limiting middleware: %v", err)
		}
		app.Register(rateLimiter)
	}

	manager, err := database.NewManager(cfg.DatabaseConfig(), logger.WithModule("database"),
		database.WithModels(domain.Models()...))
	if err != nil {
		log.Fatalf("Failed to create database manager: %v", err)
	}

	app.Register(database.NewModule(manager, logger.WithModule("database")))
	app.Register(catalog.NewModule(manager, logger.WithModule("catalog")))
	app.Register(audit.NewModule(audit.DefaultCapacity, logger.WithModule("audit")))
	if cfg.MCP.Transport != config.TransportOff {
		app.Register(mcp.NewModule(mcp.Config{
			Addr:      cfg.MCP.Addr,
			Transport: cfg.MCP.Transport,
			Version:   version,
		}, logger.WithModule("mcp")))
	}
	app.Register(api.NewModule(cfg.HTTP.Addr, os.Getenv("CORS_ALLOWED_ORIGINS"), logger.WithModule("api")))

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	printStartupInfo(cfg, manager.State())

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
			"tracing": func(ctx context.Context) error {
				return shutdownTracing(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	return exitCode
}

func printStartupInfo(cfg config.Config, state database.State) {
	log.Println("")
	log.Println("=== Application Started ===")
	log.Printf("Database state: %s", state)
	if !state.Available() {
		log.Println("  Database operations will report unavailability until a connection succeeds.")
	}
	log.Printf("API available at http://localhost%s", cfg.HTTP.Addr)
	log.Println("Endpoints:")
	log.Println("  GET    /health                          - Health check")
	log.Println("  GET    /tools                           - List MCP tools")
	log.Println("  GET    /api/v1/database/status          - Connection diagnostics")
	log.Println("  POST   /api/v1/database/reset           - Clear a failed state and reconnect")
	log.Println("  GET    /api/v1/products                 - List products")
	log.Println("  GET    /api/v1/products/search?q=       - Search products")
	log.Println("  GET    /api/v1/products/by-name/:name   - Get product by name")
	log.Println("  GET    /api/v1/products/:id             - Get product by id")
	log.Println("  POST   /api/v1/products                 - Add a product")
	log.Println("  DELETE /api/v1/products/:id             - Remove a product")
	log.Println("  POST   /api/v1/orders                   - Place an order")
	log.Println("  GET    /api/v1/activity                 - Recent catalog activity")
	if cfg.MCP.Transport == config.TransportHTTP {
		log.Printf("MCP tools served over HTTP/SSE on %s", cfg.MCP.Addr)
	}
	if cfg.RateLimitEnabled() {
		log.Printf("Rate limiting: %d calls per %s per agent (Redis %s)",
			cfg.RateLimit.Limit, cfg.RateLimit.Window, cfg.RateLimit.RedisAddr)
	}
	log.Printf("Shutdown timeout: %s", cfg.ShutdownTimeout.Round(time.Second))
	log.Println("")
	log.Println("Press Ctrl+C to shutdown")
}
