// Package server provides the public entry point for initializing the
// ModelRelay gateway.
//
// This package exists in pkg/ (not internal/) so embedding deployments
// can import it and compose the gateway with their own middleware.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/gateway/internal/api"
	"github.com/modelrelay/modelrelay/gateway/internal/api/handlers"
	"github.com/modelrelay/modelrelay/gateway/internal/chat"
	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/modelrelay/modelrelay/gateway/internal/guardrails"
	"github.com/modelrelay/modelrelay/gateway/internal/retention"
	"github.com/modelrelay/modelrelay/gateway/internal/sandbox"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/internal/telemetry"
	"github.com/modelrelay/modelrelay/gateway/internal/tools"
	"github.com/modelrelay/modelrelay/gateway/internal/upstream"

	"github.com/rs/zerolog/log"
)

// Config is the public configuration for the gateway server.
type Config struct {
	Port         int
	Version      string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized ModelRelay gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store. Exposed so embedding deployments can
	// reuse it in their own middleware.
	Store store.Store

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry and close the store.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes all gateway components and returns a ready Server.
// The retention janitor runs until ctx is canceled.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the gateway with an explicit configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Select the store: PostgreSQL when DATABASE_URL is set, in-memory
	// otherwise (zero-configuration local runs).
	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		dataStore = pg
		log.Info().Msg("✅ PostgreSQL store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("✅ In-memory store initialized")
	}

	// Guardrail rules are compiled once at startup
	guard, err := guardrails.Load(cfg.Guardrail.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load guardrails: %w", err)
	}

	sandboxEngine, err := sandbox.New(cfg.Sandbox)
	if err != nil {
		return nil, fmt.Errorf("init sandbox: %w", err)
	}
	log.Info().Str("engine", sandboxEngine.Name()).Msg("✅ Sandbox engine initialized")

	executor := tools.NewExecutor(dataStore, sandboxEngine, cfg.Tools)
	caller := upstream.New(cfg.Upstream)
	chatService := chat.New(caller, executor, guard, dataStore, cfg.Upstream.LovableAPIKey)
	log.Info().Msg("✅ Chat service initialized")

	janitor := retention.NewJanitor(dataStore, cfg.Retention)
	go janitor.Start(ctx)

	// Build handlers + API router
	h := handlers.New(dataStore, chatService)
	router := api.NewRouter(cfg, h)

	shutdown := func(shutdownCtx context.Context) error {
		if err := dataStore.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing store failed")
		}
		return telemetryShutdown(shutdownCtx)
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Config:       pubCfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
