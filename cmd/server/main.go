package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tandem/internal/agent"
	"tandem/internal/agent/lorem"
	"tandem/internal/auth"
	"tandem/internal/config"
	"tandem/internal/confirm"
	"tandem/internal/domain/repositories"
	"tandem/internal/hub"
	"tandem/internal/repository/memory"
	"tandem/internal/repository/postgres"
	"tandem/internal/server"
	"tandem/internal/service/session"
	"tandem/internal/toolcap"
	"tandem/internal/turn"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLogs, err := config.NewLogger(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLogs()
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"addr", cfg.Addr(),
	)

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up auth: %v", err)
	}
	defer verifier.Close()

	ctx := context.Background()

	messages, sessions, txManager, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to set up stores: %v", err)
	}
	defer closeStores()

	eventHub := hub.New(hub.Config{
		RingSize:       cfg.RingSize,
		QueueCapacity:  cfg.QueueCapacity,
		EvictThreshold: cfg.EvictThreshold,
		Logger:         logger,
	})
	broker := confirm.New(eventHub, confirm.Config{
		DefaultTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
	})
	tools, err := toolcap.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load tool registry: %v", err)
	}
	agents := agent.NewRegistry(lorem.Factory(), cfg.DefaultEngine, logger)
	coordinator := turn.New(turn.Config{
		Hub:      eventHub,
		Broker:   broker,
		Tools:    tools,
		Agents:   agents,
		Messages: messages,
		Logger:   logger,
	})
	sessionService := session.New(session.Config{
		Sessions: sessions,
		Messages: messages,
		Tx:       txManager,
		Logger:   logger,
	})

	srv := server.New(cfg, server.Deps{
		Verifier:    verifier,
		Hub:         eventHub,
		Agents:      agents,
		Coordinator: coordinator,
		Broker:      broker,
		Sessions:    sessionService,
		Logger:      logger,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	logger.Info("server stopped")
}

// buildVerifier selects JWKS verification when a URL is configured and
// the static token otherwise. A missing token is generated and printed
// once on stdout so a local client can pick it up; it is never logged.
func buildVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		logger.Info("using JWKS token verification", "jwks_url", cfg.JWKSURL)
		return auth.NewJWKSVerifier(cfg.JWKSURL, logger)
	}

	token := cfg.AuthToken
	if token == "" {
		generated, err := auth.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("generate auth token: %w", err)
		}
		token = generated
		fmt.Printf("TANDEM_AUTH_TOKEN=%s\n", token)
		logger.Info("generated ephemeral auth token; set TANDEM_AUTH_TOKEN to persist it")
	}
	return auth.NewStaticVerifier(token)
}

// buildStores wires the in-memory stores, or Postgres when
// TANDEM_DATABASE_URL is set. The returned cleanup is always non-nil.
func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (
	repositories.MessageStore, repositories.SessionStore, repositories.TransactionManager, func(), error,
) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory stores")
		return memory.NewMessageStore(), memory.NewSessionStore(), nil, func() {}, nil
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	repoCfg := postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	logger.Info("using postgres stores", "table_prefix", cfg.TablePrefix)
	return postgres.NewMessageStore(repoCfg),
		postgres.NewSessionStore(repoCfg),
		postgres.NewTransactionManager(pool),
		pool.Close,
		nil
}
