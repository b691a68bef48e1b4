// Package app wires configuration, stores, services and handlers into a
// runnable gateway.
package app

import (
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/handlers"
	"github.com/upb/llm-gateway/internal/observability"
	"github.com/upb/llm-gateway/internal/runtimeconfig"
	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/services/budget"
	"github.com/upb/llm-gateway/services/guard"
	"github.com/upb/llm-gateway/services/pipeline"
	"github.com/upb/llm-gateway/services/policy"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/providers/anthropic"
	"github.com/upb/llm-gateway/services/providers/openai"
	"github.com/upb/llm-gateway/services/routing"
	"github.com/upb/llm-gateway/services/usage"
	"go.uber.org/zap"
)

// Dependencies is the wired object graph for one gateway process.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Snapshots *runtimeconfig.Store

	Pipeline      *pipeline.Service
	Authenticator *middleware.Authenticator

	ChatHandler   *handlers.ChatHandler
	HealthHandler *handlers.HealthHandler
	BudgetHandler *handlers.BudgetHandler

	usageSink usage.Sink
	stopCh    chan struct{}
}

// New builds the full dependency graph from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	snapshots, err := runtimeconfig.NewStore(cfg.RuntimeConfig.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}

	var budgetStore budget.Store
	if cfg.BudgetStore.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.BudgetStore.RedisAddr,
			Password: cfg.BudgetStore.RedisPassword,
			DB:       cfg.BudgetStore.RedisDB,
		})
		budgetStore = budget.NewRedisStore(client)
		logger.Info("budget counters backed by redis", zap.String("addr", cfg.BudgetStore.RedisAddr))
	} else {
		budgetStore = budget.NewMemoryStore()
		logger.Warn("budget counters are in-process only; configure REDIS_ADDR for multi-replica deployments")
	}

	var sink usage.Sink
	if cfg.UsageStore.DatabaseURL != "" {
		db, err := usage.OpenDB(cfg.UsageStore)
		if err != nil {
			return nil, fmt.Errorf("open usage database: %w", err)
		}
		sink = usage.NewPostgresSink(db, cfg.UsageStore, logger)
	} else {
		sink = usage.NewMemorySink()
		logger.Warn("usage records are in-memory only; configure DATABASE_URL to persist them")
	}

	registry := providers.NewRegistry()
	if cfg.Providers.OpenAI.APIKey != "" {
		registry.Register(openai.NewAdapter(cfg.Providers.OpenAI))
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		registry.Register(anthropic.NewAdapter(cfg.Providers.Anthropic))
	}

	g := guard.New(cfg.Guard.WarnThreshold, cfg.Guard.BlockThreshold, logger)
	g.Register(guard.NewInjectionDetector())
	g.Register(guard.NewPIIDetector())
	g.Register(guard.NewSecretsDetector())
	g.Register(guard.NewCodeExecDetector())
	if cfg.Guard.ModerationEnabled {
		g.Register(guard.NewModerationDetector(cfg.Guard))
	}

	metrics := observability.NewMetrics()

	pipe := pipeline.NewService(
		snapshots,
		policy.NewEngine(logger),
		budget.NewService(budgetStore, logger),
		g,
		routing.NewService(registry, logger),
		sink,
		metrics,
		logger,
	)

	stopCh := make(chan struct{})
	snapshots.StartRefreshWorker(cfg.RuntimeConfig.RefreshInterval, stopCh)

	return &Dependencies{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		Snapshots:     snapshots,
		Pipeline:      pipe,
		Authenticator: middleware.NewAuthenticator(snapshots, cfg.Auth.JWTSecret, logger),
		ChatHandler:   handlers.NewChatHandler(pipe, logger),
		HealthHandler: handlers.NewHealthHandler(snapshots, registry),
		BudgetHandler: handlers.NewBudgetHandler(snapshots, budget.NewService(budgetStore, logger)),
		usageSink:     sink,
		stopCh:        stopCh,
	}, nil
}

// Close stops background workers and flushes buffered usage records.
func (d *Dependencies) Close() error {
	close(d.stopCh)
	return d.usageSink.Close()
}
