package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/wallet-policy/internal/api"
	"github.com/ayo6706/wallet-policy/internal/api/middleware"
	"github.com/ayo6706/wallet-policy/internal/config"
	"github.com/ayo6706/wallet-policy/internal/db"
	"github.com/ayo6706/wallet-policy/internal/domain"
	"github.com/ayo6706/wallet-policy/internal/idempotency"
	"github.com/ayo6706/wallet-policy/internal/observability"
	"github.com/ayo6706/wallet-policy/internal/repository"
	"github.com/ayo6706/wallet-policy/internal/repository/memory"
	"github.com/ayo6706/wallet-policy/internal/service"
	"github.com/ayo6706/wallet-policy/internal/usage"
	"github.com/ayo6706/wallet-policy/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	if _, err := deps.services.Loader.Refresh(ctx); err != nil {
		return fmt.Errorf("load policy snapshot: %w", err)
	}

	stopSnapshots := worker.NewSnapshotWorker(deps.services.Loader).
		WithInterval(cfg.SnapshotRefreshInterval).
		Run(ctx)
	stopAudit := worker.NewCapAuditWorker(service.NewCapAuditService(deps.services.Snapshots, deps.usage)).
		WithInterval(cfg.CapAuditInterval).
		Run(ctx)
	logger.Info("workers started",
		zap.Duration("snapshot_interval", cfg.SnapshotRefreshInterval),
		zap.Duration("cap_audit_interval", cfg.CapAuditInterval),
	)

	var redisCmd redis.Cmdable
	if deps.redis != nil {
		redisCmd = deps.redis
	}
	router := api.NewRouter(cfg, logger, deps.pool, redisCmd, deps.idempotency, deps.services)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("usage_backend", cfg.UsageBackend))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopSnapshots()
	stopAudit()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

type dependencies struct {
	pool        *pgxpool.Pool
	redis       *redis.Client
	usage       service.UsageStore
	idempotency *idempotency.Store
	services    api.Services
}

func (d *dependencies) close() {
	if d.redis != nil {
		d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// buildDependencies wires storage for the configured usage backend. The memory
// backend runs without Postgres or Redis.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	var (
		rules     service.RuleSource
		directory service.ScopeDirectory
		seeder    service.UsageSeeder
		keys      idempotency.Keys
	)

	if cfg.UsageBackend == domain.UsageBackendMemory {
		ruleStore := memory.NewRuleStore()
		counts, err := memory.LoadSeedFile(ctx, cfg.SeedFile, ruleStore)
		if err != nil {
			return nil, fmt.Errorf("load seed file: %w", err)
		}
		logger.Info("rules seeded from file",
			zap.String("path", cfg.SeedFile),
			zap.Int("customer_scopes", counts.CustomerScopes),
			zap.Int("limit_rules", counts.LimitRules),
			zap.Int("commission_rules", counts.CommissionRules),
			zap.Int("campaigns", counts.Campaigns),
		)
		usageStore := memory.NewUsageStore()
		rules, directory = ruleStore, ruleStore
		deps.usage = usage.NewWriteThrough(usageStore, ruleStore, logger)
		seeder = usageStore
		keys = idempotency.NewMemoryKeys()
		logger.Warn("running with in-memory rules and usage; grants are lost on restart")
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		deps.pool = pool
		if cfg.AutoMigrate {
			if err := repository.EnsureSchema(ctx, pool); err != nil {
				deps.close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}

		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.redis = redisClient

		store := repository.NewStore(pool)
		rules, directory = store, store.Repository()
		deps.usage = store.Repository()
		if cfg.UsageBackend == domain.UsageBackendRedis {
			redisUsage := usage.NewRedisStore(redisClient)
			deps.usage = usage.NewWriteThrough(redisUsage, store.Repository(), logger)
			seeder = redisUsage
		}
		keys = idempotency.NewPostgresKeys(pool)
	}

	var idemCache redis.Cmdable
	if deps.redis != nil {
		idemCache = deps.redis
	}
	deps.idempotency = idempotency.NewStore(idemCache, keys, cfg.IdempotencyTTL)

	snapshots := service.NewSnapshotStore()
	accumulator := service.NewCashbackAccumulator(deps.usage, cfg.GrantMaxAttempts, logger)
	deps.services = api.Services{
		Policy:      service.NewPolicyService(snapshots, service.NewScopeResolver(directory), accumulator, logger),
		Snapshots:   snapshots,
		Loader:      service.NewSnapshotLoader(rules, snapshots, seeder, logger),
		Accumulator: accumulator,
	}
	return deps, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
