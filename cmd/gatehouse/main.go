// Command gatehouse runs the permission-resolution API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatehouse/pkg/api"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/content"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gatehouse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting gatehouse")

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rbac.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	rbacStore := rbac.NewStore(db)
	seeder := rbac.NewSeeder(rbacStore, logger, metrics)
	if err := seeder.Seed(ctx); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	cache, redisCache, err := buildCache(cfg, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	users := auth.NewUserStore(db)
	sessions := auth.NewSessionVerifier(db)
	posts := content.NewPostStore(db)
	resolver := rbac.NewResolver(rbacStore, users, cache, logger, metrics)
	guard := rbac.NewGuard(resolver, logger, metrics)

	policy := rbac.NewPolicyTable(guard, logger, metrics)
	if cfg.Policy.File != "" {
		if err := policy.LoadFile(cfg.Policy.File); err != nil {
			return err
		}
		if err := policy.Watch(ctx, cfg.Policy.File); err != nil {
			return err
		}
	}

	contextBuilder := middleware.NewContextBuilder(sessions, resolver, logger, metrics)
	auditor := audit.NewStore(db)
	server := api.NewServer(users, posts, rbacStore, resolver, policy, auditor, logger, metrics, cfg.Policy.DefaultRole)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Routes(contextBuilder),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRoutes(db, redisCache, registry),
	}

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	sm.RegisterServer(apiServer)
	sm.RegisterServer(healthServer)
	sm.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return nil
	})

	startSessionPurge(cfg, sessions, logger, sm)
	if metrics != nil {
		go reportDBStats(ctx, db, metrics)
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	g.Go(sm.WaitForShutdown)

	return g.Wait()
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// buildCache returns the permission cache: Redis when configured, otherwise
// an in-process LRU. The redis cache is also returned separately so the
// health checker can probe it.
func buildCache(cfg *config.Config, logger *observability.Logger) (rbac.PermissionCache, *rbac.RedisCache, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("no Redis configured, using in-process permission cache")
		return rbac.NewLRUCache(10000, cfg.Redis.CacheTTL), nil, nil
	}
	redisCache, err := rbac.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("addr", cfg.Redis.Addr).Info("using Redis permission cache")
	return redisCache, redisCache, nil
}

func healthRoutes(db *sql.DB, redisCache *rbac.RedisCache, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	var checker *observability.HealthChecker
	if redisCache != nil {
		checker = observability.NewHealthChecker(db, redisCache.Client())
	} else {
		checker = observability.NewHealthChecker(db, nil)
	}
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if registry != nil {
		mux.Handle("/metrics", observability.Handler(registry))
	}
	return mux
}

func startSessionPurge(cfg *config.Config, sessions *auth.SessionVerifier, logger *observability.Logger, sm *observability.ShutdownManager) {
	if cfg.Observability.SessionPurgeSchedule == "" {
		return
	}
	c := cron.New()
	_, err := c.AddFunc(cfg.Observability.SessionPurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		purged, err := sessions.PurgeExpired(ctx)
		if err != nil {
			logger.WithError(err).Warn("session purge failed")
			return
		}
		if purged > 0 {
			logger.WithField("purged", purged).Info("purged expired sessions")
		}
	})
	if err != nil {
		logger.WithError(err).Warn("invalid session purge schedule, job disabled")
		return
	}
	c.Start()
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		stopped := c.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
		return nil
	})
	logger.WithField("schedule", cfg.Observability.SessionPurgeSchedule).Info("session purge job scheduled")
}

func reportDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
