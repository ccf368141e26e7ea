// Command inductiond runs the induction core as a long-lived service:
// the Command Surface's HTTP binding, the autonomous status loop, and
// the liveness/readiness probes fronting both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/metrofleet/induction/internal/api"
	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/cache"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/command"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/daemon"
	"github.com/metrofleet/induction/internal/decision"
	"github.com/metrofleet/induction/internal/health"
	xlog "github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/optimizer"
	"github.com/metrofleet/induction/internal/ratelimit"
	"github.com/metrofleet/induction/internal/resilience"
	"github.com/metrofleet/induction/internal/simulator"
	"github.com/metrofleet/induction/internal/statusloop"
	"github.com/metrofleet/induction/internal/store"
	"github.com/metrofleet/induction/internal/store/auditlog"
	"github.com/metrofleet/induction/internal/store/sqlstore"
	"github.com/metrofleet/induction/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("inductiond %s (commit %s)\n", version, commit)
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: "info", Service: "induction", Version: version})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(strings.TrimSpace(*configPath))
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	xlog.Configure(xlog.Config{Level: cfg.LogLevel, Service: "induction", Version: version})
	logger = xlog.WithComponent("main")

	tp, err := telemetry.NewProvider(ctx, telemetryConfig(version))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown error")
		}
	}()

	clk := clock.System{}
	eventBus := bus.New(cfg.Bus, clk)

	backend, closeBackend, err := buildBackend(cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open fleet store backend")
	}

	cacheImpl, closeCache := buildCache(cfg.Store, logger)
	breaker := resilience.New("fleet_store", 5, 10, time.Minute, 30*time.Second, resilience.WithClock(clk))
	fleetStore := store.NewInstrumented(backend, cacheImpl, breaker, clk, cfg.Store.CacheTTL)

	engine := decision.New(cfg.Engine, eventBus, clk)
	opt := optimizer.New(cfg.Optimizer, optimizer.DefaultObjectives(), eventBus, clk)
	sim := simulator.New(engine, opt)
	loop := statusloop.New(cfg.Status, fleetStore, eventBus, clk, cfg.Optimizer.Seed)

	cmdSvc := command.New(fleetStore, engine, opt, sim, loop, eventBus, clk)

	limiter := ratelimit.New(ratelimit.DefaultConfig())

	healthMgr := health.NewManager(version)
	healthMgr.RegisterChecker(health.NewStoreChecker(func(probeCtx context.Context) error {
		_, err := fleetStore.ActiveTrainsets(probeCtx)
		return err
	}))
	healthMgr.RegisterChecker(health.NewBusChecker(eventBus, 0.8))
	healthMgr.RegisterChecker(health.NewStatusLoopChecker(loop.LastSweptAt, 2*cfg.Status.SweepInterval))

	apiServer := api.New(cfg.API, cmdSvc, limiter, healthMgr)

	workers := []daemon.Worker{
		{Name: "status-loop", Run: loop.Run},
		{Name: "metrics", Run: metricsWorker(metricsListenAddr(), logger)},
	}

	mgr := daemon.NewManager(apiServer, workers, 30*time.Second, logger)
	mgr.RegisterShutdownHook("fleet_store", func(shutdownCtx context.Context) error {
		return closeBackend()
	})
	mgr.RegisterShutdownHook("snapshot_cache", func(shutdownCtx context.Context) error {
		closeCache()
		return nil
	})

	logger.Info().Str("listen", cfg.API.ListenAddr).Msg("induction core starting")
	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("induction core exited with error")
	}
	logger.Info().Msg("induction core stopped cleanly")
}

// buildBackend opens the relational Fleet Store Adapter backend
// (SQLite for entity data, badger for the decision/run audit trail)
// and returns a close function releasing both.
func buildBackend(cfg config.StoreConfig, logger zerolog.Logger) (store.Store, func() error, error) {
	audit, err := auditlog.Open(cfg.AuditLogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}

	backend, err := sqlstore.Open(cfg.SQLitePath, audit, sqlstore.DefaultConnConfig())
	if err != nil {
		_ = audit.Close()
		return nil, nil, fmt.Errorf("open sqlstore: %w", err)
	}

	logger.Info().Str("sqlite_path", cfg.SQLitePath).Str("audit_log_path", cfg.AuditLogPath).Msg("fleet store backend opened")

	closeFn := func() error {
		var errs []error
		if err := backend.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := audit.Close(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("close backend: %v", errs)
		}
		return nil
	}
	return backend, closeFn, nil
}

// buildCache returns the snapshot cache the Fleet Store Adapter reads
// through: Redis when cfg.RedisAddr is set, so the cache survives
// restarts and is shared across replicas, otherwise an in-memory cache
// local to this process.
func buildCache(cfg config.StoreConfig, logger zerolog.Logger) (cache.Cache, func()) {
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		redisCache, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisAddr}, logger)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis cache, falling back to in-memory")
		} else {
			return redisCache, func() { _ = redisCache.Close() }
		}
	}
	mem := cache.NewMemory(time.Minute)
	return mem, mem.Stop
}

func telemetryConfig(serviceVersion string) telemetry.Config {
	endpoint := strings.TrimSpace(os.Getenv("INDUCTION_OTLP_ENDPOINT"))
	return telemetry.Config{
		Enabled:        endpoint != "",
		ServiceName:    "induction-core",
		ServiceVersion: serviceVersion,
		Environment:    envOrDefault("INDUCTION_ENVIRONMENT", "development"),
		Endpoint:       endpoint,
		SamplingRate:   1.0,
	}
}

func metricsListenAddr() string {
	return envOrDefault("INDUCTION_METRICS_LISTEN_ADDR", ":9090")
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// metricsWorker serves Prometheus metrics on addr until ctx is
// cancelled, following the same start-then-drain-on-cancel shape as
// every other daemon.Worker.
func metricsWorker(addr string, logger zerolog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				return
			}
			errCh <- nil
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	}
}
