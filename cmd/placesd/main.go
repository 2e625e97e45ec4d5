package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/placefinder/internal/auth"
	"github.com/mohammed-shakir/placefinder/internal/cache/redisstore"
	"github.com/mohammed-shakir/placefinder/internal/cache/resultcache"
	"github.com/mohammed-shakir/placefinder/internal/core/config"
	"github.com/mohammed-shakir/placefinder/internal/core/health"
	"github.com/mohammed-shakir/placefinder/internal/core/observability"
	"github.com/mohammed-shakir/placefinder/internal/core/server"
	"github.com/mohammed-shakir/placefinder/internal/events"
	"github.com/mohammed-shakir/placefinder/internal/events/kafkaconsumer"
	"github.com/mohammed-shakir/placefinder/internal/logger"
	"github.com/mohammed-shakir/placefinder/internal/metrics"
	"github.com/mohammed-shakir/placefinder/internal/places"
	"github.com/mohammed-shakir/placefinder/internal/store"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is fine
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Instance:  cfg.InstanceID,
		Component: "placesd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsProvider *metrics.Provider
	if cfg.MetricsEnabled {
		metricsProvider = metrics.New(metrics.Config{Addr: cfg.MetricsAddr, Path: cfg.MetricsPath})
	}
	observability.ExposeBuildInfo(observability.BuildInfo{
		Version:   Version,
		Revision:  os.Getenv("BUILD_REVISION"),
		Branch:    os.Getenv("BUILD_BRANCH"),
		BuildDate: os.Getenv("BUILD_DATE"),
	})

	appLog.Info("starting placesd",
		"addr", cfg.Addr,
		"version", Version,
		"db_driver", cfg.DBDriver,
		"cache", cfg.CacheEnabled,
		"events", cfg.EventsEnabled,
		"admin", cfg.AdminEnabled())

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	st, err := store.Open(openCtx, cfg.DBDriver, cfg.DatabaseURL)
	cancel()
	if err != nil {
		appLog.Error("open store failed", "err", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	ready := map[string]health.Check{"db": st.Ping}
	opts := []places.Option{
		places.WithBounds(places.Bounds{Min: cfg.RadiusMin, Max: cfg.RadiusMax, Default: cfg.RadiusDefault}),
		places.WithQueryTimeout(cfg.QueryTimeout),
	}

	var rc *resultcache.Cache
	if cfg.CacheEnabled {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis unavailable", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = cli.Close() }()
		rc = resultcache.New(cli, appLog, cfg.CacheTTL, cfg.CacheOpTimeout)
		opts = append(opts, places.WithCache(rc))
		ready["redis"] = cli.Ping
	}

	var (
		evCfg     events.Config
		publisher *events.Publisher
	)
	if cfg.EventsEnabled {
		evCfg = events.FromEnv()
		publisher, err = events.Dial(evCfg, cfg.InstanceID, appLog)
		if err != nil {
			appLog.Error("kafka producer failed", "brokers", evCfg.Brokers, "err", err)
			return 1
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				appLog.Warn("kafka producer close", "err", err)
			}
		}()
		opts = append(opts, places.WithNotifier(publisher))
	}

	svc := places.NewService(appLog, st, opts...)

	var authz auth.Authorizer
	if cfg.AdminEnabled() {
		j, err := auth.NewJWT(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		if err != nil {
			appLog.Error("admin auth setup failed", "err", err)
			return 1
		}
		authz = j
	} else {
		appLog.Warn("JWT_SECRET not set, admin routes disabled")
	}

	handler := server.NewHandler(server.Deps{
		Logger: appLog,
		Places: svc,
		Auth:   authz,
		Ready:  ready,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg, appLog, handler) })

	// remote writes only matter when there is a local cache to retire
	if publisher != nil && rc != nil {
		cons := kafkaconsumer.New(evCfg, appLog, rc, cfg.InstanceID)
		g.Go(func() error { return cons.Start(gctx) })
	}

	if metricsProvider != nil {
		g.Go(func() error { return metricsProvider.Serve(gctx, appLog) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("placesd exited with error", "err", err)
		return 1
	}
	appLog.Info("placesd stopped")
	return 0
}
