// Command seed loads places from a CSV file into the configured database.
// Rows are inserted one at a time and are not deduplicated, so re-running an
// import after a partial failure creates duplicates of the rows already
// written; the failure log names how many rows made it.
//
// With CACHE_ENABLED the running servers' cached searches are retired on every
// insert, and with EVENTS_ENABLED each insert is published to Kafka like any
// other write.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/placefinder/internal/cache/redisstore"
	"github.com/mohammed-shakir/placefinder/internal/cache/resultcache"
	"github.com/mohammed-shakir/placefinder/internal/core/config"
	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/events"
	"github.com/mohammed-shakir/placefinder/internal/logger"
	"github.com/mohammed-shakir/placefinder/internal/places"
	"github.com/mohammed-shakir/placefinder/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	file := flag.String("file", "-", "CSV file with a header row (- for stdin)")
	dryRun := flag.Bool("dry-run", false, "validate rows without writing")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Instance:  cfg.InstanceID,
		Component: "seed",
	}, os.Stderr)
	log := logger.NewSlog(&zl)

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Error("open input", "file", *file, "err", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	rows, err := parseRows(in)
	if err != nil {
		log.Error("parse input", "err", err)
		return 1
	}
	for i, r := range rows {
		if err := places.ValidatePlace(r.Place); err != nil {
			log.Error("invalid row", "line", r.Line, "index", i, "err", err)
			return 1
		}
	}
	if *dryRun {
		fmt.Printf("%d rows ok\n", len(rows))
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := store.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Error("open store", "err", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	svc, closeDeps, err := buildService(ctx, cfg, st, log)
	if err != nil {
		log.Error("service setup", "err", err)
		return 1
	}
	defer closeDeps()

	inserted, err := importRows(ctx, svc, rows, log)
	if err != nil {
		return 1
	}
	log.Info("seed complete", "inserted", inserted, "driver", cfg.DBDriver)
	return 0
}

// buildService wires the optional result cache and event publisher the same
// way placesd does. The returned func closes them; the publisher flushes its
// queue on close.
func buildService(ctx context.Context, cfg config.Config, st places.Store, log *slog.Logger) (*places.Service, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := []places.Option{places.WithQueryTimeout(cfg.QueryTimeout)}
	if cfg.CacheEnabled {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, func() {}, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		closers = append(closers, func() { _ = cli.Close() })
		opts = append(opts, places.WithCache(resultcache.New(cli, log, cfg.CacheTTL, cfg.CacheOpTimeout)))
	}
	if cfg.EventsEnabled {
		pub, err := events.Dial(events.FromEnv(), cfg.InstanceID, log)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("kafka producer: %w", err)
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				log.Warn("kafka producer close", "err", err)
			}
		})
		opts = append(opts, places.WithNotifier(pub))
	}
	return places.NewService(log, st, opts...), closeAll, nil
}

type creator interface {
	Create(ctx context.Context, p model.Place) (model.Place, error)
}

// importRows stops at the first failure and returns how many rows were
// written before it.
func importRows(ctx context.Context, svc creator, rows []row, log *slog.Logger) (int, error) {
	inserted := 0
	for _, r := range rows {
		p, err := svc.Create(ctx, r.Place)
		if err != nil {
			log.Error("create place, import stopped",
				"line", r.Line, "name", r.Place.Name, "err", err,
				"inserted", inserted, "remaining", len(rows)-inserted)
			return inserted, fmt.Errorf("line %d: %w", r.Line, err)
		}
		inserted++
		log.Debug("created", "id", p.ID, "name", p.Name, "line", r.Line)
	}
	return inserted, nil
}
