// Package app wires configuration into a running ledger: the repository, the
// report cache, the lock and the export sink.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"retailledger/internal/cache"
	"retailledger/internal/config"
	"retailledger/internal/lock"
	"retailledger/internal/report"
	"retailledger/internal/service"
	"retailledger/internal/store"
	"retailledger/internal/store/memory"
	pgstore "retailledger/internal/store/postgres"
	"retailledger/internal/store/sqlite"
)

const lockPrefix = "retailledger:lock:"

// Ledger is a wired service plus everything that must be closed with it.
type Ledger struct {
	Service *service.Service
	Repo    store.Repository
	Driver  string
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (l *Ledger) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenRepository picks postgres, sqlite or the seeded memory store from cfg.
// A configured database that cannot be reached is an error; there is no
// silent fallback to memory.
func OpenRepository(ctx context.Context, cfg config.Config) (store.Repository, error) {
	switch cfg.StoreDriver() {
	case "postgres":
		repo, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.Options{})
		if err != nil {
			return nil, fmt.Errorf("postgres %s: %w", pgstore.Redact(cfg.DatabaseURL), err)
		}
		return repo, nil
	case "sqlite":
		repo, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		return repo, nil
	default:
		return memory.NewSeeded(), nil
	}
}

// Open builds the ledger service. Redis, when configured and reachable, backs
// both the session report cache and the cross-process lock; otherwise the
// service uses in-process locks and no cache.
func Open(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Ledger, error) {
	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ledger := &Ledger{Repo: repo, Driver: cfg.StoreDriver(), closers: []func() error{repo.Close}}
	log.WithField("driver", ledger.Driver).Info("repository ready")

	opts := service.Options{
		Logger:    log,
		ReportTTL: cfg.ReportTTL,
	}
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		reports := cache.NewRedisReportCache(client)
		if err := reports.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using local locks and no report cache")
			_ = client.Close()
		} else {
			opts.Reports = reports
			opts.Locker = lock.NewRedis(client, lockPrefix, cfg.LockTTL)
			ledger.closers = append(ledger.closers, reports.Close)
			log.WithField("addr", cfg.RedisAddr).Info("redis report cache and lock ready")
		}
	}

	ledger.Service = service.New(repo, opts)
	return ledger, nil
}

// OpenSink returns the GCS sink when a bucket is configured, else a directory
// sink. The returned close func is never nil.
func OpenSink(ctx context.Context, cfg config.Config) (report.Sink, func() error, error) {
	if cfg.GCSBucket == "" {
		return report.FileSink{Dir: cfg.ExportDir}, func() error { return nil }, nil
	}
	sink, err := report.NewGCSSink(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink.Close, nil
}
