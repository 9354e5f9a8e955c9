// Package server assembles the file pipeline: database, object store,
// worker pool, metrics endpoint and the operator console, and shuts them
// down in order.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/outofsight/internal/archive"
	"github.com/dmitrijs2005/outofsight/internal/console"
	"github.com/dmitrijs2005/outofsight/internal/ledger"
	"github.com/dmitrijs2005/outofsight/internal/logging"
	"github.com/dmitrijs2005/outofsight/internal/metrics"
	"github.com/dmitrijs2005/outofsight/internal/objectstore"
	"github.com/dmitrijs2005/outofsight/internal/server/config"
	"github.com/dmitrijs2005/outofsight/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/outofsight/internal/server/services"
	"github.com/dmitrijs2005/outofsight/internal/worker"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	pool      *worker.Pool
	registry  *prometheus.Registry
	transfers *services.TransferService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(ctx, c, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, db *sql.DB, logger logging.Logger) (*App, error) {
	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if err := rm.Statuses(db).SeedCatalog(ctx, ledger.Catalog()); err != nil {
		return nil, fmt.Errorf("status catalog: %w", err)
	}

	api, err := objectstore.NewS3API(ctx, objectstore.Options{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		UsePathStyle: c.S3UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	store := objectstore.New(api,
		objectstore.WithChunkSize(c.ChunkSize),
		objectstore.WithEmptyObjects(c.AllowEmptyObjects),
		objectstore.WithLogger(logger),
	)
	if err := store.EnsureBucket(ctx, c.S3Bucket); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool := worker.New(ctx, c.Workers, logger)

	ts := services.NewTransferService(db, rm, c, archive.New(zstd.SpeedDefault), store,
		services.WithPool(pool),
		services.WithMetrics(reg),
		services.WithLogger(logger),
	)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		pool:      pool,
		registry:  reg,
		transfers: ts,
	}, nil
}

// newMetricsServer serves the registry on /metrics.
func newMetricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run drives the console on in/out until it exits or a termination signal
// arrives, then drains the worker pool and closes the database.
func (app *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	var srv *http.Server
	if app.config.MetricsAddr != "" {
		srv = newMetricsServer(app.config.MetricsAddr, app.registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error(ctx, "metrics server failed", "err", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		console.New(app.transfers, app.config.SecretKey, in, out, app.logger).Run(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		app.logger.Info(ctx, "signal received")
	}

	return app.shutdown(srv)
}

func (app *App) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	app.logger.Info(ctx, "worker pool stopped", "failed_jobs", app.pool.Failed())

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}
	return errors.Join(errs...)
}
