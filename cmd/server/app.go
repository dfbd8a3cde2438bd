package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/phrazzld/curation-engine/internal/api"
	apiMiddleware "github.com/phrazzld/curation-engine/internal/api/middleware"
	"github.com/phrazzld/curation-engine/internal/config"
	"github.com/phrazzld/curation-engine/internal/events"
	"github.com/phrazzld/curation-engine/internal/platform/amqp"
	"github.com/phrazzld/curation-engine/internal/platform/gemini"
	"github.com/phrazzld/curation-engine/internal/platform/kafka"
	"github.com/phrazzld/curation-engine/internal/platform/metrics"
	"github.com/phrazzld/curation-engine/internal/platform/postgres"
	"github.com/phrazzld/curation-engine/internal/platform/redis"
	"github.com/phrazzld/curation-engine/internal/redact"
	"github.com/phrazzld/curation-engine/internal/service/auth"
	"github.com/phrazzld/curation-engine/internal/task"
	"github.com/phrazzld/curation-engine/internal/workers"
)

// application holds the shared dependencies of a running engine and
// releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	db        *sql.DB
	store     task.TaskStore
	uploads   task.UploadStore
	redis     *goredis.Client
	publisher events.Publisher
	closers   []io.Closer

	registry    *prometheus.Registry
	metrics     *metrics.Engine
	dispatchers []*task.Dispatcher
	scheduler   *task.Scheduler
	router      http.Handler
}

// newApplication opens the configured backends and wires the dispatchers,
// scheduler and router. Nothing is started until Run.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	var err error
	app.store, app.db, err = openTaskStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := app.openUploads(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.openBroker(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	if err := app.setupDispatchers(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.router = api.NewRouter(api.RouterConfig{
		Tasks:   api.NewTaskHandler(app.dispatchers, app.uploads, app.metrics, logger),
		Auth:    apiMiddleware.NewAuthMiddleware(jwtService),
		Logger:  logger,
		Metrics: promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
		Ready:   app.ready,
	})

	logger.Info("application initialized", "dispatchers", len(app.dispatchers))
	return app, nil
}

// openTaskStore returns the configured task store. db is nil for the
// memory store.
func openTaskStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (task.TaskStore, *sql.DB, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory task store; tasks are lost on restart")
		return task.NewMemoryTaskStore(), nil, nil
	}
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewPostgresTaskStore(db), db, nil
}

// openDatabase establishes the Postgres connection pool and verifies it.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established", "url", redact.URL(cfg.URL))
	return db, nil
}

func (app *application) openUploads(ctx context.Context) error {
	uploads, client, err := openUploadStore(ctx, app.config.Uploads, app.logger)
	if err != nil {
		return err
	}
	app.uploads = uploads
	if client != nil {
		app.redis = client
		app.closers = append(app.closers, client)
	}
	return nil
}

// openUploadStore returns the configured upload store. client is nil for
// the memory store.
func openUploadStore(ctx context.Context, cfg config.UploadsConfig, logger *slog.Logger) (task.UploadStore, *goredis.Client, error) {
	if cfg.Driver == "memory" {
		return task.NewMemoryUploadStore(), nil, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect upload store: %w", err)
	}
	logger.Info("upload store connected", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
	return redis.NewUploadStore(client, cfg.TTL, logger), client, nil
}

func (app *application) openBroker(ctx context.Context) error {
	cfg := app.config.Broker
	switch cfg.Driver {
	case "kafka":
		p, err := kafka.Connect(ctx, kafka.ClientConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		}, otel.Tracer("github.com/phrazzld/curation-engine/kafka"), app.logger)
		if err != nil {
			return err
		}
		app.publisher = p
		app.closers = append(app.closers, p)
	case "amqp":
		p, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, app.logger)
		if err != nil {
			return err
		}
		app.publisher = p
		app.closers = append(app.closers, p)
	default:
		app.logger.Warn("using in-process broker; dispatch envelopes are only delivered locally")
		app.publisher = events.NewBus(app.logger)
	}
	app.logger.Info("broker connected", "driver", cfg.Driver)
	return nil
}

func (app *application) setupDispatchers(ctx context.Context) error {
	cfg := app.config
	gateway := events.NewGateway(app.publisher, app.logger)
	subjects := workers.Subjects{
		Scanner: cfg.Broker.Subjects.Scanner,
		Import:  cfg.Broker.Subjects.Import,
		Curator: cfg.Broker.Subjects.Curator,
		Status:  cfg.Broker.Subjects.Status,
	}

	var advisor workers.LicenseAdvisor
	if cfg.LLM.GeminiAPIKey != "" {
		a, err := gemini.NewAdvisor(ctx, app.logger, cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to initialize license advisor: %w", err)
		}
		advisor = a
		app.logger.Info("license advisor initialized", "model", cfg.LLM.ModelName)
	} else {
		app.logger.Warn("no Gemini API key configured; curator tasks have no worker")
	}

	scanners, err := workers.NewScannerRegistry(gateway, subjects)
	if err != nil {
		return err
	}
	imports, err := workers.NewImportRegistry(gateway, subjects, app.uploads)
	if err != nil {
		return err
	}
	curators, err := workers.NewCuratorRegistry(gateway, subjects, advisor)
	if err != nil {
		return err
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)

	app.scheduler, err = task.NewScheduler(app.logger)
	if err != nil {
		return err
	}

	crons := map[task.Kind]string{
		task.KindScanner: cfg.Dispatcher.ScannerCron,
		task.KindImport:  cfg.Dispatcher.ImportCron,
		task.KindCurator: cfg.Dispatcher.CuratorCron,
	}
	for _, registry := range []*task.Registry{scanners, imports, curators} {
		kind := registry.Kind()
		d, err := task.NewDispatcher(
			task.NewQueue(kind, app.store, app.uploads, app.logger),
			registry,
			app.logger,
			task.WithObserver(app.metrics),
		)
		if err != nil {
			return fmt.Errorf("failed to create %s dispatcher: %w", kind, err)
		}
		if err := app.scheduler.Register(d, crons[kind]); err != nil {
			return err
		}
		app.dispatchers = append(app.dispatchers, d)
	}
	return nil
}

// ready reports whether the backends needed to serve requests respond.
func (app *application) ready(ctx context.Context) error {
	if app.db != nil {
		if err := app.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("upload store: %w", err)
		}
	}
	return nil
}

// Run starts the scheduler and serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := app.startHTTPServer(ctx, app.router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops the scheduler and closes every backend that was opened.
func (app *application) cleanup() {
	if app.scheduler != nil {
		if err := app.scheduler.Shutdown(); err != nil {
			app.logger.Error("error stopping scheduler", "error", err)
		}
	}

	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error closing backends", "error", redact.Error(err))
	}

	app.logger.Info("application shutdown completed")
}
