// Package server wires configuration, storage backends and services into the
// docvault HTTP API and runs it until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/events"
	"github.com/dmitrijs2005/docvault/internal/server/qa"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/docvault/internal/server/rest"
	"github.com/dmitrijs2005/docvault/internal/server/services"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	rdb       *redis.Client
	publisher events.Publisher
	handler   http.Handler
}

// seams for tests
var (
	openDB     = repomanager.Open
	newManager = repomanager.NewPostgresRepositoryManager
	newStore   = storage.New
)

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	m := newManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newStore(ctx, c)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	var (
		revoker auth.Revoker
		cache   qa.ContentCache
	)
	if c.RedisAddr != "" {
		app.rdb = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		if err := app.rdb.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		revoker = auth.NewRedisRevoker(app.rdb)
		cache = qa.NewRedisCache(app.rdb, c.QACacheTTL)
	} else {
		logger.Warn(ctx, "redis not configured, using in-process revocation and cache")
		revoker = auth.NewMemoryRevoker()
		cache = qa.NewMemoryCache(c.QACacheTTL, c.QACacheSize)
	}

	if len(c.KafkaBrokers) > 0 {
		app.publisher = events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
	} else {
		app.publisher = events.Noop{}
	}

	loader := qa.NewContentLoader(store, cache)
	var limiter *rest.RateLimiter
	if c.RateLimitRPS > 0 {
		limiter = rest.NewRateLimiter(c.RateLimitRPS, c.RateLimitBurst, 0)
	}

	app.handler = rest.NewRouter(rest.Deps{
		Users:         services.NewUserService(db, m, revoker, logger, c),
		Documents:     services.NewDocumentService(db, m, store, app.publisher, loader, logger, c),
		Permissions:   services.NewPermissionService(db, m, logger),
		Ingestion:     services.NewIngestionService(db, m, app.publisher, logger),
		QA:            services.NewQAService(db, m, loader, logger),
		Logger:        logger,
		Limiter:       limiter,
		CORSOrigins:   c.CORSOrigins,
		MaxUploadSize: c.MaxUploadSize,
		Health:        db.PingContext,
	})

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewHTTPServer(rest.ServerOptions{
		Address:         app.config.HTTPAddr,
		ReadTimeout:     app.config.ReadTimeout,
		WriteTimeout:    app.config.WriteTimeout,
		IdleTimeout:     app.config.IdleTimeout,
		ShutdownTimeout: app.config.ShutdownTimeout,
	}, app.handler, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases the database, Redis and Kafka connections.
func (app *App) Close() {
	var errs []error
	if app.publisher != nil {
		errs = append(errs, app.publisher.Close())
	}
	if app.rdb != nil {
		errs = append(errs, app.rdb.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Warn(context.Background(), "close error", "error", err)
	}
}
