// Package server wires configuration, storage, services and listeners into
// a runnable application and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/config"
	"github.com/dmitrijs2005/gophdrop/internal/server/httpapi"
	"github.com/dmitrijs2005/gophdrop/internal/server/lock"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrop/internal/server/services"
	"github.com/dmitrijs2005/gophdrop/internal/server/storage"
	"github.com/dmitrijs2005/gophdrop/internal/server/sweeper"

	gs "github.com/dmitrijs2005/gophdrop/internal/server/grpc"
)

const (
	sweepLockKey = "gophdrop:sweep"
	sweepLockTTL = 15 * time.Minute
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	closers []io.Closer

	http    *httpapi.Server
	health  *gs.HealthServer
	sweeper *sweeper.Sweeper
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db, closers: []io.Closer{db}}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := openStore(ctx, c)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	tx := dbx.NewSQLTransactor(db, nil)

	fileService := services.NewFileService(tx, rm, store, c, logger)
	shareService := services.NewShareService(tx, rm, logger)
	userService := services.NewUserService(tx, rm, c, logger)

	handler := httpapi.NewHandler(fileService, shareService, userService, db, c.MaxUploadSize, logger)
	app.http = httpapi.NewServer(c.HTTPAddr, handler.Routes(), logger)

	if c.HealthAddr != "" {
		app.health = gs.NewHealthServer(c.HealthAddr, db, logger)
	}

	app.sweeper = sweeper.New(tx, rm, store, app.newLocker(), c, logger)

	return app, nil
}

// openStore builds the blob store selected by StorageBackend.
func openStore(ctx context.Context, c *config.Config) (storage.Store, error) {
	switch c.StorageBackend {
	case config.StorageFS:
		return storage.NewFSStore(c.DataDir)
	case config.StorageS3:
		s, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// newLocker returns a Redis lock when RedisAddr is set, otherwise a no-op
// lock for single-replica deployments.
func (app *App) newLocker() lock.Locker {
	if app.config.RedisAddr == "" {
		return lock.Noop{}
	}
	rdb := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	app.closers = append(app.closers, rdb)
	return lock.NewRedis(rdb, sweepLockKey, sweepLockTTL)
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

// serve runs a blocking listener and cancels the whole app if it fails.
func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "listener failed", "listener", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend)

	app.initSignalHandler(cancelFunc)

	app.sweeper.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "http", app.http.Run)
	}()

	if app.health != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.serve(ctx, cancelFunc, "grpc_health", app.health.Run)
		}()
	}

	wg.Wait()

	app.sweeper.Stop()
	app.close()

	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}
