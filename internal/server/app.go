// Package server wires the sync server together: configuration, logging,
// PostgreSQL, object storage and the REST API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/dmitrijs2005/journalkeeper/internal/server/config"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/journalkeeper/internal/server/rest"
	"github.com/dmitrijs2005/journalkeeper/internal/server/services"
	"github.com/dmitrijs2005/journalkeeper/internal/server/storage"
)

// tokenPurgeInterval is how often expired refresh tokens are removed.
const tokenPurgeInterval = time.Hour

type tokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config *config.Config
	logger logging.Logger
	zap    *logging.ZapLogger
	db     *sql.DB
	purger tokenPurger
	server runner
}

func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	zl, err := newZapLogger(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewZapLogger(zl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db connect error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	presigner, err := storage.NewS3Presigner(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	us := services.NewUserService(db, rm, c)
	es := services.NewEntryService(db, rm)
	ms := services.NewMediaService(db, rm, presigner, c)

	srv := rest.NewHTTPServer(c.HTTPAddr, logger, us, es, ms, c.SecretKey, rest.Options{
		AuthPerMinute:   c.AuthRateLimitPerMinute,
		ShutdownTimeout: c.ShutdownTimeout,
	})

	return &App{config: c, logger: logger, zap: logger, db: db, purger: us, server: srv}, nil
}

// purgeTokens drops expired refresh tokens every interval until ctx ends.
func (app *App) purgeTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.purger.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Warn(ctx, "purging refresh tokens failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged expired refresh tokens", "count", n)
			}
		}
	}
}

// Run serves until ctx is cancelled or the server fails, then releases the
// database and flushes the log.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
		}
		cancelFunc()
	}()
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx, tokenPurgeInterval)
	}()

	wg.Wait()

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(context.Background(), "closing database", "error", err)
		}
	}
	app.logger.Info(context.Background(), "Stopped")
	if app.zap != nil {
		_ = app.zap.Sync()
	}
	return runErr
}
