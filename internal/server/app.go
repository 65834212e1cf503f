// Package server initializes and runs the workpass server: it wires the
// storage backend, the auth service and the HTTP API, and handles graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/workpass-app/workpass/internal/apiclient/dingtalk"
	"github.com/workpass-app/workpass/internal/apiclient/wechat"
	"github.com/workpass-app/workpass/internal/logging"
	"github.com/workpass-app/workpass/internal/server/auth"
	"github.com/workpass-app/workpass/internal/server/config"
	"github.com/workpass-app/workpass/internal/server/httpapi"
	"github.com/workpass-app/workpass/internal/server/repositories/refreshtokens"
	"github.com/workpass-app/workpass/internal/server/repositories/repomanager"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	manager repomanager.RepositoryManager
	rdb     *redis.Client
	server  *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	var manager repomanager.RepositoryManager
	var err error
	switch cfg.DatabaseDriver {
	case "postgres":
		manager, err = repomanager.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	case "sqlite":
		manager, err = repomanager.NewSQLiteRepositoryManager(ctx, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	var rdb *redis.Client
	var tokenStore auth.RefreshTokenStore = manager.RefreshTokens()
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		tokenStore = refreshtokens.NewRedisRepository(rdb, cfg.RefreshTokenValidityDuration)
		logger.Info(ctx, "refresh tokens stored in redis", "addr", cfg.RedisAddr)
	}

	svc, err := auth.NewService(
		manager.Users(),
		tokenStore,
		cfg.CipherKey,
		cfg.TokenValidityDuration,
		cfg.RefreshTokenValidityDuration,
		logger,
	)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("auth init error: %w", err)
	}

	ddCfg, err := dingtalk.ConfigFromEnv()
	if err != nil {
		logger.Warn(ctx, "dingtalk login disabled", "error", err)
	}
	wxCfg, err := wechat.ConfigFromEnv()
	if err != nil {
		logger.Warn(ctx, "wechat login disabled", "error", err)
	}

	api := httpapi.NewServer(
		svc,
		manager.Users(),
		dingtalk.New(ddCfg, logger),
		wechat.New(wxCfg, logger),
		cfg.RefreshTokenValidityDuration,
		cfg.CORSAllowedOrigins,
		logger,
	)

	return &App{
		config:  cfg,
		logger:  logger,
		manager: manager,
		rdb:     rdb,
		server: &http.Server{
			Addr:    cfg.EndpointAddr,
			Handler: api.Handler(),
		},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)
	app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "server failed", "error", err)
		}
	case <-ctx.Done():
		app.logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "shutdown error", "error", err)
		}
	}

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "close error", "error", err)
	}
}

func (app *App) Close() error {
	var errs []error
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := app.manager.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
