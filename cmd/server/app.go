package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/phrazzld/duffel/internal/api"
	"github.com/phrazzld/duffel/internal/config"
	"github.com/phrazzld/duffel/internal/gateway"
	"github.com/phrazzld/duffel/internal/platform/logger"

	_ "github.com/phrazzld/duffel/internal/platform/memory"
	_ "github.com/phrazzld/duffel/internal/platform/mongo"
	_ "github.com/phrazzld/duffel/internal/platform/postgres"
	_ "github.com/phrazzld/duffel/internal/platform/redis"
	_ "github.com/phrazzld/duffel/internal/platform/sqlite"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// application holds the wired request path and the pieces run needs.
type application struct {
	cfg      *config.Config
	cfgStore *config.Store
	logger   *slog.Logger
	handler  http.Handler
}

// buildApplication wires the process in dependency order: the logger
// first (the store needs one to exist), then the runtime store, then
// the reactive bindings for logging, backend and CORS. Each binding
// runs its rebuild once here; a failure aborts startup, because there
// is no previous object to fall back to yet.
func buildApplication(flags *pflag.FlagSet) (*application, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logs := logger.NewBuilder(cfg.Log)
	log := logs.Logger()
	slog.SetDefault(log)

	cfgStore := config.NewStore(cfg.ConfigFile, log)
	logs.Attach(cfgStore)
	if err := cfgStore.Load(); err != nil {
		return nil, fmt.Errorf("loading runtime config file: %w", err)
	}

	binder := config.NewBinder(cfgStore, log)
	if err := binder.Bind("log", logs.Keys(), logs.Rebuild); err != nil {
		return nil, err
	}

	selector := gateway.NewBackendSelector(cfgStore, cfg.Store, log)
	if err := binder.Bind("backend", selector.Keys(), selector.Rebuild); err != nil {
		return nil, err
	}

	cors := gateway.NewCORSBuilder(cfgStore)
	if err := binder.Bind("cors", cors.Keys(), cors.Rebuild); err != nil {
		return nil, err
	}

	gate := gateway.NewAccessGate(cfg.Auth)
	router := api.NewRouter(api.RouterConfig{
		Factories: selector,
		Config:    cfgStore,
		Logger:    log,
	})

	log.Info("Gateway assembled",
		"auth_enabled", gate.Enabled(),
		"config_file", cfgStore.Path())

	return &application{
		cfg:      cfg,
		cfgStore: cfgStore,
		logger:   log,
		handler:  gateway.NewPipeline(gate, cors, router),
	}, nil
}

// run serves HTTP until SIGINT/SIGTERM or context cancellation, then
// drains in-flight requests before returning.
func (app *application) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.cfgStore.Watch(ctx); err != nil {
		app.logger.Warn("Config file watching disabled", "error", err)
	}

	addr := net.JoinHostPort(app.cfg.Server.Host, strconv.Itoa(app.cfg.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("Server listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	select {
	case sig := <-shutdownCh:
		app.logger.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		app.logger.Info("Shutting down", "reason", "context canceled")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	app.logger.Info("Server stopped")
	return nil
}
