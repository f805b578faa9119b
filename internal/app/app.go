package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/equilix-backend/internal/config"
	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/httpapi"
	"github.com/yungbote/equilix-backend/internal/observability"
	"github.com/yungbote/equilix-backend/internal/platform/logger"
	"github.com/yungbote/equilix-backend/internal/router"
)

type App struct {
	Log      *logger.Logger
	Config   *config.Config
	Registry *flow.Registry
	Metrics  *observability.Metrics
	Repos    Repos

	clients         Clients
	shutdownTracing func(context.Context) error
}

// New loads configuration and wires everything an invocation needs. The
// HTTP server and its rate limiter are only built by Serve.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Config: cfg}
	a.shutdownTracing = observability.InitTracing(ctx, log, cfg.Tracing, cfg.Env)

	rt, err := router.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init model router: %w", err)
	}

	a.clients, err = wireClients(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Repos = wireRepos(a.clients.DB, log)
	if cfg.Metrics.Enabled {
		a.Metrics = observability.NewMetrics()
	}

	a.Registry, err = wireRegistry(rt, log, a.Metrics, a.Repos)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("equilix ready", "models", rt.ListModels(), "default_model", rt.DefaultModel(), "flows", a.Registry.Names())
	return a, nil
}

// Serve runs the HTTP API until ctx is canceled, then drains in-flight
// requests for up to the configured shutdown timeout.
func (a *App) Serve(ctx context.Context) error {
	limiter, err := wireLimiter(ctx, a.Config.RateLimit, &a.clients, a.Log)
	if err != nil {
		return err
	}
	srv := httpapi.NewServer(httpapi.Deps{
		Config:      a.Config,
		Log:         a.Log,
		Registry:    a.Registry,
		Limiter:     limiter,
		Metrics:     a.Metrics,
		Invocations: a.Repos.Invocations,
		Ready:       a.clients.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.clients.Close(a.Log)
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("tracing shutdown failed", "error", err)
		}
		cancel()
	}
	a.Log.Sync()
}
