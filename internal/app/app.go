package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/reyrey-auth/internal/auth"
	"github.com/florianilch/reyrey-auth/internal/browser"
	"github.com/florianilch/reyrey-auth/internal/tokencheck"
	"github.com/florianilch/reyrey-auth/internal/tokenserver"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

// Option configures an App.
type Option func(*options)

type options struct {
	credentials browser.CredentialsFunc
	launcher    browser.Launcher
}

// WithCredentials overrides where login credentials come from.
func WithCredentials(fn browser.CredentialsFunc) Option {
	return func(o *options) {
		o.credentials = fn
	}
}

// WithLauncher overrides how browsers are started.
func WithLauncher(launcher browser.Launcher) Option {
	return func(o *options) {
		o.launcher = launcher
	}
}

// App wires the token stores, the validity checker, the browser login and
// the orchestrator together.
type App struct {
	cfg      *Config
	registry *tokenstore.Registry
	metrics  *prometheus.Registry
	service  *auth.Service
}

// New creates a new App instance. No store is opened until first use.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{
		credentials: browser.EnvCredentials(cfg.EnvFile),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.launcher == nil {
		launcherOpts := []browser.ChromeOption{browser.WithHeadless(cfg.RunHeadless())}
		if cfg.Login.ExecPath != "" {
			launcherOpts = append(launcherOpts, browser.WithExecPath(cfg.Login.ExecPath))
		}
		o.launcher = browser.NewChromeLauncher(launcherOpts...)
	}

	registry, err := cfg.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store registry: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := auth.NewMetrics(promRegistry)

	checker := tokencheck.New(
		tokencheck.WithBaseURL(cfg.CheckURL),
		tokencheck.WithObserver(metrics.ObserveCheck),
	)

	flow := browser.NewFlow(o.launcher,
		browser.WithCredentials(o.credentials),
		browser.WithScreenshotDir(cfg.LogDir()),
	)

	service, err := auth.NewService(registry, checker, flow,
		auth.WithDefaultOrder(cfg.Providers),
		auth.WithLoginTimeout(cfg.Login.Timeout),
		auth.WithDomain(flow.Domain()),
		auth.WithMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	return &App{
		cfg:      cfg,
		registry: registry,
		metrics:  promRegistry,
		service:  service,
	}, nil
}

// Service returns the token orchestrator.
func (a *App) Service() *auth.Service {
	return a.service
}

// Close releases opened token stores.
func (a *App) Close() error {
	return a.registry.Close()
}

// Serve runs the token API server and blocks until ctx is cancelled or the
// server fails. Uses errgroup for runtime error monitoring and shutdown
// function collection for coordinated cleanup.
func (a *App) Serve(ctx context.Context) error {
	server, err := tokenserver.New(a.service, a.cfg.Providers, tokenserver.WithGatherer(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to create token server: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting token server", "address", a.cfg.Server.Address)
	serverErrCh, err := server.Start(gCtx, a.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("token server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "token server runtime error", "error", err)
				return fmt.Errorf("token server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", server.Addr())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
