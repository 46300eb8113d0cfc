//go:build linux

// Package app wires configuration, logging, the credential store and the
// reactor into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/searchktools/reactor-server/config"
	"github.com/searchktools/reactor-server/core"
	"github.com/searchktools/reactor-server/core/observability"
	"github.com/searchktools/reactor-server/core/pools"
	"github.com/searchktools/reactor-server/logging"
	"github.com/searchktools/reactor-server/store"
)

// App is the application instance
type App struct {
	cfg     *config.Config
	manager *config.Manager
	file    string

	log      *logging.Logger
	store    store.Store
	registry *prometheus.Registry
	metrics  *observability.Metrics
	monitor  *observability.Monitor
	engine   *core.Engine
	admin    *admin
}

// Option overrides a collaborator New would otherwise build from the config
type Option func(*App)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithStore sets the credential store; App closes it on exit
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithConfigFile watches file through m and applies log.level and
// metrics.monitor changes while running.
func WithConfigFile(file string, m *config.Manager) Option {
	return func(a *App) {
		a.file = file
		a.manager = m
	}
}

// New builds the application from cfg. ctx bounds opening the store.
func New(ctx context.Context, cfg *config.Config, deps ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, dep := range deps {
		dep(a)
	}

	if a.log == nil {
		l, err := logging.New(logging.Options{
			Enabled:    cfg.Log.Enabled,
			Path:       cfg.Log.Path,
			Level:      cfg.Log.Level,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Async:      cfg.Log.Async,
			Format:     cfg.Log.Format,
		})
		if err != nil {
			return nil, err
		}
		a.log = l
	}

	pools.ApplyGCConfig(pools.GCConfig{
		GOGC:        cfg.Pool.GOGC,
		MemoryLimit: int64(cfg.Pool.MemoryLimitMB) << 20,
	})

	if a.store == nil {
		s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Pool.SQLPoolSize, cfg.Store.BcryptCost)
		if err != nil {
			a.log.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = s
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)
	a.monitor = observability.NewMonitor()
	a.monitor.SetEnabled(cfg.Metrics.Monitor)

	engine, err := core.NewEngine(core.Options{
		Port:         cfg.Server.Port,
		TrigMode:     cfg.Server.TrigMode,
		Timeout:      cfg.Server.Timeout(),
		OpenLinger:   cfg.Server.OpenLinger,
		RootDir:      cfg.Server.RootDir,
		MaxConns:     cfg.Server.MaxConns,
		Workers:      cfg.Pool.ThreadPoolSize,
		InitCapacity: cfg.Pool.InitCapacity,
		Increment:    cfg.Pool.Increment,
		PoolLocked:   cfg.Pool.IsLock,
	},
		core.WithLogger(a.log.Logger),
		core.WithRouter(Routes(a.store, cfg.Store.QueryTimeout(), cfg.Server.RateLimit, a.log.Logger)),
		core.WithMetrics(a.metrics),
		core.WithMonitor(a.monitor),
	)
	if err != nil {
		a.store.Close()
		a.log.Close()
		return nil, err
	}
	a.engine = engine

	if cfg.Metrics.Addr != "" {
		a.admin = newAdmin(cfg.Metrics.Addr, a.registry, engine, a.log.Logger)
	}
	if a.manager != nil {
		a.manager.OnChange("log.level", a.onLevelChange)
		a.manager.OnChange("metrics.monitor", a.onMonitorChange)
	}
	return a, nil
}

// Engine returns the reactor
func (a *App) Engine() *core.Engine { return a.engine }

// AdminAddr returns the bound admin address, or "" when disabled or not
// yet listening.
func (a *App) AdminAddr() string {
	if a.admin == nil {
		return ""
	}
	return a.admin.Addr()
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// everything down and releases the store and logger.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(ctx)
	})
	if a.admin != nil {
		g.Go(func() error {
			return a.admin.Serve(ctx)
		})
	}
	if a.manager != nil && a.file != "" {
		g.Go(func() error {
			return a.manager.WatchFile(ctx, a.file, a.onReload, a.onReloadError)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("server stopped", zap.Error(err))
		return err
	}
	a.log.Info("server stopped")
	return nil
}

func (a *App) onReload() {
	a.log.Info("configuration reloaded", zap.String("file", a.file))
}

func (a *App) onReloadError(err error) {
	a.log.Warn("configuration reload failed", zap.String("file", a.file), zap.Error(err))
}

func (a *App) onLevelChange(_ string, value any) {
	name := fmt.Sprint(value)
	if err := a.log.SetLevel(name); err != nil {
		a.log.Warn("ignoring log level", zap.String("level", name), zap.Error(err))
		return
	}
	a.log.Info("log level changed", zap.String("level", name))
}

func (a *App) onMonitorChange(key string, _ any) {
	on := a.manager.GetBool(key, a.cfg.Metrics.Monitor)
	a.monitor.SetEnabled(on)
	a.log.Info("route monitor toggled", zap.Bool("enabled", on))
}

func (a *App) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
	a.log.Sync()
	a.log.Close()
}
