// Package app owns the waiter client's shared state and wires the
// components together.  There is exactly one transport Target per App; the
// session machine is its only writer and every other component reads it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/iliyamo/pos-waiter/internal/config"
	"github.com/iliyamo/pos-waiter/internal/discovery"
	"github.com/iliyamo/pos-waiter/internal/logging"
	"github.com/iliyamo/pos-waiter/internal/orders"
	"github.com/iliyamo/pos-waiter/internal/posapi"
	"github.com/iliyamo/pos-waiter/internal/realtime"
	"github.com/iliyamo/pos-waiter/internal/session"
	"github.com/iliyamo/pos-waiter/internal/store"
	"github.com/iliyamo/pos-waiter/internal/transport"
)

// App is the application context.
type App struct {
	Cfg     config.ClientConfig
	Log     *slog.Logger
	Target  *transport.Target
	Client  *transport.Client
	API     *posapi.API
	Store   store.Store
	Session *session.Machine
	Scanner *discovery.Scanner
	Events  *realtime.Client
	Orders  *orders.Sync
	Catalog *orders.Catalog

	life    context.Context
	cancel  context.CancelFunc
	closers []func() error
	wg      sync.WaitGroup
}

// New opens the configured state backend and builds an App on it.
func New(ctx context.Context, cfg config.ClientConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(cfg.LogLevel, cfg.LogFormat, "waiter")
	}
	st, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := Build(cfg, st, logger)
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.ClientConfig) (store.Store, func() error, error) {
	switch strings.ToLower(cfg.StateBackend) {
	case "redis":
		rdb, err := config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("state backend: %w", err)
		}
		return store.NewRedisStore(rdb, ""), rdb.Close, nil
	case "", "file":
		fs, err := store.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, nil, fmt.Errorf("state backend: %w", err)
		}
		return fs, nil, nil
	}
	return nil, nil, fmt.Errorf("state backend: unknown %q", cfg.StateBackend)
}

// Build wires an App over st.  Tests pass a store.Memory.
func Build(cfg config.ClientConfig, st store.Store, logger *slog.Logger) *App {
	if logger == nil {
		logger = logging.Discard()
	}
	target := transport.NewTarget(cfg.RequestTimeout)
	client := transport.New(target, logger.With("component", "transport"))
	api := posapi.New(client)
	if cfg.HealthTimeout > 0 {
		api.HealthTimeout = cfg.HealthTimeout
	}

	life, cancel := context.WithCancel(context.Background())
	a := &App{
		Cfg:    cfg,
		Log:    logger,
		Target: target,
		Client: client,
		API:    api,
		Store:  st,
		Session: session.New(api, client, st, session.Options{
			DefaultPort:   cfg.Port,
			HealthTimeout: cfg.HealthTimeout,
			Logger:        logger.With("component", "session"),
		}),
		Scanner: discovery.NewScanner(
			discovery.HealthProber{Client: client, Timeout: cfg.HealthTimeout},
			nil,
			discovery.Options{
				Port:      cfg.Port,
				BatchSize: cfg.ScanBatch,
				Pause:     cfg.ScanPause,
				Timeout:   cfg.ScanTimeout,
				Logger:    logger.With("component", "discovery"),
			}),
		Events: realtime.New(realtime.Options{
			Attempts:    cfg.WSAttempts,
			DialTimeout: cfg.WSDialTimeout,
			Logger:      logger.With("component", "realtime"),
		}),
		Orders:  orders.New(api, logger.With("component", "orders")),
		Catalog: orders.NewCatalog(api, logger.With("component", "catalog")),
		life:    life,
		cancel:  cancel,
	}
	a.Orders.Attach(a.Events)
	a.Catalog.Attach(a.Events)
	a.Session.OnChange(a.sessionChanged)
	return a
}

// sessionChanged opens the event channel once a waiter is authenticated
// and tears down everything tied to the waiter when the session ends.
func (a *App) sessionChanged(s session.Snapshot) {
	if s.State == session.Authenticated {
		if a.Events.State() != realtime.StateDisconnected {
			return
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.ConnectEvents(a.life); err != nil {
				a.Log.Warn("event channel unavailable", "error", err)
			}
		}()
		return
	}
	a.Events.Disconnect()
	a.Orders.Clear()
}

// ConnectEvents connects the event channel to the bound server with the
// current token.  It is a no-op when already connected.
func (a *App) ConnectEvents(ctx context.Context) error {
	snap := a.Target.Snapshot()
	if snap.BaseURL == "" {
		return errors.New("app: no server bound")
	}
	return a.Events.Connect(ctx, snap.BaseURL, snap.Token)
}

// LoadCatalog fetches the menu and the tables.
func (a *App) LoadCatalog(ctx context.Context) error {
	if _, err := a.Catalog.LoadMenu(ctx); err != nil {
		return fmt.Errorf("menu: %w", err)
	}
	if _, err := a.Catalog.LoadTables(ctx); err != nil {
		return fmt.Errorf("tables: %w", err)
	}
	return nil
}

// Close stops background work and releases the state backend.
func (a *App) Close() error {
	a.cancel()
	a.Events.Disconnect()
	a.wg.Wait()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
