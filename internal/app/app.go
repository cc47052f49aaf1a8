// Package app wires the bot together: config, logging, storage, the
// availability source, the trigger engine, the command pipeline, and the
// operational HTTP surface.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"courtbot/internal/availability"
	"courtbot/internal/commands"
	"courtbot/internal/config"
	"courtbot/internal/engine"
	"courtbot/internal/httpapi"
	"courtbot/internal/notifier"
	"courtbot/internal/store"
	"courtbot/internal/transport"
	"courtbot/internal/transport/telegram"
	"courtbot/pkg/logx"
)

const tokenEnv = "TELEGRAM_BOT_TOKEN"

// updateQueueSize bounds inbound messages between the transport and the
// command pipeline.
const updateQueueSize = 256

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	st      *store.SQLite
	adapter *telegram.Adapter
	notif   *notifier.Service
	eng     *engine.Engine
	proc    *commands.Processor
	api     *httpapi.Server

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New loads and validates the config and sets up logging. Everything that
// touches the network or the filesystem beyond that waits for Start.
func New(cfgPath string) (*App, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		return config.Validate(c)
	})

	return &App{cfgMgr: mgr, logSvc: logSvc, log: log}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	cfg := a.cfgMgr.Get()

	a.runCtx, a.runCancel = context.WithCancel(context.Background())

	st, err := a.openStore(cfg)
	if err != nil {
		return err
	}
	a.st = st

	slots, err := a.openAvailability(cfg)
	if err != nil {
		a.closePartial()
		return err
	}

	if err := a.openTransport(cfg); err != nil {
		a.closePartial()
		return err
	}

	if err := a.startEngine(ctx, cfg, slots); err != nil {
		a.closePartial()
		return err
	}

	a.proc = commands.NewProcessor(
		commands.Config{SupportedSports: cfg.Commands.SupportedSports},
		a.st, slots, a.eng, a.notif,
		a.log.With(logx.String("comp", "commands")),
	)

	updates := make(chan transport.Update, updateQueueSize)
	if err := a.adapter.Start(a.runCtx, updates); err != nil {
		a.closePartial()
		return fmt.Errorf("start transport: %w", err)
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(updates)
	}()

	if cfg.HTTP != nil {
		if err := a.startHTTP(cfg, slots); err != nil {
			a.closePartial()
			return err
		}
	}

	a.watchConfig()
	a.startReconcileLoop(cfg)

	// Startup reconcile runs in the background so a slow preference source
	// doesn't hold up readiness; triggers were already rearmed from the store.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.eng.ReconcileAll(a.runCtx); err != nil {
			a.log.Warn("startup reconcile failed", logx.Err(err))
		}
	}()

	a.started = true
	a.log.Info("app started")
	return nil
}

func (a *App) openStore(cfg *config.Config) (*store.SQLite, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.OpenSQLite(
		store.Config{Path: cfg.Storage.Path, BusyTimeout: busy},
		a.log.With(logx.String("comp", "store")),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func (a *App) openAvailability(cfg *config.Config) (availability.Source, error) {
	timeout, err := config.ParseDurationOrDefault("availability.timeout", cfg.Availability.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	src, err := availability.NewHTTPSource(cfg.Availability.URL, timeout,
		a.log.With(logx.String("comp", "availability")))
	if err != nil {
		return nil, fmt.Errorf("availability source: %w", err)
	}
	return src, nil
}

func (a *App) openTransport(cfg *config.Config) error {
	token := strings.TrimSpace(os.Getenv(tokenEnv))
	if token == "" {
		token = strings.TrimSpace(cfg.Telegram.Token)
	}
	if token == "" {
		return fmt.Errorf("telegram token missing: set %s or telegram.token", tokenEnv)
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}

	adapter, err := telegram.New(
		telegram.Config{Token: token, PollTimeout: pollTimeout},
		a.log.With(logx.String("comp", "telegram")),
	)
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter

	retryDelay, err := config.ParseDurationField("notifier.retry_delay", cfg.Notifier.RetryDelay)
	if err != nil {
		return err
	}
	a.notif = notifier.New(
		notifier.Config{
			Attempts:   cfg.Notifier.Attempts,
			RetryDelay: retryDelay,
			RatePerSec: cfg.Notifier.RatePerSec,
		},
		adapter,
		a.log.With(logx.String("comp", "notifier")),
	)
	return nil
}

func (a *App) startEngine(ctx context.Context, cfg *config.Config, slots availability.Source) error {
	fireTimeout, err := config.ParseDurationField("engine.fire_timeout", cfg.Engine.FireTimeout)
	if err != nil {
		return err
	}
	a.eng = engine.New(
		engine.Config{
			Workers:     cfg.Engine.Workers,
			QueueSize:   cfg.Engine.QueueSize,
			Timezone:    cfg.Engine.Timezone,
			FireTimeout: fireTimeout,
		},
		a.st, a.st, slots, a.notif,
		a.log.With(logx.String("comp", "engine")),
	)
	if err := a.eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	return nil
}

func (a *App) startHTTP(cfg *config.Config, slots availability.Source) error {
	read, err := config.ParseDurationField("http.read_timeout", cfg.HTTP.ReadTimeout)
	if err != nil {
		return err
	}
	write, err := config.ParseDurationField("http.write_timeout", cfg.HTTP.WriteTimeout)
	if err != nil {
		return err
	}
	idle, err := config.ParseDurationField("http.idle_timeout", cfg.HTTP.IdleTimeout)
	if err != nil {
		return err
	}

	a.api = httpapi.NewServer(
		httpapi.Config{Addr: cfg.HTTP.Addr, ReadTimeout: read, WriteTimeout: write, IdleTimeout: idle},
		a.eng, a.proc,
		a.log.With(logx.String("comp", "http")),
	)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.api.Start(); err != nil {
			a.log.Error("http server exited", logx.Err(err))
		}
	}()
	return nil
}

func (a *App) dispatch(updates <-chan transport.Update) {
	for {
		select {
		case <-a.runCtx.Done():
			return
		case upd := <-updates:
			a.proc.Handle(a.runCtx, upd)
		}
	}
}

// watchConfig follows the config file. Logging applies live; sections that
// feed constructors (storage, transport, engine sizing) need a restart and are
// only reported.
func (a *App) watchConfig() {
	sub := a.cfgMgr.Subscribe(1)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(a.runCtx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("config applied; non-logging sections take effect on restart")
			}
		}
	}()
}

func (a *App) startReconcileLoop(cfg *config.Config) {
	interval, err := config.ParseDurationField("engine.reconcile_interval", cfg.Engine.ReconcileInterval)
	if err != nil || interval <= 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.runCtx.Done():
				return
			case <-ticker.C:
				if err := a.eng.ReconcileAll(a.runCtx); err != nil {
					a.log.Warn("periodic reconcile failed", logx.Err(err))
				}
			}
		}
	}()
}

// closePartial tears down whatever Start managed to build before failing.
func (a *App) closePartial() {
	if a.runCancel != nil {
		a.runCancel()
	}
	if a.eng != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.eng.Stop(stopCtx)
		cancel()
		a.eng = nil
	}
	if a.st != nil {
		_ = a.st.Close()
		a.st = nil
	}
}

// Stop shuts the app down in dependency order: stop taking input, drain the
// engine, then release storage and logging.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	if a.api != nil {
		if err := a.api.Stop(ctx); err != nil {
			a.log.Warn("http shutdown", logx.Err(err))
		}
	}
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}

	a.runCancel()
	a.eng.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := a.st.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("app stopped")
	_ = a.logSvc.Close()
	return nil
}
