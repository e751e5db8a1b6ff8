// Package app wires the process together: config, logging, storage, the
// Telegram sender and the scheduled reminder and broadcast jobs.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"herald/internal/config"
	"herald/internal/services/broadcast"
	"herald/internal/services/fanout"
	"herald/internal/services/reminder"
	"herald/internal/services/scheduler"
	"herald/internal/storage"
	"herald/internal/transport/telegram"
	"herald/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store  storage.Store
	sender *telegram.Sender
	pool   *fanout.Pool
	rem    *reminder.Service
	bc     *broadcast.Service
	sched  *scheduler.Service

	cfgCh  chan *config.Config
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logCfg(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: mustDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault(
		"telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, err
	}
	sender, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		RequestTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logs.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	pool := fanout.New(fanoutCfg(cfg), log.With(logx.String("comp", "fanout")))

	return &App{
		cfgm:   cfgm,
		logs:   logs,
		log:    log,
		store:  store,
		sender: sender,
		pool:   pool,
		rem:    reminder.New(store, pool, sender, log.With(logx.String("comp", "reminder"))),
		bc:     broadcast.New(store, pool, sender, log.With(logx.String("comp", "broadcast"))),
		sched:  scheduler.New(scheduler.Config{Timezone: cfg.Timezone}, log.With(logx.String("comp", "scheduler"))),
	}, nil
}

// Start registers the scheduled jobs and launches the scheduler and the
// config watcher. It does not block.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	cfg := a.cfgm.Get()

	interval, err := config.ParseDurationOrDefault(
		"reminder.interval", cfg.Reminder.Interval, 20*time.Minute)
	if err != nil {
		return err
	}
	delay, err := config.ParseDurationOrDefault(
		"reminder.initial_delay", cfg.Reminder.InitialDelay, 10*time.Second)
	if err != nil {
		return err
	}

	if err := a.sched.AddInterval("reminder_scan", interval, delay, func(ctx context.Context) error {
		return a.rem.Scan(ctx, time.Now())
	}); err != nil {
		return err
	}
	for _, slot := range cfg.Broadcast.TimesOrDefault() {
		if err := a.sched.AddDaily("broadcast@"+slot, slot, func(ctx context.Context) error {
			_, err := a.bc.DrainOne(ctx)
			return err
		}); err != nil {
			return err
		}
	}

	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	a.cfgCh = a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(ctx, cfg)
	}()

	a.log.Info("started",
		logx.Duration("scan_interval", interval),
		logx.Int("broadcast_slots", len(cfg.Broadcast.TimesOrDefault())))
	return nil
}

// Stop shuts the scheduler down, waits for running jobs and closes the
// storage and log sinks.
func (a *App) Stop() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop()
	a.wg.Wait()
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	err := a.store.Close()
	a.log.Info("stopped")
	if cerr := a.logs.Close(); err == nil {
		err = cerr
	}
	return err
}

// reloadLoop applies hot-reloadable settings from republished configs.
// Logging and fan-out limits take effect immediately; trigger changes
// (scan interval, broadcast slots, timezone) need a restart.
func (a *App) reloadLoop(ctx context.Context, prev *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			a.logs.Apply(logCfg(cfg))
			a.pool.Apply(fanoutCfg(cfg))
			if triggersChanged(prev, cfg) {
				a.log.Warn("trigger settings changed, restart required to apply")
			}
			a.log.Info("config applied",
				logx.String("level", cfg.Logging.Level),
				logx.Int("workers", cfg.Fanout.WorkersOrDefault()))
			prev = cfg
		}
	}
}

func triggersChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg.Reminder != newCfg.Reminder || oldCfg.Timezone != newCfg.Timezone {
		return true
	}
	oldTimes, newTimes := oldCfg.Broadcast.TimesOrDefault(), newCfg.Broadcast.TimesOrDefault()
	if len(oldTimes) != len(newTimes) {
		return true
	}
	for i := range oldTimes {
		if oldTimes[i] != newTimes[i] {
			return true
		}
	}
	return false
}

func logCfg(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func fanoutCfg(cfg *config.Config) fanout.Config {
	return fanout.Config{
		Workers:    cfg.Fanout.WorkersOrDefault(),
		RatePerSec: cfg.Fanout.RatePerSec,
	}
}

// mustDuration is for fields already checked by Config.Validate; a parse
// failure here is a programming error, so fall back to the default.
func mustDuration(path, raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault(path, raw, def)
	if err != nil {
		return def
	}
	return d
}
