package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"reportd/internal/config"
	"reportd/internal/configstore"
	"reportd/internal/delivery"
	"reportd/internal/eventbus"
	"reportd/internal/runtime/supervisor"
	"reportd/internal/storage"
	"reportd/internal/task/runner"
	"reportd/internal/task/scheduler"
	logx "reportd/pkg/logx"
	"reportd/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	storage storage.Store
	store   *configstore.Store

	runner   *runner.Runner
	sched    *scheduler.Service
	delivery *delivery.Service

	autostart atomic.Bool
}

// New loads the settings file (defaults when it does not exist) and builds
// every component. Nothing runs until Start.
func New(settingsPath string) (*App, error) {
	cfgm := config.NewConfigManager(settingsPath)
	cfg, err := cfgm.LoadOrDefault()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.LogConfig())
	cfgm.SetLogger(log.With(logx.String("comp", "settings")))
	bus := eventbus.New()

	cs, st, err := OpenStore(context.Background(), cfg, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	ropts, err := mapRunnerOptions(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	launcher := runner.ExecLauncher{Executable: cfg.Runner.Executable}
	if _, err := os.Stat(settingsPath); err == nil {
		launcher.Settings = settingsPath
	}
	run := runner.New(launcher, ropts, log.With(logx.String("comp", "runner")), bus)

	scfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	sched := scheduler.New(scfg, cs, run, log.With(logx.String("comp", "scheduler")), bus)

	sender, dopts, err := mapDelivery(cfg)
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}
	deliv := delivery.New(sender, dopts, log.With(logx.String("comp", "delivery")), bus)

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		storage:  st,
		store:    cs,
		runner:   run,
		sched:    sched,
		delivery: deliv,
	}
	a.autostart.Store(cfg.Scheduler.Autostart)
	return a, nil
}

func (a *App) Store() *configstore.Store     { return a.store }
func (a *App) Runner() *runner.Runner        { return a.runner }
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// An external edit that adds the first schedule starts the loop when
	// autostart is on; removing the last one stops it.
	a.store.OnChange(func(s configstore.Snapshot) {
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeDocumentReload, Data: len(s.Schedules)})
		a.syncScheduler(len(s.Schedules))
	})
	if a.autostart.Load() {
		a.syncScheduler(len(a.store.Snapshot().Schedules))
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.GoRestart("store.watch", func(c context.Context) error {
		return a.store.Watch(c)
	}, time.Second, 30*time.Second)
	a.sup.Go("delivery", func(c context.Context) error {
		return a.delivery.Run(c)
	})
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		if err := systemd.Watchdog(c); err != nil {
			a.log.Warn("watchdog ping failed", logx.Err(err))
		}
		return nil
	})

	a.sup.Go("runner.results", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case sum := <-a.runner.Results():
				msg := fmt.Sprintf("%d ok, %d failed", sum.Succeeded, sum.Failed)
				_, _ = systemd.Status("last run: " + msg)
			}
		}
	})

	// Debug-level event trail.
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}
	snap := a.store.Snapshot()
	a.log.Info("reportd started",
		logx.Int("files", len(snap.Files)),
		logx.Int("schedules", len(snap.Schedules)),
		logx.Bool("scheduler", a.sched.Running()),
	)
	return nil
}

// syncScheduler starts or stops the loop to follow the schedule count.
func (a *App) syncScheduler(n int) {
	switch {
	case n == 0 && a.sched.Running():
		a.sched.Stop(context.Background())
		a.log.Info("scheduler stopped: no schedules left")
	case n > 0 && !a.sched.Running() && a.autostart.Load() && a.sup != nil:
		if err := a.sched.Start(a.sup.Context()); err != nil {
			a.log.Warn("scheduler start failed", logx.Err(err))
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("settings reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage settings changed; restart required for changes to take effect")
		}
	}

	a.logs.Apply(next.Logging.LogConfig())

	if ro, err := mapRunnerOptions(next); err != nil {
		a.log.Warn("invalid runner settings; keeping previous", logx.Err(err))
	} else {
		a.runner.Apply(ro)
	}
	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler settings; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}
	a.autostart.Store(next.Scheduler.Autostart)
	if next.Scheduler.Autostart {
		a.syncScheduler(len(a.store.Snapshot().Schedules))
	}

	if sender, dopts, err := mapDelivery(next); err != nil {
		a.log.Warn("invalid delivery settings; keeping previous", logx.Err(err))
	} else {
		a.delivery.Apply(sender, dopts)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("settings reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	// no new ticks first; in-flight batches get the remaining budget
	a.sched.Stop(ctx)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("runner", 30*time.Second, a.runner.Shutdown)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.storage.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
