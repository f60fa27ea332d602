package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reportd/internal/configstore"
	"reportd/internal/eventbus"
	"reportd/internal/schedule"
	"reportd/internal/task/runner"
	logx "reportd/pkg/logx"

	"github.com/robfig/cron/v3"
)

const DefaultTick = 15 * time.Second

// Store is the part of the config store the loop needs.
type Store interface {
	Snapshot() configstore.Snapshot
	RemoveSchedules(ctx context.Context, keys ...string) (int, error)
}

// Trigger starts a report batch without waiting for it.
type Trigger interface {
	Start(reason string, groups []string) (string, error)
}

type Config struct {
	Tick     time.Duration
	Location *time.Location
}

// TickReport describes one tick; it is mostly useful to tests and logs.
type TickReport struct {
	Now     time.Time
	Fired   []schedule.Schedule
	RunID   string
	Busy    bool
	Removed int
	Err     error
}

// Service drives State with a cron timer. The timer only triggers; all
// decisions happen in TickAt under one mutex, so ticks never overlap.
type Service struct {
	store   Store
	trigger Trigger
	log     logx.Logger
	bus     eventbus.Bus

	mu    sync.Mutex
	cfg   Config
	state State
	c     *cron.Cron
	ctx   context.Context

	now func() time.Time
}

func New(cfg Config, store Store, trigger Trigger, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:   store,
		trigger: trigger,
		log:     log,
		bus:     bus,
		cfg:     normalize(cfg),
		now:     time.Now,
	}
}

func normalize(cfg Config) Config {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return cfg
}

// State returns a copy of the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.state
	cp.FiredKeys = make(map[string]struct{}, len(s.state.FiredKeys))
	for k := range s.state.FiredKeys {
		cp.FiredKeys[k] = struct{}{}
	}
	return cp
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status == Running
}

// Start transitions to RUNNING and registers the tick timer. ctx scopes
// store writes made by ticks.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.state.Start(len(s.store.Snapshot().Schedules))
	if err != nil {
		return err
	}
	if s.c != nil {
		return nil
	}
	s.state = next
	s.ctx = ctx
	if err := s.startCronLocked(); err != nil {
		s.state = s.state.Stop()
		return err
	}
	s.log.Info("scheduler started",
		logx.Duration("tick", s.cfg.Tick),
		logx.String("tz", s.cfg.Location.String()),
	)
	return nil
}

func (s *Service) startCronLocked() error {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.Tick), s.onTimer); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	c.Start()
	s.c = c
	return nil
}

func (s *Service) onTimer() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.TickAt(ctx, s.now())
}

// Stop cancels the timer. An in-flight report batch is left alone.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.state = s.state.Stop()
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Apply changes tick interval or timezone, re-registering the timer when
// running.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Tick == s.cfg.Tick && cfg.Location.String() == s.cfg.Location.String() {
		return
	}
	s.cfg = cfg
	if s.c == nil {
		return
	}
	old := s.c
	s.c = nil
	old.Stop()
	if err := s.startCronLocked(); err != nil {
		s.log.Error("scheduler restart failed", logx.Err(err))
		s.state = s.state.Stop()
		return
	}
	s.log.Info("scheduler reconfigured", logx.Duration("tick", cfg.Tick), logx.String("tz", cfg.Location.String()))
}

// TickAt runs one tick as if the clock read now.
func (s *Service) TickAt(ctx context.Context, now time.Time) TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.In(s.cfg.Location)
	rep := TickReport{Now: now}
	if s.state.Status != Running {
		return rep
	}

	snap := s.store.Snapshot()
	next, res := s.state.Tick(now, snap.Schedules)
	s.state = next
	rep.Fired = res.Fire

	if len(res.Fire) > 0 {
		keys := make([]string, 0, len(res.Fire))
		for _, f := range res.Fire {
			keys = append(keys, f.Key())
		}
		s.log.Info("schedules due", logx.Strings("keys", keys), logx.Time("now", now))
		s.publish(eventbus.TypeScheduleFired, keys)

		id, err := s.trigger.Start("schedule", snap.Files)
		switch {
		case err == nil:
			rep.RunID = id
		case errors.Is(err, runner.ErrAlreadyRunning):
			rep.Busy = true
			s.log.Info("report already running; tick skipped")
			s.publish(eventbus.TypeScheduleBusy, keys)
		default:
			rep.Err = err
			s.log.Warn("report not started", logx.Err(err))
		}
	}

	if res.Changed {
		keys := removedKeys(snap.Schedules, res.Remaining)
		n, err := s.store.RemoveSchedules(ctx, keys...)
		if err != nil {
			rep.Err = errors.Join(rep.Err, err)
			s.log.Error("persist schedules failed", logx.Err(err))
		}
		rep.Removed = n
	}
	return rep
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
