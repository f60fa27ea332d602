package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"reportd/internal/configstore"
	"reportd/internal/eventbus"
	logx "reportd/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Runner executes report batches one at a time.
//
// A batch processes every monitored group sequentially; one group failing
// does not stop the others. Callers of Start do not wait: completion is
// delivered on Results and as an eventbus.TypeBatchFinished event.
type Runner struct {
	launcher Launcher
	log      logx.Logger
	bus      eventbus.Bus

	mu   sync.Mutex
	opts Options
	last *Summary

	running   atomic.Bool
	closing   atomic.Bool
	completed atomic.Uint64
	rejected  atomic.Uint64

	results chan Summary

	// base outlives Start callers; Shutdown cancels it.
	base     context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	now func() time.Time
}

func New(launcher Launcher, opts Options, log logx.Logger, bus eventbus.Bus) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 4
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		launcher: launcher,
		log:      log,
		bus:      bus,
		opts:     opts,
		results:  make(chan Summary, opts.ResultBuffer),
		base:     base,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Apply swaps timeout and logging limits for future batches.
func (r *Runner) Apply(opts Options) {
	r.mu.Lock()
	opts.ResultBuffer = r.opts.ResultBuffer
	r.opts = opts
	r.mu.Unlock()
}

// Results delivers each finished batch. Summaries are dropped when the
// buffer is full.
func (r *Runner) Results() <-chan Summary { return r.results }

func (r *Runner) Running() bool { return r.running.Load() }

func (r *Runner) Stats() Stats {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()
	return Stats{
		Running:   r.running.Load(),
		Completed: r.completed.Load(),
		Rejected:  r.rejected.Load(),
		Last:      last,
	}
}

func (r *Runner) acquire() bool {
	if !r.running.CompareAndSwap(false, true) {
		r.rejected.Add(1)
		return false
	}
	return true
}

// Start launches a batch over groups in the background and returns its run
// id. It returns ErrAlreadyRunning without side effects when a batch is
// active.
func (r *Runner) Start(reason string, groups []string) (string, error) {
	if len(groups) == 0 {
		return "", ErrNoGroups
	}
	if r.closing.Load() {
		return "", ErrShuttingDown
	}
	if !r.acquire() {
		return "", ErrAlreadyRunning
	}
	id := uuid.NewString()
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.finish(r.execute(r.base, id, reason, groups))
	}()
	return id, nil
}

// Run executes a batch and waits for it. ctx cancellation kills the
// children of the batch.
func (r *Runner) Run(ctx context.Context, reason string, groups []string) (Summary, error) {
	if len(groups) == 0 {
		return Summary{}, ErrNoGroups
	}
	if r.closing.Load() {
		return Summary{}, ErrShuttingDown
	}
	if !r.acquire() {
		return Summary{}, ErrAlreadyRunning
	}
	r.inflight.Add(1)
	defer r.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.base, cancel)
	defer stop()

	sum := r.execute(ctx, uuid.NewString(), reason, groups)
	r.finish(sum)
	return sum, nil
}

func (r *Runner) finish(sum Summary) {
	r.mu.Lock()
	r.last = &sum
	r.mu.Unlock()
	r.completed.Add(1)
	r.running.Store(false)

	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeBatchFinished, Data: sum})
	}
	select {
	case r.results <- sum:
	default:
		r.log.Debug("batch summary dropped (no reader)", logx.String("run_id", sum.RunID))
	}
}

func (r *Runner) execute(ctx context.Context, id, reason string, groups []string) Summary {
	r.mu.Lock()
	opts := r.opts
	r.mu.Unlock()

	log := r.log.With(logx.String("run_id", id))
	started := r.now()
	sum := Summary{RunID: id, Reason: reason, Started: started, Groups: make([]GroupResult, 0, len(groups))}

	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeBatchStarted, Data: sum})
	}
	log.Info("batch started", logx.String("reason", reason), logx.Int("groups", len(groups)))

	var limiter *rate.Limiter
	if opts.LogRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.LogRatePerSec), opts.LogRatePerSec)
	}

	for _, gid := range groups {
		if ctx.Err() != nil {
			sum.Groups = append(sum.Groups, GroupResult{Group: gid, Error: ctx.Err().Error(), ExitCode: -1})
			sum.Failed++
			continue
		}
		res := r.runGroup(ctx, log.With(logx.String("group", gid)), gid, opts, limiter)
		if res.OK {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		sum.Groups = append(sum.Groups, res)
	}

	sum.Elapsed = r.now().Sub(started)
	log.Info("batch finished",
		logx.Int("ok", sum.Succeeded),
		logx.Int("failed", sum.Failed),
		logx.Duration("elapsed", sum.Elapsed),
	)
	return sum
}

func (r *Runner) runGroup(ctx context.Context, log logx.Logger, id string, opts Options, limiter *rate.Limiter) GroupResult {
	started := r.now()
	res := GroupResult{Group: id}

	g, err := configstore.ResolveGroup(id)
	if err != nil {
		res.Error = err.Error()
		res.ExitCode = -1
		res.Elapsed = r.now().Sub(started)
		log.Warn("group skipped", logx.Err(err))
		return res
	}

	gctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	stdout := newLineCapture("stdout", log, limiter, opts.OutputTail)
	stderr := newLineCapture("stderr", log, limiter, opts.OutputTail)
	err = r.launcher.Launch(gctx, g, stdout, stderr)
	stdout.Flush()
	stderr.Flush()

	res.Elapsed = r.now().Sub(started)
	res.Output = append(stdout.Lines(), stderr.Lines()...)
	res.Artifact = stdout.Artifact()
	if err != nil {
		res.Error = err.Error()
		res.ExitCode = -1
		var ee *ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.Code
		}
		log.Warn("group failed", logx.Err(err), logx.Int("exit_code", res.ExitCode), logx.Duration("elapsed", res.Elapsed))
		return res
	}
	res.OK = true
	log.Info("group done", logx.String("artifact", res.Artifact), logx.Duration("elapsed", res.Elapsed))
	return res
}

// Shutdown stops accepting batches and waits for the active one. When ctx
// expires first the active batch's children are killed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.closing.Store(true)
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
