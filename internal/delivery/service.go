// Package delivery forwards finished report PDFs to a chat.
//
// The Service listens for batch-finished events on the bus and uploads
// every artifact of the batch. Uploads are rate limited and retried a few
// times; a failed upload never affects the batch result.
package delivery

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"reportd/internal/eventbus"
	"reportd/internal/task/runner"
	logx "reportd/pkg/logx"

	"golang.org/x/time/rate"
)

const (
	defaultRetries   = 2
	defaultRetryBase = 2 * time.Second
	sendTimeout      = 2 * time.Minute
)

// Event is published after every upload attempt sequence.
type Event struct {
	RunID string    `json:"run_id"`
	File  string    `json:"file"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}

type Options struct {
	// Caption prefixes the file name in the upload caption.
	Caption   string
	Retries   int
	RetryBase time.Duration
	// RatePerSec caps uploads; Telegram allows roughly one per second per chat.
	RatePerSec float64
}

type Service struct {
	mu      sync.Mutex
	sender  Sender
	opts    Options
	limiter *rate.Limiter

	log logx.Logger
	bus eventbus.Bus
}

func New(sender Sender, opts Options, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus}
	s.Apply(sender, opts)
	return s
}

// Apply swaps the sender and options; a nil sender disables uploads.
func (s *Service) Apply(sender Sender, opts Options) {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}
	s.mu.Lock()
	s.sender = sender
	s.opts = opts
	s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	s.mu.Unlock()
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender != nil
}

// Run consumes batch summaries until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := s.bus.Subscribe(16, eventbus.TypeBatchFinished)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			sum, ok := e.Data.(runner.Summary)
			if !ok {
				continue
			}
			s.Deliver(ctx, sum)
		}
	}
}

// Deliver uploads every artifact of sum and returns how many were sent.
func (s *Service) Deliver(ctx context.Context, sum runner.Summary) int {
	s.mu.Lock()
	sender, opts, lim := s.sender, s.opts, s.limiter
	s.mu.Unlock()
	if sender == nil {
		return 0
	}

	sent := 0
	for _, file := range sum.Artifacts() {
		err := s.sendWithRetry(ctx, sender, opts, lim, file)
		ev := Event{RunID: sum.RunID, File: file, At: time.Now()}
		if err != nil {
			ev.Error = err.Error()
			s.log.Warn("report delivery failed", logx.String("file", file), logx.Err(err))
			s.publish(eventbus.TypeDeliveryFailed, ev)
			continue
		}
		sent++
		s.log.Info("report delivered", logx.String("file", file))
		s.publish(eventbus.TypeDeliverySent, ev)
	}
	return sent
}

func (s *Service) sendWithRetry(ctx context.Context, sender Sender, opts Options, lim *rate.Limiter, file string) error {
	caption := filepath.Base(file)
	if c := strings.TrimSpace(opts.Caption); c != "" {
		caption = c + " " + caption
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(opts.RetryBase << (attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		lastErr = sender.SendDocument(callCtx, file, caption)
		cancel()
		if lastErr == nil {
			return nil
		}
		s.log.Debug("upload attempt failed", logx.Int("attempt", attempt+1), logx.Err(lastErr))
	}
	return lastErr
}

func (s *Service) publish(typ string, ev Event) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
	}
}
