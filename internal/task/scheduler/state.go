package scheduler

import (
	"errors"
	"time"

	"reportd/internal/schedule"
)

var ErrNothingToSchedule = errors.New("nothing to schedule")

type Status int

const (
	Stopped Status = iota
	Running
)

func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// State is the scheduler loop's entire mutable state. Transitions return a
// new value; the receiver is never modified.
type State struct {
	Status    Status
	FiredKeys map[string]struct{}
	LastTick  time.Time
}

// Start moves STOPPED to RUNNING. It refuses when there are no schedules.
// Starting a running state is a no-op.
func (s State) Start(schedules int) (State, error) {
	if s.Status == Running {
		return s, nil
	}
	if schedules == 0 {
		return s, ErrNothingToSchedule
	}
	return State{Status: Running, FiredKeys: map[string]struct{}{}}, nil
}

// Stop is always permitted.
func (s State) Stop() State {
	return State{Status: Stopped, LastTick: s.LastTick}
}

// Tick prunes fired keys to now's minute, matches schedules and records the
// keys of everything that fired. A stopped state does not tick.
func (s State) Tick(now time.Time, schedules []schedule.Schedule) (State, schedule.Result) {
	if s.Status != Running {
		return s, schedule.Result{Remaining: schedules}
	}

	fired := make(map[string]struct{}, len(s.FiredKeys))
	for k := range s.FiredKeys {
		if schedule.InMinute(k, now) {
			fired[k] = struct{}{}
		}
	}

	res := schedule.Due(now, schedules, fired)
	for _, k := range res.FiredKeys {
		fired[k] = struct{}{}
	}
	return State{Status: Running, FiredKeys: fired, LastTick: now}, res
}

// removedKeys lists the keys present in before but absent from after.
func removedKeys(before, after []schedule.Schedule) []string {
	keep := make(map[string]struct{}, len(after))
	for _, s := range after {
		keep[s.Key()] = struct{}{}
	}
	var out []string
	for _, s := range before {
		if _, ok := keep[s.Key()]; !ok {
			out = append(out, s.Key())
		}
	}
	return out
}
