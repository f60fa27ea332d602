package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"reportd/internal/configstore"
	"reportd/internal/schedule"
	"reportd/internal/task/runner"
	logx "reportd/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	snap  configstore.Snapshot
	saved int
}

func (m *memStore) Snapshot() configstore.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return configstore.Snapshot{
		Files:     append([]string(nil), m.snap.Files...),
		Schedules: append([]schedule.Schedule(nil), m.snap.Schedules...),
	}
}

func (m *memStore) RemoveSchedules(ctx context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[string]bool{}
	for _, k := range keys {
		drop[k] = true
	}
	var next []schedule.Schedule
	for _, s := range m.snap.Schedules {
		if !drop[s.Key()] {
			next = append(next, s)
		}
	}
	n := len(m.snap.Schedules) - len(next)
	m.snap.Schedules = next
	if n > 0 {
		m.saved++
	}
	return n, nil
}

type countingTrigger struct {
	mu    sync.Mutex
	calls int
	busy  bool
}

func (c *countingTrigger) Start(reason string, groups []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return "", runner.ErrAlreadyRunning
	}
	c.calls++
	return "run", nil
}

func wed(h, m, s int) time.Time {
	return time.Date(2024, time.January, 3, h, m, s, 0, time.UTC)
}

func newService(t *testing.T, list ...schedule.Schedule) (*Service, *memStore, *countingTrigger) {
	t.Helper()
	st := &memStore{snap: configstore.Snapshot{Files: []string{"/g1", "/g2"}, Schedules: list}}
	tr := &countingTrigger{}
	svc := New(Config{Tick: time.Hour, Location: time.UTC}, st, tr, logx.Nop(), nil)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc, st, tr
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()
	var s State
	_, err := s.Start(0)
	assert.ErrorIs(t, err, ErrNothingToSchedule)

	running, err := s.Start(2)
	require.NoError(t, err)
	assert.Equal(t, Running, running.Status)
	assert.Equal(t, Stopped, s.Status, "Start must not mutate the receiver")

	stopped := running.Stop()
	assert.Equal(t, Stopped, stopped.Status)
	assert.Empty(t, stopped.FiredKeys)

	again, res := stopped.Tick(wed(9, 0, 0), nil)
	assert.Equal(t, Stopped, again.Status)
	assert.Empty(t, res.Fire)
}

func TestStateTickPrunesOldMinutes(t *testing.T) {
	t.Parallel()
	w, err := schedule.NewWeekly([]int{3}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	st, err := State{}.Start(1)
	require.NoError(t, err)

	st, res := st.Tick(wed(9, 0, 0), []schedule.Schedule{w})
	require.Len(t, res.Fire, 1)
	assert.Len(t, st.FiredKeys, 1)

	st, _ = st.Tick(wed(9, 1, 0), []schedule.Schedule{w})
	assert.Empty(t, st.FiredKeys)
}

func TestStartRefusesEmptySchedule(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, &memStore{}, &countingTrigger{}, logx.Nop(), nil)
	assert.ErrorIs(t, svc.Start(context.Background()), ErrNothingToSchedule)
	assert.False(t, svc.Running())
}

func TestTickTriggersOncePerTick(t *testing.T) {
	t.Parallel()
	w1, err := schedule.NewWeekly([]int{3}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	w2, err := schedule.NewWeekly([]int{1, 3}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	svc, _, tr := newService(t, w1, w2)

	rep := svc.TickAt(context.Background(), wed(9, 0, 0))
	assert.Len(t, rep.Fired, 2)
	assert.Equal(t, "run", rep.RunID)
	assert.Equal(t, 1, tr.calls, "several due schedules share one run")

	for _, sec := range []int{15, 30, 45} {
		rep = svc.TickAt(context.Background(), wed(9, 0, sec))
		assert.Empty(t, rep.Fired)
	}
	assert.Equal(t, 1, tr.calls)

	rep = svc.TickAt(context.Background(), wed(9, 1, 0))
	assert.Empty(t, rep.Fired)
	assert.Equal(t, 1, tr.calls)
}

func TestTickRemovesFiredOnce(t *testing.T) {
	t.Parallel()
	once := schedule.Once{At: wed(9, 0, 0)}
	weekly, err := schedule.NewWeekly([]int{5}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	svc, st, tr := newService(t, once, weekly)

	rep := svc.TickAt(context.Background(), wed(9, 0, 10))
	require.Len(t, rep.Fired, 1)
	assert.Equal(t, 1, rep.Removed)
	assert.Equal(t, 1, st.saved)
	require.Len(t, st.Snapshot().Schedules, 1)

	rep = svc.TickAt(context.Background(), wed(9, 0, 25))
	assert.Empty(t, rep.Fired)
	assert.Zero(t, rep.Removed)
	assert.Equal(t, 1, tr.calls)
}

func TestTickWhileBusyIsSkipped(t *testing.T) {
	t.Parallel()
	w, err := schedule.NewWeekly([]int{3}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	svc, _, tr := newService(t, w)
	tr.busy = true

	rep := svc.TickAt(context.Background(), wed(9, 0, 0))
	assert.True(t, rep.Busy)
	assert.NoError(t, rep.Err)

	// the minute's key is spent; no retry later in the same minute
	tr.busy = false
	rep = svc.TickAt(context.Background(), wed(9, 0, 15))
	assert.Empty(t, rep.Fired)
	assert.Zero(t, tr.calls)
}

func TestStopPreventsTicks(t *testing.T) {
	t.Parallel()
	w, err := schedule.NewWeekly([]int{3}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	svc, _, tr := newService(t, w)

	svc.Stop(context.Background())
	assert.False(t, svc.Running())
	rep := svc.TickAt(context.Background(), wed(9, 0, 0))
	assert.Empty(t, rep.Fired)
	assert.Zero(t, tr.calls)
}

func TestTickUsesConfiguredLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+8", 8*3600)
	w, err := schedule.NewWeekly([]int{3}, schedule.Clock{Hour: 9})
	require.NoError(t, err)
	st := &memStore{snap: configstore.Snapshot{Files: []string{"/g"}, Schedules: []schedule.Schedule{w}}}
	tr := &countingTrigger{}
	svc := New(Config{Tick: time.Hour, Location: loc}, st, tr, logx.Nop(), nil)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	// 01:00 UTC Wednesday is 09:00 in UTC+8
	rep := svc.TickAt(context.Background(), wed(1, 0, 0))
	assert.Len(t, rep.Fired, 1)
}
