package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func mustWeekly(t *testing.T, days []int, clock string) Weekly {
	t.Helper()
	c, err := ParseClock(clock)
	require.NoError(t, err)
	w, err := NewWeekly(days, c)
	require.NoError(t, err)
	return w
}

func TestWeeklyMatchesEveryMinuteOfWeek(t *testing.T) {
	t.Parallel()
	w := mustWeekly(t, []int{5, 1, 3, 3}, "09:30")
	require.Equal(t, []int{1, 3, 5}, w.Weekdays)

	start := at(1, 0, 0)
	hits := 0
	for m := 0; m < 7*24*60; m++ {
		now := start.Add(time.Duration(m) * time.Minute)
		wd := ISOWeekday(now)
		want := (wd == 1 || wd == 3 || wd == 5) && now.Hour() == 9 && now.Minute() == 30
		if got := Matches(w, now); got != want {
			t.Fatalf("Matches at %s = %v, want %v", now.Format(time.RFC1123), got, want)
		}
		if want {
			hits++
		}
	}
	assert.Equal(t, 3, hits)
}

func TestWednesdayScenario(t *testing.T) {
	t.Parallel()
	w := mustWeekly(t, []int{3}, "09:00")
	list := []Schedule{w}

	res := Due(at(3, 9, 0), list, nil)
	require.Len(t, res.Fire, 1)
	assert.False(t, res.Changed)
	assert.Len(t, res.Remaining, 1)

	res = Due(at(3, 9, 1), list, nil)
	assert.Empty(t, res.Fire)
}

func TestOnceFiresAndIsRemovedOnce(t *testing.T) {
	t.Parallel()
	o := Once{At: at(3, 9, 0)}
	list := []Schedule{o, mustWeekly(t, []int{1}, "08:00")}

	res := Due(at(3, 8, 59), list, nil)
	assert.Empty(t, res.Fire)
	assert.False(t, res.Changed)

	// a missed tick still fires
	now := at(3, 9, 7)
	res = Due(now, list, nil)
	require.Len(t, res.Fire, 1)
	assert.Equal(t, o.Key(), res.Fire[0].Key())
	assert.True(t, res.Changed)
	require.Len(t, res.Remaining, 1)
	assert.IsType(t, Weekly{}, res.Remaining[0])

	res = Due(now.Add(15*time.Second), res.Remaining, nil)
	assert.Empty(t, res.Fire)
	assert.False(t, res.Changed)
}

func TestDueDeduplicatesWithinMinute(t *testing.T) {
	t.Parallel()
	w := mustWeekly(t, []int{3}, "09:00")
	list := []Schedule{w}
	fired := map[string]struct{}{}

	now := at(3, 9, 0)
	for i := 0; i < 4; i++ {
		tick := now.Add(time.Duration(i*15) * time.Second)
		res := Due(tick, list, fired)
		if i == 0 {
			require.Len(t, res.Fire, 1)
		} else {
			assert.Empty(t, res.Fire, "tick %d", i)
		}
		for _, k := range res.FiredKeys {
			fired[k] = struct{}{}
		}
	}
	assert.Len(t, fired, 1)
}

func TestDueKeepsOnceRemovalEvenWhenAlreadyFired(t *testing.T) {
	t.Parallel()
	now := at(3, 9, 0)
	o := Once{At: now}
	fired := map[string]struct{}{FiredKey(now, o): {}}

	res := Due(now, []Schedule{o}, fired)
	assert.Empty(t, res.Fire)
	assert.Empty(t, res.Remaining)
	assert.True(t, res.Changed)
}

func TestInvalidPassesThrough(t *testing.T) {
	t.Parallel()
	records := []Record{
		{Mode: ModeOnce},
		{Mode: ModeOnce, Datetime: "tomorrow"},
		{Mode: ModeWeekly, Weekdays: []int{3}},
		{Mode: ModeWeekly, Time: "09:00"},
		{Mode: "hourly", Time: "09:00"},
	}
	list := ParseAll(records, time.UTC)
	for i, s := range list {
		require.IsType(t, Invalid{}, s, "record %d", i)
	}

	res := Due(at(3, 9, 0), list, nil)
	assert.Empty(t, res.Fire)
	assert.False(t, res.Changed)
	assert.Equal(t, records, Records(res.Remaining))
}

func TestNormalizeKeepsIdenticalInvalidEntries(t *testing.T) {
	t.Parallel()
	bad := Record{Mode: "hourly", Time: "09:00"}
	w := mustWeekly(t, []int{1}, "08:00")
	list := Normalize(append(ParseAll([]Record{bad, bad}, time.UTC), w, w))
	require.Len(t, list, 3)
	assert.Equal(t, w, list[0])
	assert.Equal(t, []Record{bad, bad}, Records(list[1:]))
}

func TestNewOnceRollsOverToNextWeek(t *testing.T) {
	t.Parallel()
	now := at(3, 10, 0) // Wednesday

	past, err := NewOnce(now, []int{3}, Clock{Hour: 9})
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, at(10, 9, 0), past[0].At)

	later, err := NewOnce(now, []int{3}, Clock{Hour: 11})
	require.NoError(t, err)
	assert.Equal(t, at(3, 11, 0), later[0].At)

	exact, err := NewOnce(now, []int{3}, Clock{Hour: 10})
	require.NoError(t, err)
	assert.Equal(t, now, exact[0].At)

	multi, err := NewOnce(now, []int{7, 1}, Clock{Hour: 8, Minute: 15})
	require.NoError(t, err)
	require.Len(t, multi, 2)
	assert.Equal(t, at(7, 8, 15), multi[0].At)
	assert.Equal(t, at(8, 8, 15), multi[1].At)
	assert.Equal(t, []int{7}, multi[0].Record().Weekdays)

	_, err = NewOnce(now, nil, Clock{})
	assert.ErrorIs(t, err, ErrNoWeekdays)
	_, err = NewOnce(now, []int{8}, Clock{})
	assert.ErrorIs(t, err, ErrBadWeekday)
}

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	t.Parallel()
	w1 := mustWeekly(t, []int{1, 3}, "09:00")
	w2 := mustWeekly(t, []int{1}, "10:00")
	w3 := mustWeekly(t, []int{1}, "08:00")
	o1 := Once{At: at(5, 9, 0)}
	o2 := Once{At: at(4, 9, 0)}
	bad := Invalid{Raw: Record{Mode: "x"}, Reason: "r"}

	got := Normalize([]Schedule{w1, bad, o1, w2, w1, o2, w3, o1})
	keys := make([]string, 0, len(got))
	for _, s := range got {
		keys = append(keys, s.Key())
	}
	assert.Equal(t, []string{
		o2.Key(), o1.Key(), w3.Key(), w2.Key(), w1.Key(), bad.Key(),
	}, keys)
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	in := Normalize([]Schedule{
		mustWeekly(t, []int{2, 4}, "18:45"),
		Once{At: at(9, 7, 5)},
	})
	b, err := json.Marshal(Records(in))
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"mode":"once","weekdays":[2],"time":"07:05","datetime":"2024-01-09 07:05"},
		  {"mode":"weekly","weekdays":[2,4],"time":"18:45"}]`,
		string(b))

	var recs []Record
	require.NoError(t, json.Unmarshal(b, &recs))
	out := ParseAll(recs, time.UTC)
	assert.True(t, SameKeys(in, out))
}

func TestNextWeekly(t *testing.T) {
	t.Parallel()
	w := mustWeekly(t, []int{3, 7}, "09:00")
	assert.Equal(t, "0 9 * * 3,0", CronSpec(w))

	next, ok := Next(w, at(3, 10, 0))
	require.True(t, ok)
	assert.Equal(t, at(7, 9, 0), next)

	_, ok = Next(Invalid{}, at(3, 10, 0))
	assert.False(t, ok)
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]int{"1": 1, "7": 7, "mon": 1, "Sunday": 7, "wed": 3} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("0")
	assert.ErrorIs(t, err, ErrBadWeekday)
	_, err = ParseWeekday("xx")
	assert.Error(t, err)
}
