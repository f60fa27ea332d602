package schedule

import (
	"strings"
	"time"
)

// Result is the outcome of matching one tick.
type Result struct {
	// Fire lists the schedules that are due and not yet fired this minute.
	Fire []Schedule
	// FiredKeys are the de-duplication tokens for Fire.
	FiredKeys []string
	// Remaining is the schedule list to keep: the input minus due Once
	// entries.
	Remaining []Schedule
	// Changed reports whether Remaining differs from the input.
	Changed bool
}

// MinuteKey is the prefix shared by all fired keys of now's minute.
func MinuteKey(now time.Time) string { return now.Format(DatetimeLayout) }

// FiredKey scopes a schedule key to now's minute.
func FiredKey(now time.Time, s Schedule) string { return MinuteKey(now) + "|" + s.Key() }

// InMinute reports whether a fired key belongs to now's minute.
func InMinute(key string, now time.Time) bool {
	return strings.HasPrefix(key, MinuteKey(now)+"|")
}

// Matches reports whether s is due at now. Invalid schedules never match.
func Matches(s Schedule, now time.Time) bool {
	switch v := s.(type) {
	case Once:
		return !now.Before(v.At)
	case Weekly:
		if ClockOf(now) != v.At {
			return false
		}
		today := ISOWeekday(now)
		for _, d := range v.Weekdays {
			if d == today {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Due matches schedules against now. fired is the set of keys already
// dispatched in the current minute; it is only read.
func Due(now time.Time, schedules []Schedule, fired map[string]struct{}) Result {
	var res Result
	res.Remaining = make([]Schedule, 0, len(schedules))
	local := make(map[string]struct{})

	for _, s := range schedules {
		due := Matches(s, now)
		if due {
			key := FiredKey(now, s)
			_, already := fired[key]
			_, dup := local[key]
			if !already && !dup {
				local[key] = struct{}{}
				res.Fire = append(res.Fire, s)
				res.FiredKeys = append(res.FiredKeys, key)
			}
		}
		if _, once := s.(Once); once && due {
			res.Changed = true
			continue
		}
		res.Remaining = append(res.Remaining, s)
	}
	return res
}
