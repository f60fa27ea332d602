package schedule

import (
	"sort"
	"strings"
	"time"
)

// Record is the persisted JSON form of a schedule.
//
// Once records carry the datetime plus the derived singleton weekday and
// time so a human reading the document sees the full picture; only
// datetime is authoritative when loading.
type Record struct {
	Mode     string `json:"mode"`
	Weekdays []int  `json:"weekdays,omitempty"`
	Time     string `json:"time,omitempty"`
	Datetime string `json:"datetime,omitempty"`
}

// Parse converts a persisted record into a Schedule. It never fails:
// records that cannot be interpreted become Invalid. Once datetimes are
// interpreted in loc.
func Parse(r Record, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.Local
	}
	switch strings.ToLower(strings.TrimSpace(r.Mode)) {
	case ModeOnce:
		if strings.TrimSpace(r.Datetime) == "" {
			return Invalid{Raw: r, Reason: "missing datetime"}
		}
		at, err := time.ParseInLocation(DatetimeLayout, strings.TrimSpace(r.Datetime), loc)
		if err != nil {
			return Invalid{Raw: r, Reason: "unparsable datetime"}
		}
		return Once{At: at}
	case ModeWeekly:
		if strings.TrimSpace(r.Time) == "" {
			return Invalid{Raw: r, Reason: "missing time"}
		}
		clock, err := ParseClock(r.Time)
		if err != nil {
			return Invalid{Raw: r, Reason: "unparsable time"}
		}
		w, err := NewWeekly(r.Weekdays, clock)
		if err != nil {
			return Invalid{Raw: r, Reason: err.Error()}
		}
		return w
	default:
		return Invalid{Raw: r, Reason: ErrUnknownMode.Error()}
	}
}

func ParseAll(records []Record, loc *time.Location) []Schedule {
	out := make([]Schedule, 0, len(records))
	for _, r := range records {
		out = append(out, Parse(r, loc))
	}
	return out
}

func Records(schedules []Schedule) []Record {
	out := make([]Record, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, s.Record())
	}
	return out
}

// Normalize drops duplicate Once and Weekly entries (keeping the first
// occurrence) and sorts: Once by datetime, then Weekly by (weekdays, time),
// then Invalid entries in their original order. Invalid entries are all
// kept, identical ones included.
func Normalize(in []Schedule) []Schedule {
	seen := make(map[string]struct{}, len(in))
	out := make([]Schedule, 0, len(in))
	for _, s := range in {
		if s == nil {
			continue
		}
		if _, ok := s.(Invalid); ok {
			out = append(out, s)
			continue
		}
		k := s.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func rank(s Schedule) int {
	switch s.(type) {
	case Once:
		return 0
	case Weekly:
		return 1
	default:
		return 2
	}
}

func less(a, b Schedule) bool {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch x := a.(type) {
	case Once:
		return x.At.Before(b.(Once).At)
	case Weekly:
		y := b.(Weekly)
		if c := compareInts(x.Weekdays, y.Weekdays); c != 0 {
			return c < 0
		}
		if x.At.Hour != y.At.Hour {
			return x.At.Hour < y.At.Hour
		}
		return x.At.Minute < y.At.Minute
	default:
		return false
	}
}

// compareInts orders slices lexicographically, shorter prefix first.
func compareInts(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Contains reports whether list holds a schedule with the same key as s.
func Contains(list []Schedule, s Schedule) bool {
	k := s.Key()
	for _, x := range list {
		if x.Key() == k {
			return true
		}
	}
	return false
}

// SameKeys reports whether a and b hold the same keys in the same order.
func SameKeys(a, b []Schedule) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}
