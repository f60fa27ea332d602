package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ModeOnce   = "once"
	ModeWeekly = "weekly"

	// DatetimeLayout is the persisted form of a Once schedule's next run.
	DatetimeLayout = "2006-01-02 15:04"
	clockLayout    = "15:04"
)

var (
	ErrBadClock    = errors.New("time must be HH:MM")
	ErrBadWeekday  = errors.New("weekday must be between 1 (Monday) and 7 (Sunday)")
	ErrNoWeekdays  = errors.New("at least one weekday is required")
	ErrUnknownMode = errors.New("mode must be once or weekly")
)

// Clock is a wall-clock time of day at minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func ClockOf(t time.Time) Clock { return Clock{Hour: t.Hour(), Minute: t.Minute()} }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Schedule is one of Once, Weekly or Invalid.
type Schedule interface {
	// Key identifies the schedule for duplicate detection and fired-key
	// bookkeeping.
	Key() string
	// Record is the persisted form.
	Record() Record

	isSchedule()
}

// Once fires a single time at At (minute precision, local wall clock) and is
// then removed.
type Once struct {
	At time.Time
}

// Weekly fires every week on each of Weekdays (ISO, Monday=1) at At.
type Weekly struct {
	Weekdays []int
	At       Clock
}

// Invalid carries a persisted entry that could not be parsed. It never
// matches and is preserved verbatim so corrupt state is not silently lost.
type Invalid struct {
	Raw    Record
	Reason string
}

func (Once) isSchedule()    {}
func (Weekly) isSchedule()  {}
func (Invalid) isSchedule() {}

func (s Once) Key() string { return ModeOnce + "|" + s.At.Format(DatetimeLayout) }

func (s Weekly) Key() string {
	return ModeWeekly + "|" + joinInts(s.Weekdays) + "|" + s.At.String()
}

func (s Invalid) Key() string {
	return "invalid|" + s.Raw.Mode + "|" + joinInts(s.Raw.Weekdays) + "|" + s.Raw.Time + "|" + s.Raw.Datetime
}

func (s Once) Record() Record {
	return Record{
		Mode:     ModeOnce,
		Weekdays: []int{ISOWeekday(s.At)},
		Time:     ClockOf(s.At).String(),
		Datetime: s.At.Format(DatetimeLayout),
	}
}

func (s Weekly) Record() Record {
	return Record{
		Mode:     ModeWeekly,
		Weekdays: append([]int(nil), s.Weekdays...),
		Time:     s.At.String(),
	}
}

func (s Invalid) Record() Record { return s.Raw }

// Describe renders a schedule for humans (CLI tables, logs).
func Describe(s Schedule) string {
	switch v := s.(type) {
	case Once:
		return "once " + v.At.Format(DatetimeLayout) + " (" + v.At.Weekday().String()[:3] + ")"
	case Weekly:
		names := make([]string, 0, len(v.Weekdays))
		for _, d := range v.Weekdays {
			names = append(names, WeekdayName(d))
		}
		return "weekly " + strings.Join(names, ",") + " " + v.At.String()
	case Invalid:
		return "invalid (" + v.Reason + ")"
	default:
		return "?"
	}
}

// NewWeekly validates weekdays (deduplicated, sorted) and builds a Weekly.
func NewWeekly(weekdays []int, at Clock) (Weekly, error) {
	days, err := normalizeWeekdays(weekdays)
	if err != nil {
		return Weekly{}, err
	}
	return Weekly{Weekdays: days, At: at}, nil
}

// NewOnce expands a one-time request into one Once per weekday: the next
// date falling on that weekday whose HH:MM has not already passed relative
// to now. Results are ordered by At.
func NewOnce(now time.Time, weekdays []int, at Clock) ([]Once, error) {
	days, err := normalizeWeekdays(weekdays)
	if err != nil {
		return nil, err
	}
	now = now.Truncate(time.Minute)
	today := ISOWeekday(now)
	out := make([]Once, 0, len(days))
	for _, wd := range days {
		ahead := (wd - today + 7) % 7
		y, m, d := now.Date()
		candidate := time.Date(y, m, d+ahead, at.Hour, at.Minute, 0, 0, now.Location())
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		out = append(out, Once{At: candidate})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// ISOWeekday returns Monday=1 .. Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

var weekdayNames = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func WeekdayName(d int) string {
	if d < 1 || d > 7 {
		return strconv.Itoa(d)
	}
	return weekdayNames[d]
}

// ParseWeekday accepts 1..7 or an English day name/abbreviation.
func ParseWeekday(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 7 {
			return 0, fmt.Errorf("%w: %d", ErrBadWeekday, n)
		}
		return n, nil
	}
	if len(s) >= 3 {
		for i := 1; i <= 7; i++ {
			if strings.HasPrefix(strings.ToLower(time.Weekday(i%7).String()), s) {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadWeekday, s)
}

func normalizeWeekdays(in []int) ([]int, error) {
	if len(in) == 0 {
		return nil, ErrNoWeekdays
	}
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, d := range in {
		if d < 1 || d > 7 {
			return nil, fmt.Errorf("%w: %d", ErrBadWeekday, d)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out, nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
