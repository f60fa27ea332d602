package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSpec renders a Weekly schedule as a standard 5-field cron expression.
func CronSpec(w Weekly) string {
	days := make([]string, 0, len(w.Weekdays))
	for _, d := range w.Weekdays {
		days = append(days, fmt.Sprint(d%7)) // cron: Sunday=0
	}
	return fmt.Sprintf("%d %d * * %s", w.At.Minute, w.At.Hour, strings.Join(days, ","))
}

// Next returns the next time s will fire after now. Due-but-unfired Once
// schedules report their own datetime. ok is false for Invalid.
func Next(s Schedule, now time.Time) (time.Time, bool) {
	switch v := s.(type) {
	case Once:
		return v.At, true
	case Weekly:
		sched, err := cron.ParseStandard(CronSpec(v))
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(now), true
	default:
		return time.Time{}, false
	}
}
