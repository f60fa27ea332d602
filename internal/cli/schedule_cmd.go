package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"reportd/internal/config"
	"reportd/internal/configstore"
	"reportd/internal/schedule"
	"reportd/pkg/errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newScheduleCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage report schedules",
	}
	cmd.AddCommand(
		newScheduleAddCmd(opts),
		newScheduleRemoveCmd(opts),
		newScheduleListCmd(opts),
	)
	return cmd
}

type scheduleFlags struct {
	once   bool
	weekly bool
	days   []string
	at     string
	clock  string
}

// build turns flags into schedules. now anchors --once expansion.
func (f scheduleFlags) build(now time.Time, loc *time.Location) ([]schedule.Schedule, error) {
	if f.once && f.weekly {
		return nil, errors.New("--once and --weekly are mutually exclusive")
	}
	if f.at != "" {
		if f.weekly {
			return nil, errors.New("--at only applies to one-time schedules")
		}
		t, err := time.ParseInLocation(schedule.DatetimeLayout, f.at, loc)
		if err != nil {
			return nil, errors.WithHintf(errors.Wrap(err, "--at"), "use %q", schedule.DatetimeLayout)
		}
		return []schedule.Schedule{schedule.Once{At: t}}, nil
	}

	clock, err := schedule.ParseClock(f.clock)
	if err != nil {
		return nil, errors.WithHint(err, "--time takes HH:MM, e.g. 09:30")
	}
	var days []int
	for _, raw := range f.days {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			d, err := schedule.ParseWeekday(part)
			if err != nil {
				return nil, errors.WithHint(err, "--days takes mon..sun or 1..7")
			}
			days = append(days, d)
		}
	}

	if f.once {
		list, err := schedule.NewOnce(now.In(loc), days, clock)
		if err != nil {
			return nil, err
		}
		out := make([]schedule.Schedule, 0, len(list))
		for _, o := range list {
			out = append(out, o)
		}
		return out, nil
	}
	w, err := schedule.NewWeekly(days, clock)
	if err != nil {
		return nil, err
	}
	return []schedule.Schedule{w}, nil
}

func newScheduleAddCmd(opts *Options) *cobra.Command {
	var f scheduleFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a weekly or one-time schedule",
		Example: "  reportd schedule add --days mon,wed --time 09:00\n" +
			"  reportd schedule add --once --days fri --time 17:30\n" +
			"  reportd schedule add --at \"2025-01-06 08:00\"",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, cs *configstore.Store) error {
				list, err := f.build(time.Now(), cs.Location())
				if err != nil {
					return err
				}
				added, err := cs.AddSchedules(cmd.Context(), list...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range list {
					if schedule.Contains(added, s) {
						fmt.Fprintf(out, "%s: %s\n", pterm.FgGreen.Sprint("Added"), schedule.Describe(s))
					} else {
						fmt.Fprintf(out, "%s: %s\n", pterm.FgYellow.Sprint("Already scheduled"), schedule.Describe(s))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&f.once, "once", false, "fire once on the next matching day(s)")
	cmd.Flags().BoolVar(&f.weekly, "weekly", false, "repeat every week (default)")
	cmd.Flags().StringSliceVar(&f.days, "days", nil, "weekdays, e.g. mon,wed or 1,3")
	cmd.Flags().StringVar(&f.clock, "time", "", "time of day HH:MM")
	cmd.Flags().StringVar(&f.at, "at", "", "exact one-time datetime \"YYYY-MM-DD HH:MM\"")
	return cmd
}

func newScheduleRemoveCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove INDEX...",
		Short: "Remove schedules by their number in `schedule list`",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, cs *configstore.Store) error {
				list := cs.Snapshot().Schedules
				keys := make([]string, 0, len(args))
				for _, a := range args {
					i, err := strconv.Atoi(a)
					if err != nil || i < 1 || i > len(list) {
						return errors.WithHintf(errors.Newf("no schedule #%s", a), "valid numbers are 1..%d", len(list))
					}
					keys = append(keys, list[i-1].Key())
				}
				n, err := cs.RemoveSchedules(cmd.Context(), keys...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d schedule(s)\n", n)
				return nil
			})
		},
	}
}

func newScheduleListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules with their next run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, cs *configstore.Store) error {
				list := cs.Snapshot().Schedules
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No schedules.")
					return nil
				}
				table, err := scheduleTable(list, time.Now().In(cs.Location()))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func scheduleTable(list []schedule.Schedule, now time.Time) (string, error) {
	data := pterm.TableData{{"#", "Schedule", "Next run"}}
	for i, s := range list {
		next := "-"
		if t, ok := schedule.Next(s, now); ok {
			next = t.Format(schedule.DatetimeLayout)
			if t.Before(now) {
				next += " (due)"
			}
		}
		data = append(data, []string{strconv.Itoa(i + 1), schedule.Describe(s), next})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", err
	}
	return out + "\n", nil
}
