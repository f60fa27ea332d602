package cli

import (
	"fmt"
	"os"
	"time"

	"reportd/internal/config"
	"reportd/internal/configstore"
	"reportd/internal/task/runner"
	"reportd/pkg/errors"
	logx "reportd/pkg/logx"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate reports for every monitored group now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(cfg *config.Config, cs *configstore.Store) error {
				files := cs.Snapshot().Files
				if len(files) == 0 {
					return errors.WithHint(runner.ErrNoGroups, "add one with: reportd files add <dir>")
				}
				timeout, err := config.ParseDurationField("runner.timeout", cfg.Runner.Timeout)
				if err != nil {
					return err
				}
				launcher := runner.ExecLauncher{Executable: cfg.Runner.Executable}
				if _, err := os.Stat(opts.Settings); err == nil {
					launcher.Settings = opts.Settings
				}
				log := opts.logger(cfg).With(logx.String("comp", "runner"))
				r := runner.New(launcher, runner.Options{
					Timeout:       timeout,
					LogRatePerSec: cfg.Runner.LogRatePerSec,
					OutputTail:    cfg.Runner.OutputTail,
				}, log, nil)

				sum, err := r.Run(cmd.Context(), "manual", files)
				if err != nil {
					return err
				}
				printSummary(cmd, sum)
				if sum.Failed > 0 {
					return errors.Newf("%d of %d groups failed", sum.Failed, len(sum.Groups))
				}
				return nil
			})
		},
	}
}

func printSummary(cmd *cobra.Command, sum runner.Summary) {
	out := cmd.OutOrStdout()
	for _, g := range sum.Groups {
		took := g.Elapsed.Round(time.Millisecond)
		if g.OK {
			line := fmt.Sprintf("%s %s (%s)", pterm.FgGreen.Sprint("✓"), g.Group, took)
			if g.Artifact != "" {
				line += " -> " + g.Artifact
			}
			fmt.Fprintln(out, line)
			continue
		}
		fmt.Fprintf(out, "%s %s (%s): %s\n", pterm.FgRed.Sprint("✗"), g.Group, took, g.Error)
		for _, l := range g.Output {
			fmt.Fprintln(out, "    "+l)
		}
	}
	fmt.Fprintf(out, "%d succeeded, %d failed in %s\n", sum.Succeeded, sum.Failed, sum.Elapsed.Round(time.Millisecond))
}
