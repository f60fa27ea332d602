// Package cli implements the reportd command line: the daemon itself
// (serve), one-shot batches (run, generate) and editing of the report
// config document (files, schedule).
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"reportd/internal/app"
	"reportd/internal/config"
	"reportd/internal/configstore"
	"reportd/pkg/errors"
	logx "reportd/pkg/logx"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// DefaultSettings is used when --settings is not given.
const DefaultSettings = "./reportd.yaml"

type Options struct {
	Settings string
}

// NewRootCmd creates the top-level "reportd" command with all subcommands.
func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:           "reportd",
		Short:         "Scheduled sales report generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.Settings, "settings", DefaultSettings, "settings file (yaml or json)")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newGenerateCmd(opts),
		newFilesCmd(opts),
		newScheduleCmd(opts),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		PrintError(os.Stderr, err)
		return 1
	}
	return 0
}

// PrintError writes err followed by any hints attached to it.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, pterm.Error.Sprint(err.Error()))
	if hints := errors.FlattenHints(err); hints != "" {
		fmt.Fprintln(w, pterm.FgGray.Sprint("hint: "+hints))
	}
}

func (o *Options) settings() (*config.Config, error) {
	return config.NewConfigManager(o.Settings).LoadOrDefault()
}

// logger writes to stderr so stdout stays parseable.
func (o *Options) logger(cfg *config.Config) logx.Logger {
	return logx.NewWriter(cfg.Logging.Level, os.Stderr)
}

// withStore opens the report config document for the duration of fn.
func (o *Options) withStore(ctx context.Context, fn func(*config.Config, *configstore.Store) error) error {
	cfg, err := o.settings()
	if err != nil {
		return err
	}
	cs, st, err := app.OpenStore(ctx, cfg, o.logger(cfg))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, cs)
}
