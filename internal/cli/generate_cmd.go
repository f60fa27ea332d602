package cli

import (
	"fmt"

	"reportd/internal/app"
	"reportd/internal/report"
	"reportd/internal/task/runner"

	"github.com/spf13/cobra"
)

type generateFlags struct {
	report.Inputs
	template  string
	outputDir string
}

// newGenerateCmd is the report pipeline entry point; the daemon spawns it
// once per monitored group.
func newGenerateCmd(opts *Options) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build the HTML and PDF report for one set of input files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.settings()
			if err != nil {
				return err
			}
			ro := app.ReportOptions(cfg, opts.logger(cfg))
			if f.template != "" {
				ro.Template = f.template
			}
			if f.outputDir != "" {
				ro.OutputDir = f.outputDir
			}
			art, err := report.Generate(cmd.Context(), f.Inputs, ro)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), runner.ArtifactPrefix+art.PDF)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Sales, "sales", "", "sales transactions CSV")
	cmd.Flags().StringVar(&f.SalesInfo, "sales-info", "", "product reference CSV")
	cmd.Flags().StringVar(&f.Client, "client", "", "client reference CSV")
	cmd.Flags().StringVar(&f.template, "template", "", "override report.template")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "override report.output_dir")
	_ = cmd.MarkFlagRequired("sales")
	_ = cmd.MarkFlagRequired("sales-info")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}
