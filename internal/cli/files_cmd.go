package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"reportd/internal/config"
	"reportd/internal/configstore"
	"reportd/pkg/errors"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newFilesCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage monitored file groups",
	}
	cmd.AddCommand(
		newFilesAddCmd(opts),
		newFilesRemoveCmd(opts),
		newFilesListCmd(opts),
	)
	return cmd
}

// absGroup makes every path of a group entry absolute so the daemon does
// not depend on the CLI's working directory.
func absGroup(entry string) (string, error) {
	parts := filepath.SplitList(entry)
	for i, p := range parts {
		abs, err := filepath.Abs(strings.TrimSpace(p))
		if err != nil {
			return "", err
		}
		parts[i] = abs
	}
	if len(parts) == 3 {
		return configstore.JoinGroup(parts[0], parts[1], parts[2]), nil
	}
	return strings.Join(parts, string(filepath.ListSeparator)), nil
}

func printChanges(cmd *cobra.Command, changes []configstore.FileChange) {
	for _, c := range changes {
		status := string(c.Status)
		switch c.Status {
		case configstore.StatusAdded, configstore.StatusRemoved:
			status = pterm.FgGreen.Sprint(status)
		default:
			status = pterm.FgYellow.Sprint(status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status, c.Path)
	}
}

func newFilesAddCmd(opts *Options) *cobra.Command {
	var sales, salesInfo, client string
	cmd := &cobra.Command{
		Use:   "add [DIR...]",
		Short: "Add group directories, or one explicit group via --sales/--sales-info/--client",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := append([]string(nil), args...)
			if sales != "" || salesInfo != "" || client != "" {
				if sales == "" || salesInfo == "" || client == "" {
					return errors.WithHint(errors.New("incomplete file group"), "--sales, --sales-info and --client must be given together")
				}
				entries = append(entries, configstore.JoinGroup(sales, salesInfo, client))
			}
			if len(entries) == 0 {
				return errors.WithHint(errors.New("nothing to add"), "pass a group directory or --sales/--sales-info/--client")
			}
			for i, e := range entries {
				abs, err := absGroup(e)
				if err != nil {
					return err
				}
				if _, err := configstore.ResolveGroup(abs); err != nil {
					return errors.WithHint(err, "a group is a directory with sales.csv, sales_info.csv and client.csv")
				}
				entries[i] = abs
			}
			return opts.withStore(cmd.Context(), func(_ *config.Config, cs *configstore.Store) error {
				changes, err := cs.AddFiles(cmd.Context(), entries...)
				if err != nil {
					return err
				}
				printChanges(cmd, changes)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sales, "sales", "", "sales transactions CSV")
	cmd.Flags().StringVar(&salesInfo, "sales-info", "", "product reference CSV")
	cmd.Flags().StringVar(&client, "client", "", "client reference CSV")
	return cmd
}

func newFilesRemoveCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ENTRY...",
		Short: "Stop monitoring file groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := absGroup(a)
				if err != nil {
					return err
				}
				entries = append(entries, abs)
			}
			return opts.withStore(cmd.Context(), func(_ *config.Config, cs *configstore.Store) error {
				changes, err := cs.RemoveFiles(cmd.Context(), entries...)
				if err != nil {
					return err
				}
				printChanges(cmd, changes)
				return nil
			})
		},
	}
}

func newFilesListCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored file groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(_ *config.Config, cs *configstore.Store) error {
				files := cs.Snapshot().Files
				if len(files) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No monitored files.")
					return nil
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			})
		},
	}
}
