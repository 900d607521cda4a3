package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/storefront/internal/retention"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Expire old local data",
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep expired profile and order data",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		ctx := cmd.Context()

		var (
			report retention.Report
			ran    = true
			err    error
		)
		if force {
			report, err = current.sweeper.ForceRun(ctx)
		} else {
			report, ran, err = current.sweeper.AutoRunIfDue(ctx)
		}
		if err != nil {
			return err
		}
		switch {
		case !ran && !report.Skipped:
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do; the last sweep is recent. Use --force to sweep anyway.")
		case report.Skipped:
			fmt.Fprintln(cmd.OutOrStdout(), "Another sweep is running")
		default:
			for job, n := range report.Removed {
				okf(cmd, "%s: removed %d", job, n)
			}
		}
		return nil
	},
}

var retentionStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sweep schedule and local storage use",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := current.sweeper.Stats(cmd.Context())
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		out := cmd.OutOrStdout()
		if stats.LastRunAt != nil {
			fmt.Fprintf(out, "Last sweep:  %s\n", stats.LastRunAt.Local().Format("2006-01-02 15:04"))
			fmt.Fprintf(out, "Next sweep:  %s\n", stats.NextRunAt.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Fprintln(out, "Last sweep:  never")
		}
		if stats.ProfileStored {
			fmt.Fprintf(out, "Profile:     stored, %d day(s) old\n", stats.ProfileAgeDays)
		} else {
			fmt.Fprintln(out, "Profile:     none")
		}
		fmt.Fprintf(out, "Orders:      %d\n", stats.Orders.TotalOrders)
		fmt.Fprintf(out, "Storage:     %s\n", stats.StorageHuman)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export everything stored about you",
	Long: `Write the contact details, order history and statistics kept on this
device to a file (or stdout with --output -).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawFormat, _ := cmd.Flags().GetString("format")
		format, err := retention.ParseFormat(rawFormat)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("output")
		if path == "-" {
			return current.sweeper.DownloadExport(cmd.Context(), cmd.OutOrStdout(), format)
		}
		if path == "" {
			path = current.sweeper.ExportFilename(format)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		if err := current.sweeper.DownloadExport(cmd.Context(), f, format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		okf(cmd, "Exported to %s", path)
		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Forget the profile and order history on this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Fprint(cmd.OutOrStdout(), "This removes your contact details and order history. Continue? [y/N] ")
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if !strings.EqualFold(strings.TrimSpace(answer), "y") {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
				return nil
			}
		}
		if err := current.sweeper.EraseAll(cmd.Context()); err != nil {
			return err
		}
		okf(cmd, "Local customer data erased")
		return nil
	},
}

func init() {
	retentionRunCmd.Flags().Bool("force", false, "sweep even if the last run is recent")
	exportCmd.Flags().String("format", "json", "export format (json or yaml)")
	exportCmd.Flags().StringP("output", "o", "", "output file; - for stdout")
	eraseCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	retentionCmd.AddCommand(retentionRunCmd, retentionStatsCmd)
	rootCmd.AddCommand(retentionCmd, exportCmd, eraseCmd)
}
