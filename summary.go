package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/portal-go/internal/portal"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show aggregate processing statistics",
		Long: `Show totals across uploaded files. Without flags the backend picks the
time window and ownership scope.`,
		Args: cobra.NoArgs,
		RunE: runSummary,
	}

	cmd.Flags().Int("days", 0, "time window in days")
	cmd.Flags().Bool("user-only", false, "only count your own files")

	return cmd
}

func runSummary(cmd *cobra.Command, _ []string) error {
	opts, err := summaryOptions(cmd)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		data, err := s.client.FetchSummary(ctx, s.manager, opts)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()

		if flagJSON {
			return printJSON(w, data)
		}

		printSummary(w, data)

		return nil
	})
}

// summaryOptions sets only the flags the user gave explicitly.
func summaryOptions(cmd *cobra.Command) (portal.SummaryOptions, error) {
	var opts portal.SummaryOptions

	if cmd.Flags().Changed("days") {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return opts, fmt.Errorf("--days must be positive, got %d", days)
		}

		opts.Days = &days
	}

	if cmd.Flags().Changed("user-only") {
		userOnly, _ := cmd.Flags().GetBool("user-only")
		opts.UserOnly = &userOnly
	}

	return opts, nil
}

func printSummary(w io.Writer, d *portal.SummaryData) {
	sum := &d.Summary
	meta := &d.Metadata

	fmt.Fprintf(w, "Period:   %s .. %s (%d days)\n", meta.DateRange.Start, meta.DateRange.End, meta.TimeRangeDays)
	fmt.Fprintf(w, "Files:    %s\n", out.count(sum.TotalFiles))
	fmt.Fprintf(w, "Avg time: %.2fs over %s files\n",
		sum.ProcessingStats.AverageProcessingTimeSeconds, out.count(sum.ProcessingStats.FilesWithProcessingData))

	quota, notes := portal.SplitQuotaCounts(sum.TotalQuotaCounts)
	printCounts(w, "Quotas", quota)
	printCounts(w, "Specializations", sum.TotalSpecializationCounts)
	printCounts(w, "Notes", notes)

	if len(sum.MostActiveDays) > 0 {
		rows := make([][]string, 0, len(sum.MostActiveDays))
		for _, day := range sum.MostActiveDays {
			rows = append(rows, []string{day.Date, strconv.FormatInt(day.Uploads, 10)})
		}

		fmt.Fprintln(w, "\nMost active days")
		printTable(w, nil, rows)
	}
}
