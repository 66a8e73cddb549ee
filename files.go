package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/portal-go/internal/portal"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE:  runLs,
	}

	cmd.Flags().Bool("reports", false, "fetch each file's report and show its totals")

	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <local-path>...",
		Short: "Upload files for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpload,
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete uploaded files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <id>",
		Short: "Display file metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <id> [local-path]",
		Short: "Download an uploaded file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runDownload,
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <id>",
		Short: "Show the processing report of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
}

// parseFileID parses a positive file ID argument.
func parseFileID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file ID %q", arg)
	}

	return id, nil
}

// fileWithReport is the JSON schema for `ls --json`.
type fileWithReport struct {
	portal.FileRecord
	Report *portal.Report `json:"report,omitempty"`
}

func runLs(cmd *cobra.Command, _ []string) error {
	withReports, _ := cmd.Flags().GetBool("reports")

	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		files, err := s.client.ListFiles(ctx, s.manager)
		if err != nil {
			return err
		}

		var reports map[int64]*portal.Report
		if withReports {
			reports = s.client.FetchReports(ctx, files)
		}

		w := cmd.OutOrStdout()

		if flagJSON {
			rows := make([]fileWithReport, 0, len(files))
			for i := range files {
				rows = append(rows, fileWithReport{FileRecord: files[i], Report: reports[files[i].ID]})
			}

			return printJSON(w, rows)
		}

		printFileTable(w, files, reports, withReports)

		return nil
	})
}

func printFileTable(w io.Writer, files []portal.FileRecord, reports map[int64]*portal.Report, withReports bool) {
	var headers []string
	if stdoutIsTerminal() {
		headers = []string{"ID", "SIZE", "UPLOADED", "REPORT", "NAME"}
		if withReports {
			headers = []string{"ID", "SIZE", "UPLOADED", "QUOTAS", "SPECIALIZATIONS", "NOTES", "NAME"}
		}
	}

	rows := make([][]string, 0, len(files))

	for i := range files {
		f := &files[i]
		id := strconv.FormatInt(f.ID, 10)

		if !withReports {
			hasReport := "-"
			if f.ReportURL != "" {
				hasReport = "yes"
			}

			rows = append(rows, []string{id, out.size(f.FileSize), formatTime(f.UploadedAt), hasReport, f.FileName})

			continue
		}

		quotas, specs, notes := "-", "-", "-"
		if r := reports[f.ID]; r != nil {
			quotas = out.count(sumCounts(r.QuotaCounts))
			specs = out.count(sumCounts(r.SpecializationCounts))
			notes = out.count(sumCounts(r.NotesCounts))
		}

		rows = append(rows, []string{id, out.size(f.FileSize), formatTime(f.UploadedAt), quotas, specs, notes, f.FileName})
	}

	printTable(w, headers, rows)
}

func sumCounts(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}

	return total
}

func runUpload(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		var errs []error

		for _, path := range args {
			rec, err := uploadPath(ctx, s, path)
			if err != nil {
				if errors.Is(err, portal.ErrAuthenticationFailed) || ctx.Err() != nil {
					return err
				}

				errs = append(errs, uploadFailure(path, err))

				continue
			}

			if flagJSON {
				if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
					return err
				}

				continue
			}

			statusf("Uploaded %s as #%d (%s)\n", rec.FileName, rec.ID, out.size(rec.FileSize))
		}

		return errors.Join(errs...)
	})
}

func uploadPath(ctx context.Context, s *cliSession, path string) (*portal.FileRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	return s.client.UploadFile(ctx, s.manager, portal.Upload{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	})
}

// uploadFailure turns an upload error into the message shown for path.
func uploadFailure(path string, err error) error {
	switch {
	case errors.Is(err, portal.ErrDuplicateFile):
		return fmt.Errorf("%s: this file has already been processed recently: %w", path, err)
	case errors.Is(err, portal.ErrFileTooLarge):
		return fmt.Errorf("%s: file is larger than the %s upload limit: %w", path, out.size(resolvedCfg.MaxUploadSize), err)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}

func runRm(cmd *cobra.Command, args []string) error {
	ids := make([]int64, 0, len(args))

	for _, a := range args {
		id, err := parseFileID(a)
		if err != nil {
			return err
		}

		ids = append(ids, id)
	}

	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		for _, id := range ids {
			if err := s.client.DeleteFile(ctx, s.manager, id); err != nil {
				return err
			}

			statusf("Deleted #%d\n", id)
		}

		return nil
	})
}

func runStat(cmd *cobra.Command, args []string) error {
	id, err := parseFileID(args[0])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		rec, err := s.client.GetFileDetail(ctx, s.manager, id)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()

		if flagJSON {
			return printJSON(w, rec)
		}

		fmt.Fprintf(w, "ID:       %d\n", rec.ID)
		fmt.Fprintf(w, "Name:     %s\n", rec.FileName)
		fmt.Fprintf(w, "Size:     %s (%s bytes)\n", out.size(rec.FileSize), out.count(rec.FileSize))
		fmt.Fprintf(w, "Uploaded: %s\n", formatTime(rec.UploadedAt))
		fmt.Fprintf(w, "Stored:   %s\n", rec.StorageRef)

		if rec.ReportURL != "" {
			fmt.Fprintf(w, "Report:   %s\n", rec.ReportURL)
		}

		return nil
	})
}

func runDownload(cmd *cobra.Command, args []string) error {
	id, err := parseFileID(args[0])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		var target string
		if len(args) > 1 {
			target = args[1]
		} else {
			rec, err := s.client.GetFileDetail(ctx, s.manager, id)
			if err != nil {
				return err
			}

			target = filepath.Base(rec.FileName)
		}

		n, err := downloadTo(ctx, s, id, target)
		if err != nil {
			return err
		}

		statusf("Downloaded #%d to %s (%s)\n", id, target, out.size(n))

		return nil
	})
}

// downloadTo writes into target+".partial" and renames on success, so an
// interrupted download never leaves a truncated file under the real name.
func downloadTo(ctx context.Context, s *cliSession, id int64, target string) (int64, error) {
	partial := target + ".partial"

	f, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", partial, err)
	}

	n, err := s.client.DownloadFile(ctx, s.manager, id, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		os.Remove(partial)
		return 0, err
	}

	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return 0, fmt.Errorf("renaming %s: %w", partial, err)
	}

	return n, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	id, err := parseFileID(args[0])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *cliSession) error {
		rec, err := s.client.GetFileDetail(ctx, s.manager, id)
		if err != nil {
			return err
		}

		report, ok := s.client.FetchReport(ctx, rec.ReportURL)
		if !ok {
			statusf("No report available for #%d.\n", id)
			return nil
		}

		w := cmd.OutOrStdout()

		if flagJSON {
			return printJSON(w, report)
		}

		printReport(w, rec, report)

		return nil
	})
}

func printReport(w io.Writer, rec *portal.FileRecord, r *portal.Report) {
	fmt.Fprintf(w, "Report for #%d %s\n", rec.ID, rec.FileName)

	printCounts(w, "Quotas", r.QuotaCounts)
	printCounts(w, "Specializations", r.SpecializationCounts)
	printCounts(w, "Notes", r.NotesCounts)

	if m := r.Metadata; m != nil {
		fmt.Fprintf(w, "\nRows processed:    %s\n", out.count(m.TotalRowsProcessed))
		fmt.Fprintf(w, "Rows with quotas:  %s\n", out.count(m.RowsWithQuotas))
		fmt.Fprintf(w, "Rows with special: %s\n", out.count(m.RowsWithSpecializations))
		fmt.Fprintf(w, "Processing time:   %.2fs\n", m.ProcessingDurationSeconds)
	}
}

// printCounts prints a titled table sorted by count, largest first.
func printCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}

		return keys[i] < keys[j]
	})

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{out.count(counts[k]), k})
	}

	fmt.Fprintf(w, "\n%s (%s)\n", title, out.count(sumCounts(counts)))
	printTable(w, nil, rows)
}
