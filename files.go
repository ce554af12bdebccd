package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fts-tools/ftsctl/internal/session"
)

func newPrefixesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prefixes",
		Short: "List storage prefixes for the selected customer",
		Args:  cobra.NoArgs,
		RunE:  runPrefixes,
	}
}

func newLsCmd() *cobra.Command {
	var (
		sortCol string
		desc    bool
		filter  string
	)

	cmd := &cobra.Command{
		Use:   "ls PREFIX",
		Short: "List files under a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd, args[0], sortCol, desc, filter)
		},
	}

	cmd.Flags().StringVar(&sortCol, "sort", "name", "sort column: name, size, created, modified, status")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	cmd.Flags().StringVar(&filter, "filter", "", "show only files whose name contains this text")

	return cmd
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put PREFIX FILE...",
		Short: "Upload local files to a prefix",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(cmd, args[0], args[1:])
		},
	}
}

func newGetCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "get PREFIX FILE...",
		Short: "Download remote files from a prefix",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], args[1:], dest)
		},
	}

	cmd.Flags().StringVar(&dest, "dest", ".", "destination directory")

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm PREFIX FILE...",
		Short: "Delete remote files from a prefix",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd, args[0], args[1:])
		},
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv PREFIX FILE NEW_PREFIX [NEW_NAME]",
		Short: "Move a remote file to another prefix",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			newName := args[1]
			if len(args) == 4 {
				newName = args[3]
			}
			return runMv(cmd, args[0], args[1], args[2], newName)
		},
	}
}

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export PREFIX",
		Short: "Export a prefix's file listing as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], out)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	return cmd
}

func runPrefixes(cmd *cobra.Command, _ []string) error {
	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := sess.Client()
	if err != nil {
		return err
	}

	prefixes, err := client.ListPrefixes(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(prefixes)
	}

	for _, p := range prefixes {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}

	return nil
}

func runLs(cmd *cobra.Command, prefix, sortCol string, desc bool, filter string) error {
	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	listing, err := sess.RefreshListing(cmd.Context(), prefix)
	if err != nil {
		return err
	}

	col, err := session.ParseColumn(sortCol)
	if err != nil {
		return err
	}

	listing.SortBy(col)
	if desc {
		listing.SortBy(col)
	}

	files := listing.Filter(filter)

	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(files)
	}

	if len(files) == 0 {
		statusf(flagQuiet, "No files found.\n")
		return nil
	}

	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			f.Name,
			formatSize(f.Size),
			formatDate(f.CreatedDate),
			formatDate(f.ModifiedDate),
			f.ScanStatus,
		})
	}

	printTable(cmd.OutOrStdout(), []string{"NAME", "SIZE", "CREATED", "MODIFIED", "SCAN"}, rows)

	return nil
}

func runPut(cmd *cobra.Command, prefix string, paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("local file %s: %w", p, err)
		}
	}

	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	return runBatch(cmd, "upload", prefix, func(ctx context.Context) (*session.BatchOutcome, error) {
		return sess.Upload(ctx, prefix, paths)
	})
}

func runGet(cmd *cobra.Command, prefix string, names []string, dest string) error {
	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	return runBatch(cmd, "download", prefix, func(ctx context.Context) (*session.BatchOutcome, error) {
		return sess.Download(ctx, prefix, names, dest)
	})
}

func runRm(cmd *cobra.Command, prefix string, names []string) error {
	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	return runBatch(cmd, "delete", prefix, func(ctx context.Context) (*session.BatchOutcome, error) {
		return sess.DeleteFiles(ctx, prefix, names)
	})
}

// runBatch executes one bulk operation through the batch supervisor: the
// whole lifecycle — intent, fan-out, join — runs on a worker goroutine
// while the command goroutine drains completion events.
func runBatch(cmd *cobra.Command, operation, prefix string, task func(context.Context) (*session.BatchOutcome, error)) error {
	sup := session.NewSupervisor(buildLogger())

	sup.Start(cmd.Context(), operation, prefix, task)
	sup.Close()

	var batchErr error

	for ev := range sup.Events() {
		if ev.Err != nil {
			batchErr = ev.Err
			continue
		}

		if err := reportOutcome(cmd, ev.Outcome); err != nil {
			batchErr = err
		}
	}

	return batchErr
}

func runMv(cmd *cobra.Command, prefix, name, newPrefix, newName string) error {
	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := sess.Move(cmd.Context(), prefix, name, newPrefix, newName); err != nil {
		return err
	}

	statusf(flagQuiet, "Moved %s/%s to %s/%s.\n", prefix, name, newPrefix, newName)

	return nil
}

func runExport(cmd *cobra.Command, prefix, out string) error {
	sess, cleanup, err := selectedSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	listing, err := sess.RefreshListing(cmd.Context(), prefix)
	if err != nil {
		return err
	}

	if out == "" {
		return listing.ExportCSV(cmd.OutOrStdout())
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}

	if err := listing.ExportCSV(f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	statusf(flagQuiet, "Exported %d files to %s.\n", len(listing.Files), out)

	return nil
}

// reportOutcome prints a batch summary and returns an error when any item
// failed, so the process exit code reflects partial failure.
func reportOutcome(cmd *cobra.Command, outcome *session.BatchOutcome) error {
	if flagJSON {
		if err := json.NewEncoder(cmd.OutOrStdout()).Encode(outcomeJSON(outcome)); err != nil {
			return err
		}
	} else {
		statusf(flagQuiet, "%s: %d succeeded, %d failed (batch %s)\n",
			outcome.Operation, outcome.Summary.Succeeded, outcome.Summary.Failed, outcome.BatchID)

		for _, f := range outcome.Failures {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Name, f.Err)
		}
	}

	if outcome.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", outcome.Summary.Failed, outcome.Summary.Total)
	}

	return nil
}

func outcomeJSON(outcome *session.BatchOutcome) map[string]any {
	failures := make([]map[string]string, 0, len(outcome.Failures))
	for _, f := range outcome.Failures {
		failures = append(failures, map[string]string{"name": f.Name, "error": f.Err.Error()})
	}

	return map[string]any{
		"batch_id":  outcome.BatchID,
		"operation": outcome.Operation,
		"total":     outcome.Summary.Total,
		"succeeded": outcome.Summary.Succeeded,
		"failed":    outcome.Summary.Failed,
		"failures":  failures,
	}
}
