package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fts-tools/ftsctl/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit   int
		batchID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the transfer log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit, batchID)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max entries to show")
	cmd.Flags().StringVar(&batchID, "batch", "", "show only entries of one batch")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int, batchID string) error {
	sess, cleanup, err := openSession(buildLogger())
	if err != nil {
		return err
	}
	defer cleanup()

	var entries []history.Entry

	if batchID != "" {
		entries, err = sess.History().Batch(cmd.Context(), batchID)
	} else {
		entries, err = sess.History().Recent(cmd.Context(), limit)
	}

	if err != nil {
		return err
	}

	if flagJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
	}

	if len(entries) == 0 {
		statusf(flagQuiet, "No log entries.\n")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		subject := e.FileName
		if subject == "" {
			subject = "-"
		}

		detail := e.Detail
		if detail == "" {
			detail = "-"
		}

		rows = append(rows, []string{
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			e.Customer,
			e.Operation,
			e.Prefix,
			subject,
			e.Outcome,
			detail,
		})
	}

	printTable(cmd.OutOrStdout(), []string{"TIME", "CUSTOMER", "OP", "PREFIX", "FILE", "OUTCOME", "DETAIL"}, rows)

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries\n", len(entries))

	return nil
}
