package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/handlerchain/pkg/journal"
)

func historyCmd() *cobra.Command {
	var (
		journalPath string
		limit       int
		id          string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List executions recorded in a journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if journalPath == "" {
				return errors.New("--journal is required")
			}
			store, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if id != "" {
				rec, err := store.Get(id)
				if err != nil {
					return err
				}
				printRecord(cmd.OutOrStdout(), rec)
				return nil
			}
			recs, err := store.List(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "path of the execution journal")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records to list, newest first (0 for all)")
	cmd.Flags().StringVar(&id, "id", "", "show the handler breakdown of a single record")
	return cmd
}

func printHistory(w io.Writer, recs []*journal.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no executions recorded")
		return
	}
	maxChain := 5
	for _, r := range recs {
		maxChain = max(maxChain, len(r.Chain))
	}
	fmt.Fprintf(w, "%-26s  %-20s  %-*s  %-9s  %10s  %s\n", "ID", "STARTED", maxChain, "CHAIN", "STATUS", "ELAPSED", "HANDLERS")
	for _, r := range recs {
		fmt.Fprintf(w, "%-26s  %-20s  %-*s  %-9s  %10s  %d\n",
			r.ID, r.StartedAt.Format(time.RFC3339), maxChain, r.Chain, r.Status,
			r.Elapsed.Round(time.Millisecond), len(r.Handlers))
	}
}

func printRecord(w io.Writer, r *journal.Record) {
	fmt.Fprintf(w, "Execution %s  chain=%s  status=%s  started=%s  elapsed=%s\n",
		r.ExecutionID, r.Chain, r.Status, r.StartedAt.Format(time.RFC3339), r.Elapsed.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
	}
	for _, h := range r.Handlers {
		line := fmt.Sprintf("  %-20s  %-7s  attempts=%d  %s", h.Name, h.Outcome, h.Attempts, h.Elapsed.Round(time.Microsecond))
		if h.Error != "" {
			line += "  " + truncate(h.Error, 80)
		}
		fmt.Fprintln(w, line)
	}
}
