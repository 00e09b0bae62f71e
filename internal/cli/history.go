package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/performance/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		path  string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show previous runs, or the details of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				entry, err := store.Get(args[0])
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("no run with id %s", args[0])
				}
				if err != nil {
					return err
				}
				printEntry(a, entry)
				return nil
			}

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "No runs recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tNAME\tSTARTED\tDURATION\tSTATE\tREQUESTS\tERRORS\tP95")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f%%\t%.1fms\n",
					e.RunID, e.Name, e.StartTime.Local().Format(time.DateTime),
					e.Duration.Round(time.Second), e.State, e.Requests, e.ErrorRate*100, e.P95Ms)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show, 0 for all")
	cmd.Flags().StringVar(&path, "history-db", "", "history store path (default ~/.volley/history.db)")

	return cmd
}

func printEntry(a *app, e *history.Entry) {
	fmt.Fprintf(a.stdout, "Run:        %s\n", e.RunID)
	fmt.Fprintf(a.stdout, "Name:       %s\n", e.Name)
	fmt.Fprintf(a.stdout, "Started:    %s\n", e.StartTime.Local().Format(time.DateTime))
	fmt.Fprintf(a.stdout, "Duration:   %s\n", e.Duration.Round(time.Millisecond))
	fmt.Fprintf(a.stdout, "State:      %s (exit %d)\n", e.State, e.ExitCode)
	fmt.Fprintf(a.stdout, "Requests:   %d (%.2f%% failed, %.1f/s)\n", e.Requests, e.ErrorRate*100, e.RPS)
	if e.SteadyRPS > 0 {
		fmt.Fprintf(a.stdout, "Steady RPS: %.1f/s\n", e.SteadyRPS)
	}
	fmt.Fprintf(a.stdout, "Iterations: %d\n", e.Iterations)
	fmt.Fprintf(a.stdout, "p95:        %.1fms\n", e.P95Ms)
	if e.AbortReason != "" {
		fmt.Fprintf(a.stdout, "Aborted:    %s\n", e.AbortReason)
	}
	for _, f := range e.Failed {
		fmt.Fprintf(a.stdout, "Failed:     %s\n", f)
	}
}
