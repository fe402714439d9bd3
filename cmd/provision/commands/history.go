package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/provisioner/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit   int
		runID   string
		stateDB string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded in the state database.

The database is taken from --state-db or, failing that, from the graph
file's settings.`,
		Example: `  # Last 20 runs
  provision history --state-db runs.db

  # Resource events of one run
  provision history --run 5f0c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if stateDB == "" {
				gf, err := loadGraph(graphPath)
				if err != nil {
					return err
				}
				stateDB = gf.Settings.StateDB
			}
			if stateDB == "" {
				return fmt.Errorf("no state database: pass --state-db or set settings.stateDB")
			}

			store, err := openStore(ctx, stateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID != "" {
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				events, err := store.ListResourceEvents(ctx, runID)
				if err != nil {
					return err
				}
				return printEvents(out, run, events)
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			return printRuns(out, runs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the resource events of this run")
	cmd.Flags().StringVar(&stateDB, "state-db", "", "SQLite run history path")

	return cmd
}

func printRuns(w io.Writer, runs []*stores.Run) error {
	if jsonOutput {
		return writeJSON(w, runs)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTION\tSTATUS\tWORKERS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Action, r.Status, r.Workers, r.StartedAt.Format(time.RFC3339), duration)
	}
	return tw.Flush()
}

func printEvents(w io.Writer, run *stores.Run, events []*stores.ResourceEvent) error {
	if jsonOutput {
		return writeJSON(w, struct {
			Run    *stores.Run             `json:"run"`
			Events []*stores.ResourceEvent `json:"events"`
		}{run, events})
	}

	fmt.Fprintf(w, "Run %s (%s, %s)\n", run.ID, run.Action, run.Status)
	if run.AbortReason != nil {
		fmt.Fprintf(w, "Aborted: %s\n", *run.AbortReason)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tTYPE\tSTATUS\tDURATION\tERROR")
	for _, e := range events {
		msg := ""
		if e.Error != nil {
			msg = *e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Resource, e.Type, e.Status, e.Duration().Round(time.Millisecond), msg)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
