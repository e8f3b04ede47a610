package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/pqnwatch/internal/persistence"
)

type runsOptions struct {
	dbPath string
	limit  int
	recent bool
}

func newRunsCmd() *cobra.Command {
	var opts runsOptions

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed runs, best score first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(cmd.OutOrStdout(), opts)
		},
	}
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one indexed run and its first events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showRun(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "pqnwatch.db", "SQLite run index")
	cmd.PersistentFlags().IntVar(&opts.limit, "limit", 20, "maximum rows")
	cmd.Flags().BoolVar(&opts.recent, "recent", false, "order by creation time instead of score")
	cmd.AddCommand(show)
	return cmd
}

func listRuns(out io.Writer, opts runsOptions) error {
	db, err := persistence.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var runs []persistence.Run
	if opts.recent {
		runs, err = db.RecentRuns(opts.limit)
	} else {
		runs, err = db.TopRuns(opts.limit)
	}
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []persistence.Run) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCRIPT\tSTEPS\tPQN/1K\tRESO/1K\tPARADOX/1K\tSCORE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\t%s\n",
			r.ID, r.Script, humanize.Comma(int64(r.Steps)),
			r.PQNRate, r.ResoRate, r.ParadoxRate, r.Score,
			humanize.Time(r.Created()),
		)
	}
	return tw.Flush()
}

func showRun(out io.Writer, id string, opts runsOptions) error {
	db, err := persistence.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := db.GetRun(id)
	if err != nil {
		return err
	}
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	events, err := db.RunEvents(r.ID, opts.limit)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	fmt.Fprintf(out, "run      %s\n", r.ID)
	fmt.Fprintf(out, "script   %s\n", r.Script)
	fmt.Fprintf(out, "steps    %s (dt %g, dwell %d)\n", humanize.Comma(int64(r.Steps)), cfg.DT, cfg.Dwell)
	fmt.Fprintf(out, "flags    pqn %d, resonance %d, paradox %d\n", r.PQN, r.Reso, r.Paradox)
	fmt.Fprintf(out, "score    %.3f\n", r.Score)
	fmt.Fprintf(out, "output   %s\n", r.OutDir)
	fmt.Fprintf(out, "created  %s\n\n", humanize.Time(r.Created()))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tT\tSYM\tFLAGS")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\n", e.Step, e.T, e.Sym, e.Flags)
	}
	return tw.Flush()
}
