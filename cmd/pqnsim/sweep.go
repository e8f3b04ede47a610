package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/engine"
	"github.com/talgya/pqnwatch/internal/persistence"
	"github.com/talgya/pqnwatch/internal/sweep"
)

// RankingFile is written into the sweep output directory.
const RankingFile = "ranking.json"

type sweepOptions struct {
	dbPath  string
	metrics bool
	show    int
}

func newSweepCmd() *cobra.Command {
	var opts sweepOptions
	var flags *configFlags

	cmd := &cobra.Command{
		Use:   "sweep [script...]",
		Short: "Run many candidate scripts in parallel and rank them",
		Long: `Without arguments, candidates are every script of --length motifs drawn
from --motifs. Explicit scripts given as arguments replace the enumeration.

Each candidate runs in <out>/<index>-<slug>/. The council score is
weight-pqn*pqn_rate + weight-reso*reso_rate + weight-paradox*paradox_rate,
rates counted per 1000 steps; the ranking lands in <out>/ranking.json.`,
		Example: `  pqnsim sweep --steps 2000 --length 2 --parallel 8
  pqnsim sweep "entangle,distort" "cohere*2,idle" --db runs.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return runSweep(cmd.Context(), cfg, args, opts)
		},
	}
	flags = addConfigFlags(cmd)
	flags.addSweepFlags(cmd)
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "index every candidate into this SQLite database")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "write a metrics textfile into every run directory")
	cmd.Flags().IntVar(&opts.show, "show", 5, "log this many top candidates")
	return cmd
}

func runSweep(ctx context.Context, cfg config.Config, candidates []string, opts sweepOptions) error {
	if err := cfg.ValidateSweep(); err != nil {
		return err
	}
	if len(candidates) == 0 {
		candidates = sweep.Motifs(cfg.Sweep.Motifs, cfg.Sweep.Length)
	}

	results, err := sweep.Run(ctx, cfg, candidates, sweep.Options{
		OutDir:   cfg.OutDir,
		Parallel: cfg.Sweep.Parallel,
		Metrics:  opts.metrics,
	})
	if err != nil {
		return err
	}

	weights := sweep.WeightsFrom(cfg.Sweep)
	ranked := sweep.Rank(results, weights)
	rankingPath := filepath.Join(cfg.OutDir, RankingFile)
	if err := sweep.WriteRanking(rankingPath, cfg.Steps, weights, ranked); err != nil {
		return err
	}
	slog.Info("ranking written", "path", rankingPath, "candidates", len(ranked))

	for _, r := range ranked[:min(max(opts.show, 0), len(ranked))] {
		slog.Info("candidate",
			"rank", r.Rank,
			"script", r.Script,
			"score", fmt.Sprintf("%.3f", r.Score),
			"pqn_per_1k", fmt.Sprintf("%.3f", r.Rate(engine.FlagPQNDetected)),
			"reso_per_1k", fmt.Sprintf("%.3f", r.Rate(engine.FlagResonanceHit)),
			"paradox_per_1k", fmt.Sprintf("%.3f", r.Rate(engine.FlagParadoxRisk)),
		)
	}

	if opts.dbPath != "" {
		return indexSweep(opts.dbPath, cfg, ranked)
	}
	return nil
}

func indexSweep(dbPath string, base config.Config, ranked []sweep.Result) error {
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs := make([]persistence.Run, 0, len(ranked))
	for _, r := range ranked {
		cfg := base
		cfg.Script = r.Script
		cfg.OutDir = r.Dir
		run := persistence.NewRun(r.Summary, cfg)
		run.Script = r.Script
		run.Score = r.Score
		runs = append(runs, run)
	}
	if err := db.SaveRuns(runs); err != nil {
		return err
	}
	for _, r := range ranked {
		if err := db.SaveEvents(r.Summary.RunID, r.Events); err != nil {
			return fmt.Errorf("index events of %s: %w", r.Script, err)
		}
	}
	if len(ranked) > 0 {
		if err := db.SaveMeta("last_sweep_best", ranked[0].Summary.RunID); err != nil {
			return err
		}
	}
	slog.Info("sweep indexed", "db", dbPath, "runs", len(runs), "events", countEvents(ranked))
	return nil
}

func countEvents(results []sweep.Result) int {
	n := 0
	for _, r := range results {
		n += len(r.Events)
	}
	return n
}
