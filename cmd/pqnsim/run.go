package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/engine"
	"github.com/talgya/pqnwatch/internal/metrics"
	"github.com/talgya/pqnwatch/internal/output"
	"github.com/talgya/pqnwatch/internal/persistence"
	"github.com/talgya/pqnwatch/internal/sweep"
)

// SummaryFile is written next to the artifacts of every single run.
const SummaryFile = "summary.json"

func newRunCmd() *cobra.Command {
	var dbPath string
	var flags *configFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one run and write dense.csv and events.jsonl",
		Example: `  pqnsim run --steps 5000 --out out
  pqnsim run --config pqnsim.toml --script "entangle*2,distort" --db runs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return runSingle(cmd.Context(), cfg, dbPath)
		},
	}
	flags = addConfigFlags(cmd)
	cmd.Flags().StringVar(&dbPath, "db", "", "index the finished run into this SQLite database")
	return cmd
}

func runSingle(ctx context.Context, cfg config.Config, dbPath string) error {
	var db *persistence.DB
	if dbPath != "" {
		var err error
		if db, err = persistence.Open(dbPath); err != nil {
			return err
		}
		defer db.Close()
	}
	_, err := executeRun(ctx, cfg, engine.NewRunID(), db)
	return err
}

// executeRun performs one run end to end: artifacts, optional metrics
// textfile, summary.json, and the index row when db is non-nil.
func executeRun(ctx context.Context, cfg config.Config, runID string, db *persistence.DB) (engine.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return engine.Summary{}, err
	}

	files, err := output.Create(cfg.OutDir)
	if err != nil {
		return engine.Summary{}, err
	}

	sinks := files.Sinks()
	sinks.RunID = runID
	var rec *metrics.Recorder
	if cfg.MetricsFile != "" {
		rec = metrics.NewRecorder(sinks.RunID)
		sinks.Recorder = rec
	}

	sum, runErr := engine.Execute(ctx, cfg, sinks)
	if err := errors.Join(runErr, files.Close()); err != nil {
		return sum, err
	}

	if rec != nil {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			return sum, err
		}
		slog.Info("metrics written", "path", cfg.MetricsFile)
	}
	if err := writeJSON(filepath.Join(cfg.OutDir, SummaryFile), sum); err != nil {
		return sum, err
	}

	if db != nil {
		if err := indexRun(db, sum, cfg, files.EventsPath()); err != nil {
			return sum, err
		}
	}

	logArtifacts(files)
	return sum, nil
}

func indexRun(db *persistence.DB, sum engine.Summary, cfg config.Config, eventsPath string) error {
	events, err := output.ReadEvents(eventsPath)
	if err != nil {
		return err
	}

	r := persistence.NewRun(sum, cfg)
	r.Score = sweep.WeightsFrom(cfg.Sweep).ScoreSummary(sum)
	if err := db.SaveRun(r); err != nil {
		return err
	}
	if err := db.SaveEvents(r.ID, events); err != nil {
		return fmt.Errorf("index events: %w", err)
	}
	slog.Info("run indexed", "run", r.ID, "score", fmt.Sprintf("%.3f", r.Score))
	return nil
}

func logArtifacts(files *output.Files) {
	for _, path := range []string{files.DensePath(), files.EventsPath()} {
		size := "?"
		if st, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(st.Size()))
		}
		slog.Info("artifact", "path", path, "size", size)
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
