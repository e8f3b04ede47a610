package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/pqnwatch/internal/api"
	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/engine"
	"github.com/talgya/pqnwatch/internal/persistence"
)

type serveOptions struct {
	dbPath   string
	addr     string
	adminKey string
	maxSteps int
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	var flags *configFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run index over HTTP",
		Long: `Serves the run index read-only under /api/v1. With an admin key
(--admin-key or PQNWATCH_ADMIN_KEY), POST /api/v1/runs launches a run from
the resolved config, writes its artifacts under <out>/<run-id>/ and indexes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, opts)
		},
	}
	flags = addConfigFlags(cmd)
	cmd.Flags().StringVar(&opts.dbPath, "db", "pqnwatch.db", "SQLite run index")
	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.adminKey, "admin-key", "", "bearer token for POST endpoints (default $PQNWATCH_ADMIN_KEY)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 50000, "upper bound on steps of a launched run")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, opts serveOptions) error {
	if opts.adminKey == "" {
		opts.adminKey = envOr("PQNWATCH_ADMIN_KEY", "")
	}

	db, err := persistence.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	outRoot := cfg.OutDir
	srv := &api.Server{
		DB:       db,
		Base:     cfg,
		Addr:     opts.addr,
		AdminKey: opts.adminKey,
		MaxSteps: opts.maxSteps,
		Launch: func(ctx context.Context, cfg config.Config) (persistence.Run, error) {
			runID := engine.NewRunID()
			cfg.OutDir = filepath.Join(outRoot, runID)
			cfg.MetricsFile = ""
			if _, err := executeRun(ctx, cfg, runID, db); err != nil {
				return persistence.Run{}, err
			}
			return db.GetRun(runID)
		},
	}
	return srv.Run(ctx)
}
