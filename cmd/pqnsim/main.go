// Command pqnsim drives the two-level simulator and its anomaly detectors:
// single runs, motif sweeps, and the run index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "pqnsim",
		Short: "Toy open-quantum-system simulator with streaming collapse and resonance detectors",
		Long: `pqnsim evolves a single two-level density matrix under a symbolic control
script and watches the trajectory with two detectors: a covariance-determinant
collapse meter and a sliding-window FFT resonance meter.

Each run writes dense.csv (one row per step) and events.jsonl (one line per
flagged step) into its output directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				return fmt.Errorf("bad --log-level %q: %w", logLevel, err)
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: level,
			}))
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.AddCommand(newRunCmd(), newSweepCmd(), newRunsCmd(), newServeCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("pqnsim failed", "error", err)
		os.Exit(1)
	}
}
