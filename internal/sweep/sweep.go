// Package sweep runs a batch of candidate scripts in parallel and scores
// them by how often each detector fires.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/engine"
	"github.com/talgya/pqnwatch/internal/metrics"
	"github.com/talgya/pqnwatch/internal/output"
)

// MetricsFile is the per-run textfile name when Options.Metrics is set.
const MetricsFile = "metrics.prom"

// Options controls where and how wide a sweep runs.
type Options struct {
	OutDir   string // each candidate gets <OutDir>/<index>-<slug>/
	Parallel int    // concurrent runs, at least 1
	Metrics  bool   // write a metrics textfile into every run directory
}

// Result is one finished candidate. Score and Rank are filled by Rank.
type Result struct {
	Index   int                `json:"index"`
	Script  string             `json:"script"`
	Dir     string             `json:"dir"`
	Summary engine.Summary     `json:"summary"`
	Events  []output.Event     `json:"-"`
	Counts  map[string]int     `json:"counts"`
	Rates   map[string]float64 `json:"rates"` // per 1000 steps
	Score   float64            `json:"score"`
	Rank    int                `json:"rank"`
}

// Rate returns the per-1000-step rate of flag f.
func (r Result) Rate(f engine.Flag) float64 { return r.Rates[f.String()] }

// Motifs enumerates every script of exactly length symbols drawn from
// alphabet, in lexicographic order of alphabet positions.
func Motifs(alphabet []string, length int) []string {
	if len(alphabet) == 0 || length < 1 {
		return nil
	}
	total := 1
	for i := 0; i < length; i++ {
		total *= len(alphabet)
	}

	out := make([]string, 0, total)
	word := make([]string, length)
	for n := 0; n < total; n++ {
		x := n
		for pos := length - 1; pos >= 0; pos-- {
			word[pos] = alphabet[x%len(alphabet)]
			x /= len(alphabet)
		}
		out = append(out, strings.Join(word, ","))
	}
	return out
}

// Run executes base once per candidate script. Runs share nothing but the
// base config; the first failure cancels the rest. Results keep candidate order.
func Run(ctx context.Context, base config.Config, candidates []string, opts Options) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, errors.New("sweep: no candidates")
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}

	start := time.Now()
	slog.Info("sweep started", "candidates", len(candidates), "parallel", opts.Parallel, "steps", base.Steps)

	results := make([]Result, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)

	for i, script := range candidates {
		g.Go(func() error {
			res, err := runOne(gCtx, base, i, script, opts)
			if err != nil {
				return fmt.Errorf("candidate %d %q: %w", i, script, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("sweep finished", "candidates", len(candidates), "elapsed", time.Since(start).Round(time.Millisecond))
	return results, nil
}

func runOne(ctx context.Context, base config.Config, index int, script string, opts Options) (Result, error) {
	cfg := base
	cfg.Script = script
	cfg.OutDir = filepath.Join(opts.OutDir, fmt.Sprintf("%03d-%s", index, slug(script)))
	cfg.MetricsFile = ""
	cfg.ReportEvery = 0

	files, err := output.Create(cfg.OutDir)
	if err != nil {
		return Result{}, err
	}

	sinks := files.Sinks()
	sinks.RunID = engine.NewRunID()
	var rec *metrics.Recorder
	if opts.Metrics {
		rec = metrics.NewRecorder(sinks.RunID)
		sinks.Recorder = rec
	}

	sum, runErr := engine.Execute(ctx, cfg, sinks)
	if err := errors.Join(runErr, files.Close()); err != nil {
		return Result{}, err
	}
	if rec != nil {
		if err := rec.WriteTextfile(filepath.Join(cfg.OutDir, MetricsFile)); err != nil {
			return Result{}, err
		}
	}

	events, err := output.ReadEvents(files.EventsPath())
	if err != nil {
		return Result{}, fmt.Errorf("read back events: %w", err)
	}

	res := Result{
		Index:   index,
		Script:  script,
		Dir:     cfg.OutDir,
		Summary: sum,
		Events:  events,
		Counts:  output.CountFlags(events),
		Rates:   make(map[string]float64),
	}
	for _, f := range engine.AllFlags() {
		name := f.String()
		if _, ok := res.Counts[name]; !ok {
			res.Counts[name] = 0
		}
		if sum.Stats.Steps > 0 {
			res.Rates[name] = 1000 * float64(res.Counts[name]) / float64(sum.Stats.Steps)
		} else {
			res.Rates[name] = 0
		}
	}
	return res, nil
}

// slug makes a script safe for a directory name.
func slug(script string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(script) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if len(s) > 48 {
		s = strings.TrimSuffix(s[:48], "-")
	}
	if s == "" {
		s = "script"
	}
	return s
}
