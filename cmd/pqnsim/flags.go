package main

import (
	"github.com/spf13/cobra"

	"github.com/talgya/pqnwatch/internal/config"
)

// configFlags binds every Config field to a flag. Resolution order is
// defaults, then the --config file, then flags the user actually set.
type configFlags struct {
	path string
	vals config.Config
}

func addConfigFlags(cmd *cobra.Command) *configFlags {
	cf := &configFlags{vals: config.Default()}
	v := &cf.vals
	f := cmd.Flags()

	f.StringVar(&cf.path, "config", "", "TOML config file overlaid on the defaults")

	f.StringVar(&v.Script, "script", v.Script, "control script, e.g. \"entangle*4,cohere,distort\"")
	f.IntVar(&v.Steps, "steps", v.Steps, "number of steps")
	f.IntVar(&v.Dwell, "dwell", v.Dwell, "steps each script symbol stays active")
	f.Float64Var(&v.DT, "dt", v.DT, "time step")

	f.IntVar(&v.GeomWin, "geom-win", v.GeomWin, "geometric window, in differences")
	f.IntVar(&v.ResoWin, "reso-win", v.ResoWin, "resonance window, in samples")
	f.Float64Var(&v.ResoTol, "reso-tol", v.ResoTol, "resonance band half-width")
	f.Float64Var(&v.TargetFreq, "target-freq", v.TargetFreq, "resonance target frequency")
	f.Float64Var(&v.ResoMinMag, "reso-min-mag", v.ResoMinMag, "minimum magnitude of a resonance hit (0 disables)")
	f.IntVar(&v.TopK, "top-k", v.TopK, "spectral peaks reported per query")
	f.IntVar(&v.Consec, "consec", v.Consec, "sub-threshold steps before PQN_DETECTED")
	f.Float64Var(&v.KMAD, "k-mad", v.KMAD, "MAD multiplier of the collapse threshold")

	f.Float64Var(&v.KEntangle, "k-entangle", v.KEntangle, "entangle coupling")
	f.Float64Var(&v.KCohere, "k-cohere", v.KCohere, "cohere coupling")
	f.Float64Var(&v.DistortRate, "distort-rate", v.DistortRate, "distort dissipation rate")

	f.Int64Var(&v.Seed, "seed", v.Seed, "seed for coupling noise")
	f.Float64Var(&v.NoiseAmp, "noise-amp", v.NoiseAmp, "relative coupling jitter, 0 disables")
	f.Float64Var(&v.NoiseFreq, "noise-freq", v.NoiseFreq, "coupling jitter bandwidth")

	f.StringVar(&v.OutDir, "out", v.OutDir, "output directory")
	f.StringVar(&v.MetricsFile, "metrics-file", v.MetricsFile, "write a prometheus textfile here at the end of the run")
	f.IntVar(&v.ReportEvery, "report-every", v.ReportEvery, "progress log cadence in steps, 0 disables")

	f.BoolVar(&v.Guardrail.Enabled, "guardrail", v.Guardrail.Enabled, "substitute idle while the state looks collapsed")
	f.Float64Var(&v.Guardrail.MinPurity, "guardrail-min-purity", v.Guardrail.MinPurity, "guardrail purity trip point")
	f.Float64Var(&v.Guardrail.MaxEntropy, "guardrail-max-entropy", v.Guardrail.MaxEntropy, "guardrail entropy trip point")
	f.Float64Var(&v.Guardrail.DetFloor, "guardrail-det-floor", v.Guardrail.DetFloor, "guardrail |det| trip point, 0 disables")
	f.IntVar(&v.Guardrail.Hold, "guardrail-hold", v.Guardrail.Hold, "extra steps the guardrail holds after a trip")

	return cf
}

// addSweepFlags binds the [sweep] section; call after addConfigFlags.
func (cf *configFlags) addSweepFlags(cmd *cobra.Command) {
	s := &cf.vals.Sweep
	f := cmd.Flags()
	f.StringSliceVar(&s.Motifs, "motifs", s.Motifs, "motif alphabet candidates are built from")
	f.IntVar(&s.Length, "length", s.Length, "motifs per candidate script")
	f.IntVar(&s.Parallel, "parallel", s.Parallel, "concurrent runs")
	f.Float64Var(&s.WeightPQN, "weight-pqn", s.WeightPQN, "council weight of the PQN rate")
	f.Float64Var(&s.WeightReso, "weight-reso", s.WeightReso, "council weight of the resonance rate")
	f.Float64Var(&s.WeightParadox, "weight-paradox", s.WeightParadox, "council weight of the paradox rate")
}

// resolve builds the effective config for cmd.
func (cf *configFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if cf.path != "" {
		loaded, err := config.Load(cf.path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	f := cmd.Flags()
	v := cf.vals
	set := func(name string, apply func()) {
		if fl := f.Lookup(name); fl != nil && fl.Changed {
			apply()
		}
	}

	set("script", func() { cfg.Script = v.Script })
	set("steps", func() { cfg.Steps = v.Steps })
	set("dwell", func() { cfg.Dwell = v.Dwell })
	set("dt", func() { cfg.DT = v.DT })
	set("geom-win", func() { cfg.GeomWin = v.GeomWin })
	set("reso-win", func() { cfg.ResoWin = v.ResoWin })
	set("reso-tol", func() { cfg.ResoTol = v.ResoTol })
	set("target-freq", func() { cfg.TargetFreq = v.TargetFreq })
	set("reso-min-mag", func() { cfg.ResoMinMag = v.ResoMinMag })
	set("top-k", func() { cfg.TopK = v.TopK })
	set("consec", func() { cfg.Consec = v.Consec })
	set("k-mad", func() { cfg.KMAD = v.KMAD })
	set("k-entangle", func() { cfg.KEntangle = v.KEntangle })
	set("k-cohere", func() { cfg.KCohere = v.KCohere })
	set("distort-rate", func() { cfg.DistortRate = v.DistortRate })
	set("seed", func() { cfg.Seed = v.Seed })
	set("noise-amp", func() { cfg.NoiseAmp = v.NoiseAmp })
	set("noise-freq", func() { cfg.NoiseFreq = v.NoiseFreq })
	set("out", func() { cfg.OutDir = v.OutDir })
	set("metrics-file", func() { cfg.MetricsFile = v.MetricsFile })
	set("report-every", func() { cfg.ReportEvery = v.ReportEvery })

	set("guardrail", func() { cfg.Guardrail.Enabled = v.Guardrail.Enabled })
	set("guardrail-min-purity", func() { cfg.Guardrail.MinPurity = v.Guardrail.MinPurity })
	set("guardrail-max-entropy", func() { cfg.Guardrail.MaxEntropy = v.Guardrail.MaxEntropy })
	set("guardrail-det-floor", func() { cfg.Guardrail.DetFloor = v.Guardrail.DetFloor })
	set("guardrail-hold", func() { cfg.Guardrail.Hold = v.Guardrail.Hold })

	set("motifs", func() { cfg.Sweep.Motifs = v.Sweep.Motifs })
	set("length", func() { cfg.Sweep.Length = v.Sweep.Length })
	set("parallel", func() { cfg.Sweep.Parallel = v.Sweep.Parallel })
	set("weight-pqn", func() { cfg.Sweep.WeightPQN = v.Sweep.WeightPQN })
	set("weight-reso", func() { cfg.Sweep.WeightReso = v.Sweep.WeightReso })
	set("weight-paradox", func() { cfg.Sweep.WeightParadox = v.Sweep.WeightParadox })

	return cfg, nil
}
