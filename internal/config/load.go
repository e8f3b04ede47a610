package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// pqnsim config.toml key mapping to Config fields.
type fileConfig struct {
	Script string  `toml:"script"`
	Steps  int     `toml:"steps"`
	Dwell  int     `toml:"dwell"`
	DT     float64 `toml:"dt"`

	GeomWin    int     `toml:"geom_win"`
	ResoWin    int     `toml:"reso_win"`
	ResoTol    float64 `toml:"reso_tol"`
	TargetFreq float64 `toml:"target_freq"`
	ResoMinMag float64 `toml:"reso_min_mag"`
	TopK       int     `toml:"top_k"`
	Consec     int     `toml:"consec"`
	KMAD       float64 `toml:"k_mad"`

	KEntangle   float64 `toml:"k_entangle"`
	KCohere     float64 `toml:"k_cohere"`
	DistortRate float64 `toml:"distort_rate"`

	Seed      int64   `toml:"seed"`
	NoiseAmp  float64 `toml:"noise_amp"`
	NoiseFreq float64 `toml:"noise_freq"`

	OutDir      string `toml:"out_dir"`
	MetricsFile string `toml:"metrics_file"`
	ReportEvery int    `toml:"report_every"`

	Guardrail guardrailFile `toml:"guardrail"`
	Sweep     sweepFile     `toml:"sweep"`
}

type guardrailFile struct {
	Enabled    bool    `toml:"enabled"`
	MinPurity  float64 `toml:"min_purity"`
	MaxEntropy float64 `toml:"max_entropy"`
	DetFloor   float64 `toml:"det_floor"`
	Hold       int     `toml:"hold"`
}

type sweepFile struct {
	Motifs        []string `toml:"motifs"`
	Length        int      `toml:"length"`
	Parallel      int      `toml:"parallel"`
	WeightPQN     float64  `toml:"weight_pqn"`
	WeightReso    float64  `toml:"weight_reso"`
	WeightParadox float64  `toml:"weight_paradox"`
}

// Load reads a TOML file and overlays the keys it defines onto Default().
// The result is not validated.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return overlay(Default(), raw, meta)
}

// Parse is Load for in-memory TOML text.
func Parse(text string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return overlay(Default(), raw, meta)
}

func overlay(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	if meta.IsDefined("script") {
		cfg.Script = strings.TrimSpace(raw.Script)
	}
	if meta.IsDefined("steps") {
		cfg.Steps = raw.Steps
	}
	if meta.IsDefined("dwell") {
		cfg.Dwell = raw.Dwell
	}
	if meta.IsDefined("dt") {
		cfg.DT = raw.DT
	}
	if meta.IsDefined("geom_win") {
		cfg.GeomWin = raw.GeomWin
	}
	if meta.IsDefined("reso_win") {
		cfg.ResoWin = raw.ResoWin
	}
	if meta.IsDefined("reso_tol") {
		cfg.ResoTol = raw.ResoTol
	}
	if meta.IsDefined("target_freq") {
		cfg.TargetFreq = raw.TargetFreq
	}
	if meta.IsDefined("reso_min_mag") {
		cfg.ResoMinMag = raw.ResoMinMag
	}
	if meta.IsDefined("top_k") {
		cfg.TopK = raw.TopK
	}
	if meta.IsDefined("consec") {
		cfg.Consec = raw.Consec
	}
	if meta.IsDefined("k_mad") {
		cfg.KMAD = raw.KMAD
	}
	if meta.IsDefined("k_entangle") {
		cfg.KEntangle = raw.KEntangle
	}
	if meta.IsDefined("k_cohere") {
		cfg.KCohere = raw.KCohere
	}
	if meta.IsDefined("distort_rate") {
		cfg.DistortRate = raw.DistortRate
	}
	if meta.IsDefined("seed") {
		cfg.Seed = raw.Seed
	}
	if meta.IsDefined("noise_amp") {
		cfg.NoiseAmp = raw.NoiseAmp
	}
	if meta.IsDefined("noise_freq") {
		cfg.NoiseFreq = raw.NoiseFreq
	}
	if meta.IsDefined("out_dir") {
		cfg.OutDir = strings.TrimSpace(raw.OutDir)
	}
	if meta.IsDefined("metrics_file") {
		cfg.MetricsFile = strings.TrimSpace(raw.MetricsFile)
	}
	if meta.IsDefined("report_every") {
		cfg.ReportEvery = raw.ReportEvery
	}

	if meta.IsDefined("guardrail", "enabled") {
		cfg.Guardrail.Enabled = raw.Guardrail.Enabled
	}
	if meta.IsDefined("guardrail", "min_purity") {
		cfg.Guardrail.MinPurity = raw.Guardrail.MinPurity
	}
	if meta.IsDefined("guardrail", "max_entropy") {
		cfg.Guardrail.MaxEntropy = raw.Guardrail.MaxEntropy
	}
	if meta.IsDefined("guardrail", "det_floor") {
		cfg.Guardrail.DetFloor = raw.Guardrail.DetFloor
	}
	if meta.IsDefined("guardrail", "hold") {
		cfg.Guardrail.Hold = raw.Guardrail.Hold
	}

	if meta.IsDefined("sweep", "motifs") {
		cfg.Sweep.Motifs = trimAll(raw.Sweep.Motifs)
	}
	if meta.IsDefined("sweep", "length") {
		cfg.Sweep.Length = raw.Sweep.Length
	}
	if meta.IsDefined("sweep", "parallel") {
		cfg.Sweep.Parallel = raw.Sweep.Parallel
	}
	if meta.IsDefined("sweep", "weight_pqn") {
		cfg.Sweep.WeightPQN = raw.Sweep.WeightPQN
	}
	if meta.IsDefined("sweep", "weight_reso") {
		cfg.Sweep.WeightReso = raw.Sweep.WeightReso
	}
	if meta.IsDefined("sweep", "weight_paradox") {
		cfg.Sweep.WeightParadox = raw.Sweep.WeightParadox
	}
	return cfg, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
