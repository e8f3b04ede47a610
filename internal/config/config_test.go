package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pqnwatch/internal/script"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateSweep())

	syms, err := cfg.Symbols()
	require.NoError(t, err)
	assert.Len(t, syms, 13)
	assert.False(t, cfg.Guardrail.Enabled)
}

func TestSymbolsFallsBackToDefaultScript(t *testing.T) {
	cfg := Default()
	cfg.Script = "   "
	syms, err := cfg.Symbols()
	require.NoError(t, err)
	want, _ := script.Parse(script.DefaultScript)
	assert.Equal(t, want, syms)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero dwell", func(c *Config) { c.Dwell = 0 }, "dwell"},
		{"zero dt", func(c *Config) { c.DT = 0 }, "dt"},
		{"tiny geom window", func(c *Config) { c.GeomWin = 1 }, "geom_win"},
		{"tiny reso window", func(c *Config) { c.ResoWin = 1 }, "reso_win"},
		{"negative tolerance", func(c *Config) { c.ResoTol = -0.1 }, "reso_tol"},
		{"zero consec", func(c *Config) { c.Consec = 0 }, "consec"},
		{"negative steps", func(c *Config) { c.Steps = -1 }, "steps"},
		{"empty out dir", func(c *Config) { c.OutDir = " " }, "out_dir"},
		{"noise too large", func(c *Config) { c.NoiseAmp = 1 }, "noise_amp"},
		{"unknown symbol", func(c *Config) { c.Script = "entangle,jump" }, "jump"},
		{"bad guardrail", func(c *Config) { c.Guardrail.MinPurity = 2 }, "min_purity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Dwell = 0
	cfg.DT = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dwell")
	assert.Contains(t, err.Error(), "dt")
}

func TestValidateSweep(t *testing.T) {
	cfg := Default()
	cfg.Sweep.Motifs = nil
	assert.ErrorIs(t, cfg.ValidateSweep(), ErrInvalidConfig)

	cfg = Default()
	cfg.Sweep.Motifs = []string{"entangle", "nope"}
	err := cfg.ValidateSweep()
	assert.ErrorIs(t, err, script.ErrUnknownSymbol)

	cfg = Default()
	cfg.Sweep.Parallel = 0
	assert.ErrorIs(t, cfg.ValidateSweep(), ErrInvalidConfig)
}

func TestParseOverlaysDefinedKeys(t *testing.T) {
	cfg, err := Parse(`
script = "entangle*2, distort"
steps = 1200
dt = 0.01
k_mad = 0

[guardrail]
enabled = true
hold = 2

[sweep]
motifs = ["entangle", " cohere "]
weight_paradox = -2.5
`)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, "entangle*2, distort", cfg.Script)
	assert.Equal(t, 1200, cfg.Steps)
	assert.Equal(t, 0.01, cfg.DT)
	assert.Equal(t, 0.0, cfg.KMAD, "explicit zero must override the default")
	assert.Equal(t, def.Dwell, cfg.Dwell)
	assert.Equal(t, def.GeomWin, cfg.GeomWin)

	assert.True(t, cfg.Guardrail.Enabled)
	assert.Equal(t, 2, cfg.Guardrail.Hold)
	assert.Equal(t, def.Guardrail.MinPurity, cfg.Guardrail.MinPurity)

	assert.Equal(t, []string{"entangle", "cohere"}, cfg.Sweep.Motifs)
	assert.Equal(t, -2.5, cfg.Sweep.WeightParadox)
	assert.Equal(t, def.Sweep.Length, cfg.Sweep.Length)

	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("stepz = 10\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "stepz")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pqnsim.toml")
	require.NoError(t, os.WriteFile(path, []byte("reso_win = 64\ntarget_freq = 0.25\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.ResoWin)
	assert.Equal(t, 0.25, cfg.TargetFreq)
	require.NoError(t, cfg.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
