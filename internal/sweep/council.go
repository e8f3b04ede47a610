package sweep

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/engine"
)

// Weights scores a run from its per-1000-step flag rates. A negative weight
// penalizes a flag.
type Weights struct {
	PQN     float64 `json:"pqn"`
	Reso    float64 `json:"reso"`
	Paradox float64 `json:"paradox"`
}

// DefaultWeights favour collapse detections and punish paradox risk.
func DefaultWeights() Weights {
	return Weights{PQN: 1.0, Reso: 0.1, Paradox: -1.0}
}

// WeightsFrom reads the weights out of a sweep config.
func WeightsFrom(sc config.SweepConfig) Weights {
	return Weights{PQN: sc.WeightPQN, Reso: sc.WeightReso, Paradox: sc.WeightParadox}
}

// Score is the weighted sum of the flag rates.
func (w Weights) Score(r Result) float64 {
	return w.combine(r.Rate)
}

// ScoreSummary scores a run straight from its in-memory counts.
func (w Weights) ScoreSummary(sum engine.Summary) float64 {
	return w.combine(sum.Rate)
}

func (w Weights) combine(rate func(engine.Flag) float64) float64 {
	return w.PQN*rate(engine.FlagPQNDetected) +
		w.Reso*rate(engine.FlagResonanceHit) +
		w.Paradox*rate(engine.FlagParadoxRisk)
}

// Rank scores every result and returns them best first (ties by script,
// then index), with ranks starting at 1. The input slice is not reordered.
func Rank(results []Result, w Weights) []Result {
	ranked := make([]Result, len(results))
	copy(ranked, results)
	for i := range ranked {
		ranked[i].Score = w.Score(ranked[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Script != b.Script {
			return a.Script < b.Script
		}
		return a.Index < b.Index
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Ranking is the document written to ranking.json.
type Ranking struct {
	Weights Weights  `json:"weights"`
	Steps   int      `json:"steps"`
	Results []Result `json:"results"`
}

// WriteRanking writes ranked results as indented JSON.
func WriteRanking(path string, steps int, w Weights, ranked []Result) error {
	data, err := json.MarshalIndent(Ranking{Weights: w, Steps: steps, Results: ranked}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write ranking: %w", err)
	}
	return nil
}
