package engine

import (
	"encoding/json"
	"fmt"
)

// Flag is one detector verdict for a step.
type Flag uint8

const (
	FlagPQNDetected  Flag = iota // debounced geometric collapse
	FlagResonanceHit             // in-band spectral peak near the target
	FlagParadoxRisk              // collapse while the state is mixed and entropic
	numFlags
)

var flagNames = [numFlags]string{
	FlagPQNDetected:  "PQN_DETECTED",
	FlagResonanceHit: "RESONANCE_HIT",
	FlagParadoxRisk:  "PARADOX_RISK",
}

// AllFlags lists every flag in emission order.
func AllFlags() []Flag {
	return []Flag{FlagPQNDetected, FlagResonanceHit, FlagParadoxRisk}
}

func (f Flag) String() string {
	if f < numFlags {
		return flagNames[f]
	}
	return fmt.Sprintf("flag(%d)", f)
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// FlagSet is the set of flags raised on one step.
type FlagSet uint8

func (s FlagSet) Has(f Flag) bool { return s&(1<<f) != 0 }

func (s *FlagSet) Add(f Flag) { *s |= 1 << f }

func (s FlagSet) Empty() bool { return s == 0 }

// List returns the members in emission order.
func (s FlagSet) List() []Flag {
	var out []Flag
	for _, f := range AllFlags() {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Names returns the members' wire names in emission order; never nil.
func (s FlagSet) Names() []string {
	out := []string{}
	for _, f := range s.List() {
		out = append(out, f.String())
	}
	return out
}
