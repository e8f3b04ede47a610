package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/talgya/pqnwatch/internal/detect"
	"github.com/talgya/pqnwatch/internal/engine"
)

// Event is one line of the sparse event log.
type Event struct {
	T       float64      `json:"t"`
	Step    int          `json:"step"`
	Sym     string       `json:"sym"`
	C       float64      `json:"C"`
	E       float64      `json:"E"`
	RNorm   float64      `json:"rnorm"`
	Purity  float64      `json:"purity"`
	S       float64      `json:"S"`
	DetG    *float64     `json:"detg"`
	DetThr  *float64     `json:"det_thr"`
	ResoHit *detect.Peak `json:"reso_hit"`
	Flags   []string     `json:"flags"`
}

// NewEvent builds the event record for res.
func NewEvent(res engine.StepResult) Event {
	ev := Event{
		T:      res.T,
		Step:   res.Step,
		Sym:    res.Symbol.String(),
		C:      res.Obs.C,
		E:      res.Obs.E,
		RNorm:  res.Obs.RNorm,
		Purity: res.Obs.Purity,
		S:      res.Obs.Entropy,
		Flags:  res.Flags.Names(),
	}
	if res.DetDefined {
		det, thr := res.Det, res.Threshold
		ev.DetG, ev.DetThr = &det, &thr
	}
	if res.Spectrum != nil && res.Spectrum.Hit != nil {
		hit := *res.Spectrum.Hit
		ev.ResoHit = &hit
	}
	return ev
}

// EventWriter appends one JSON object per flagged step.
type EventWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewEventWriter(w io.Writer) *EventWriter {
	bw := bufio.NewWriter(w)
	return &EventWriter{w: bw, enc: json.NewEncoder(bw)}
}

// Write appends res if it raised any flag.
func (e *EventWriter) Write(res engine.StepResult) error {
	if res.Flags.Empty() {
		return nil
	}
	return e.enc.Encode(NewEvent(res))
}

func (e *EventWriter) Flush() error {
	return e.w.Flush()
}

// ReadEvents loads an event log written by EventWriter.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}

// CountFlags tallies flag names across events.
func CountFlags(events []Event) map[string]int {
	counts := make(map[string]int)
	for _, ev := range events {
		for _, f := range ev.Flags {
			counts[f]++
		}
	}
	return counts
}
