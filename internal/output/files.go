package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/talgya/pqnwatch/internal/engine"
)

// Artifact file names inside a run directory.
const (
	DenseFile  = "dense.csv"
	EventsFile = "events.jsonl"
)

// Files owns the two open artifact streams of one run.
type Files struct {
	Dir    string
	Dense  *DenseWriter
	Events *EventWriter

	denseF, eventsF *os.File
}

// Create makes dir if needed and opens both artifacts for writing, truncating
// any previous run.
func Create(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	denseF, err := os.Create(filepath.Join(dir, DenseFile))
	if err != nil {
		return nil, fmt.Errorf("create dense output: %w", err)
	}
	eventsF, err := os.Create(filepath.Join(dir, EventsFile))
	if err != nil {
		denseF.Close()
		return nil, fmt.Errorf("create events output: %w", err)
	}
	return &Files{
		Dir:     dir,
		Dense:   NewDenseWriter(denseF),
		Events:  NewEventWriter(eventsF),
		denseF:  denseF,
		eventsF: eventsF,
	}, nil
}

// Sinks exposes the writers to the run loop.
func (f *Files) Sinks() engine.Sinks {
	return engine.Sinks{Dense: f.Dense, Events: f.Events}
}

// DensePath returns the dense artifact path.
func (f *Files) DensePath() string { return filepath.Join(f.Dir, DenseFile) }

// EventsPath returns the events artifact path.
func (f *Files) EventsPath() string { return filepath.Join(f.Dir, EventsFile) }

// Close flushes and closes both files. Safe to defer after a failed run.
func (f *Files) Close() error {
	return errors.Join(
		f.Dense.Flush(),
		f.Events.Flush(),
		f.denseF.Close(),
		f.eventsF.Close(),
	)
}
