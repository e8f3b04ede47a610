// Package persistence provides a SQLite index of finished runs, so sweeps
// and single runs can be ranked and looked up after the fact.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/engine"
	"github.com/talgya/pqnwatch/internal/output"
)

// ErrNotFound is returned when a run ID or meta key has no row.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for the run index.
type DB struct {
	conn *sqlx.DB
}

// Run is one indexed run.
type Run struct {
	ID          string  `db:"id" json:"id"`
	Script      string  `db:"script" json:"script"`
	Steps       int     `db:"steps" json:"steps"`
	Params      string  `db:"params_json" json:"-"`
	PQN         int     `db:"pqn" json:"pqn"`
	Reso        int     `db:"reso" json:"reso"`
	Paradox     int     `db:"paradox" json:"paradox"`
	PQNRate     float64 `db:"pqn_rate" json:"pqn_rate"`
	ResoRate    float64 `db:"reso_rate" json:"reso_rate"`
	ParadoxRate float64 `db:"paradox_rate" json:"paradox_rate"`
	Score       float64 `db:"score" json:"score"`
	OutDir      string  `db:"out_dir" json:"out_dir"`
	CreatedAt   int64   `db:"created_at" json:"created_at"` // unix millis
}

// Created returns CreatedAt as a time.
func (r Run) Created() time.Time { return time.UnixMilli(r.CreatedAt) }

// NewRun builds an index row from a run summary. Score is left for the caller.
func NewRun(sum engine.Summary, cfg config.Config) Run {
	params, _ := json.Marshal(cfg)
	return Run{
		ID:          sum.RunID,
		Script:      sum.Script,
		Steps:       sum.Stats.Steps,
		Params:      string(params),
		PQN:         sum.Stats.Count(engine.FlagPQNDetected),
		Reso:        sum.Stats.Count(engine.FlagResonanceHit),
		Paradox:     sum.Stats.Count(engine.FlagParadoxRisk),
		PQNRate:     sum.Rate(engine.FlagPQNDetected),
		ResoRate:    sum.Rate(engine.FlagResonanceHit),
		ParadoxRate: sum.Rate(engine.FlagParadoxRisk),
		OutDir:      cfg.OutDir,
		CreatedAt:   sum.Started.UnixMilli(),
	}
}

// Config decodes the stored run parameters.
func (r Run) Config() (config.Config, error) {
	var cfg config.Config
	if err := json.Unmarshal([]byte(r.Params), &cfg); err != nil {
		return config.Config{}, fmt.Errorf("decode params of run %s: %w", r.ID, err)
	}
	return cfg, nil
}

// Event is one indexed flagged step.
type Event struct {
	RunID string  `db:"run_id"`
	Step  int     `db:"step"`
	T     float64 `db:"t"`
	Sym   string  `db:"sym"`
	Flags string  `db:"flags"` // comma-separated flag names
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		script TEXT NOT NULL,
		steps INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		pqn INTEGER NOT NULL,
		reso INTEGER NOT NULL,
		paradox INTEGER NOT NULL,
		pqn_rate REAL NOT NULL,
		reso_rate REAL NOT NULL,
		paradox_rate REAL NOT NULL,
		score REAL NOT NULL,
		out_dir TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		t REAL NOT NULL,
		sym TEXT NOT NULL,
		flags TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_score ON runs(score);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, step);
	`
	_, err := db.conn.Exec(schema)
	return err
}

const insertRun = `INSERT OR REPLACE INTO runs
	(id, script, steps, params_json, pqn, reso, paradox,
	 pqn_rate, reso_rate, paradox_rate, score, out_dir, created_at)
	VALUES (:id, :script, :steps, :params_json, :pqn, :reso, :paradox,
	 :pqn_rate, :reso_rate, :paradox_rate, :score, :out_dir, :created_at)`

// SaveRun inserts or replaces one run row.
func (db *DB) SaveRun(r Run) error {
	if _, err := db.conn.NamedExec(insertRun, r); err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// SaveRuns writes a batch of runs in one transaction.
func (db *DB) SaveRuns(runs []Run) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(insertRun)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range runs {
		if _, err := stmt.Exec(r); err != nil {
			return fmt.Errorf("insert run %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("runs indexed", "count", len(runs))
	return nil
}

// SaveEvents replaces a run's flagged steps, so re-indexing a run never
// duplicates them.
func (db *DB) SaveEvents(runID string, events []output.Event) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM events WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("clear events of run %s: %w", runID, err)
	}

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (run_id, step, t, sym, flags) VALUES (?, ?, ?, ?, ?)",
			runID, e.Step, e.T, e.Sym, strings.Join(e.Flags, ","),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RunEvents returns up to limit indexed events of a run in step order.
func (db *DB) RunEvents(runID string, limit int) ([]Event, error) {
	var events []Event
	err := db.conn.Select(&events,
		"SELECT run_id, step, t, sym, flags FROM events WHERE run_id = ? ORDER BY step LIMIT ?",
		runID, limit,
	)
	return events, err
}

const runColumns = `id, script, steps, params_json, pqn, reso, paradox,
	pqn_rate, reso_rate, paradox_rate, score, out_dir, created_at`

// GetRun returns one run by ID.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// TopRuns returns the highest-scoring runs, best first.
func (db *DB) TopRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT "+runColumns+" FROM runs ORDER BY score DESC, script ASC LIMIT ?",
		limit,
	)
	return runs, err
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id ASC LIMIT ?",
		limit,
	)
	return runs, err
}

// SaveMeta stores a key-value pair in index metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %s: %w", key, ErrNotFound)
	}
	return value, err
}
