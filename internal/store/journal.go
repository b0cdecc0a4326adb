package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vulnforge/internal/logging"
	"vulnforge/internal/types"
)

// Journal records every refinement cycle in SQLite. One row per cycle;
// the journal is append-only and survives the process, so a run's
// history is queryable after the fact.
type Journal struct {
	db *sql.DB
}

// CycleRecord is one journaled refinement cycle.
type CycleRecord struct {
	RunID       string
	TargetID    string
	Attempt     int
	Tier        types.Tier
	Fingerprint string
	Outcome     string // cycle verdict: exploit-success, secure, technical, analysis, timeout
	ElapsedMS   int64
	CreatedAt   time.Time
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS cycles (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	tier        TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_cycles_run ON cycles(run_id);
CREATE INDEX IF NOT EXISTS idx_cycles_target ON cycles(target_id);
`

// OpenJournal opens (creating if needed) the journal database.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	// SQLite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY under parallel sessions.
	db.SetMaxOpenConns(1)
	return &Journal{db: db}, nil
}

// Record appends one cycle record.
func (j *Journal) Record(rec CycleRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO cycles (run_id, target_id, attempt, tier, fingerprint, outcome, elapsed_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TargetID, rec.Attempt, string(rec.Tier), rec.Fingerprint,
		rec.Outcome, rec.ElapsedMS, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	logging.StoreDebug("Journaled cycle: run=%s target=%s attempt=%d outcome=%s",
		rec.RunID, rec.TargetID, rec.Attempt, rec.Outcome)
	return nil
}

// History returns the journaled cycles for a target, oldest first.
func (j *Journal) History(targetID string) ([]CycleRecord, error) {
	rows, err := j.db.Query(
		`SELECT run_id, target_id, attempt, tier, fingerprint, outcome, elapsed_ms, created_at
		 FROM cycles WHERE target_id = ? ORDER BY id ASC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var tier string
		if err := rows.Scan(&rec.RunID, &rec.TargetID, &rec.Attempt, &tier,
			&rec.Fingerprint, &rec.Outcome, &rec.ElapsedMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		rec.Tier = types.Tier(tier)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RunSummary returns per-outcome cycle counts for one run.
func (j *Journal) RunSummary(runID string) (map[string]int, error) {
	rows, err := j.db.Query(
		`SELECT outcome, COUNT(*) FROM cycles WHERE run_id = ? GROUP BY outcome`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary[outcome] = count
	}
	return summary, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
