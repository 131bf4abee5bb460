package journal

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores the rows of one run, keyed by run ID, next to the rows of
// earlier runs in the same database file.
type SQLite struct {
	db    *sql.DB
	runID string
	seq   int64
}

// NewSQLite opens (or creates) the database at path. Rows recorded through
// the returned journal belong to runID; a read-only caller may pass "".
func NewSQLite(path, runID string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	j := &SQLite{db: db, runID: runID}
	if runID != "" {
		// resume numbering if the run already has rows
		row := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM history WHERE run_id = ?`, runID)
		if err := row.Scan(&j.seq); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *SQLite) RunID() string { return j.runID }

func (j *SQLite) RecordRow(r Row) error {
	if j.runID == "" {
		return fmt.Errorf("sqlite journal opened without a run id")
	}
	j.seq++
	_, err := j.db.Exec(`
		INSERT INTO history
		(run_id, seq, account, ts, symbol, balance, long, short, account_value, price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, j.seq, r.Account, ms(r.Time), r.Symbol,
		f(r.Balance), f(r.Long), f(r.Short), f(r.AccountValue), f(r.Price),
	)
	return err
}

// RecordRun stores or replaces the summary of a run.
func (j *SQLite) RecordRun(run Run) error {
	if run.RunID == "" {
		run.RunID = j.runID
	}
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, created, dataset, strategy, symbols, start_time, end_time, events, fills, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Created.UTC(), run.Dataset, run.Strategy, strings.Join(run.Symbols, ","),
		ms(run.Start), ms(run.End), run.Events, run.Fills, run.Digest,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
