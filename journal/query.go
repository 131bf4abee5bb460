package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GetRun returns the summary of a single run.
func (j *SQLite) GetRun(runID string) (Run, error) {
	row := j.db.QueryRow(`
		SELECT run_id, created, dataset, strategy, symbols, start_time, end_time, events, fills, digest
		FROM runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns every stored run, oldest first.
func (j *SQLite) ListRuns() ([]Run, error) {
	rows, err := j.db.Query(`
		SELECT run_id, created, dataset, strategy, symbols, start_time, end_time, events, fills, digest
		FROM runs
		ORDER BY run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRows returns the history of runID in recording order. An empty
// account selects every account.
func (j *SQLite) ListRows(runID, account string) ([]Row, error) {
	rows, err := j.db.Query(`
		SELECT account, ts, symbol, balance, long, short, account_value, price
		FROM history
		WHERE run_id = ? AND (? = '' OR account = ?)
		ORDER BY seq ASC`, runID, account, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r    Row
			ts   int64
			nums [5]string
		)
		if err := rows.Scan(&r.Account, &ts, &r.Symbol, &nums[0], &nums[1], &nums[2], &nums[3], &nums[4]); err != nil {
			return nil, err
		}
		r.Time = time.UnixMilli(ts).UTC()
		dst := []*decimal.Decimal{&r.Balance, &r.Long, &r.Short, &r.AccountValue, &r.Price}
		for i, d := range dst {
			v, err := decimal.NewFromString(nums[i])
			if err != nil {
				return nil, fmt.Errorf("run %s row %s: column %s: %w", runID, r.Account, Columns[i+2], err)
			}
			*d = v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run        Run
		symbols    string
		start, end int64
	)
	if err := s.Scan(
		&run.RunID,
		&run.Created,
		&run.Dataset,
		&run.Strategy,
		&symbols,
		&start,
		&end,
		&run.Events,
		&run.Fills,
		&run.Digest,
	); err != nil {
		return Run{}, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.Start = time.UnixMilli(start).UTC()
	run.End = time.UnixMilli(end).UTC()
	return run, nil
}
