// Package journal persists the account history produced by a replay.
package journal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one account snapshot taken right after a fill was applied.
// Long and Short are the position in Symbol only, and AccountValue marks
// that position to Price.
type Row struct {
	Account      string
	Time         time.Time
	Symbol       string
	Balance      decimal.Decimal
	Long         decimal.Decimal
	Short        decimal.Decimal
	AccountValue decimal.Decimal
	Price        decimal.Decimal
}

// Columns is the column order used by every tabular export.
var Columns = []string{"timestamp", "symbol", "balance", "long", "short", "account_value", "price"}

type Journal interface {
	RecordRow(Row) error
	Close() error
}

// Multi fans every row out to several journals. Close closes all of them
// and reports every failure.
type Multi []Journal

func (m Multi) RecordRow(r Row) error {
	for _, j := range m {
		if err := j.RecordRow(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps rows in memory. Useful for tests and for callers that want
// to inspect the history after a run.
type Memory struct {
	Rows   []Row
	Closed bool
}

func (m *Memory) RecordRow(r Row) error {
	m.Rows = append(m.Rows, r)
	return nil
}

func (m *Memory) Close() error {
	m.Closed = true
	return nil
}

// ms renders t as epoch milliseconds, the timestamp unit of the feed.
func ms(t time.Time) int64 { return t.UnixMilli() }
