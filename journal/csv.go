package journal

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// CSV writes rows in Columns order under a single header line. Rows of
// every account land in the same file, one account after another.
type CSV struct {
	w *csv.Writer
	f io.Closer
}

func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	j, err := NewCSVWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	j.f = f
	return j, nil
}

// NewCSVWriter writes to w. Close flushes but leaves w open.
func NewCSVWriter(w io.Writer) (*CSV, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return &CSV{w: cw}, nil
}

func (j *CSV) RecordRow(r Row) error {
	err := j.w.Write([]string{
		strconv.FormatInt(ms(r.Time), 10),
		r.Symbol,
		f(r.Balance),
		f(r.Long),
		f(r.Short),
		f(r.AccountValue),
		f(r.Price),
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSV) Close() error {
	j.w.Flush()
	err := j.w.Error()
	if j.f == nil {
		return err
	}
	if err != nil {
		_ = j.f.Close()
		return err
	}
	return j.f.Close()
}

// f prints d exactly, without exponent or trailing zero padding.
func f(d decimal.Decimal) string {
	return d.String()
}
