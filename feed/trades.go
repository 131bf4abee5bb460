package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

var thousand = decimal.NewFromInt(1000)

// TradeOptions filters the tape to trades strictly between From and To.
// Limit counts data rows read from the file and is applied before the
// window, so a window further into the file than Limit rows yields nothing.
type TradeOptions struct {
	// Symbol is used when the file has no symbol column.
	Symbol string
	Limit  int
	From   time.Time
	To     time.Time
}

// TradeReader reads a trade CSV with a header row. Columns are located
// by name: timestamp (epoch seconds, fractional), side (Buy|Sell), size,
// price and optionally symbol. Other columns are ignored.
type TradeReader struct {
	c    io.Closer
	r    *csv.Reader
	opts TradeOptions
	cols map[string]int
	line int
	rows int
}

// OpenTrades opens a trade file, decompressing it if needed.
func OpenTrades(path string, opts TradeOptions) (*TradeReader, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	tr, err := NewTradeReader(rc, opts)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tr.c = rc
	return tr, nil
}

// NewTradeReader reads the header from r.
func NewTradeReader(r io.Reader, opts TradeOptions) (*TradeReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trade file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"timestamp", "side", "size", "price"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("trade header is missing column %q", need)
		}
	}
	if _, ok := cols["symbol"]; !ok && opts.Symbol == "" {
		return nil, fmt.Errorf("trade header has no symbol column and no default symbol is set")
	}
	return &TradeReader{r: cr, opts: opts, cols: cols, line: 1}, nil
}

func (t *TradeReader) Close() error {
	if t.c != nil {
		return t.c.Close()
	}
	return nil
}

// Next returns the next trade inside the window. ok is false at the end
// of the file or once Limit rows have been read.
func (t *TradeReader) Next() (Trade, bool, error) {
	for {
		if t.opts.Limit > 0 && t.rows >= t.opts.Limit {
			return Trade{}, false, nil
		}
		row, err := t.r.Read()
		if errors.Is(err, io.EOF) {
			return Trade{}, false, nil
		}
		t.line++
		if err != nil {
			return Trade{}, false, fmt.Errorf("line %d: %w", t.line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		t.rows++

		tr, err := t.parse(row)
		if err != nil {
			return Trade{}, false, fmt.Errorf("line %d: %w", t.line, err)
		}
		if !inRange(tr.Time, t.opts.From, t.opts.To) {
			continue
		}
		return tr, true, nil
	}
}

func (t *TradeReader) field(row []string, name string) string {
	i, ok := t.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t *TradeReader) parse(row []string) (Trade, error) {
	ts, err := ParseSeconds(t.field(row, "timestamp"))
	if err != nil {
		return Trade{}, err
	}
	side, err := ParseSide(t.field(row, "side"))
	if err != nil {
		return Trade{}, err
	}
	price, err := decimal.NewFromString(t.field(row, "price"))
	if err != nil {
		return Trade{}, fmt.Errorf("bad price %q: %w", t.field(row, "price"), err)
	}
	size, err := decimal.NewFromString(t.field(row, "size"))
	if err != nil {
		return Trade{}, fmt.Errorf("bad size %q: %w", t.field(row, "size"), err)
	}

	sym := t.field(row, "symbol")
	if sym == "" {
		sym = t.opts.Symbol
	}
	return Trade{Time: ts, Symbol: sym, Side: side, Price: price, Size: size}, nil
}

// ParseSeconds converts fractional epoch seconds to a time rounded to
// the millisecond, half to even.
func ParseSeconds(s string) (time.Time, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return time.UnixMilli(d.Mul(thousand).RoundBank(0).IntPart()).UTC(), nil
}

// ParseSide accepts Buy or Sell in any case.
func ParseSide(s string) (order.Side, error) {
	switch strings.ToLower(s) {
	case "buy":
		return order.Buy, nil
	case "sell":
		return order.Sell, nil
	}
	return 0, fmt.Errorf("bad side %q", s)
}
