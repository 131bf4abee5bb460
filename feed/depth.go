package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/XuAnn175/Simulator/book"
	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var depthLog = logrus.WithField("component", "feed")

const maxDepthLine = 64 << 20

// DepthMessage is one line of the depth stream. A snapshot replaces the
// whole book; in a delta a zero volume deletes the level and any other
// volume sets it.
type DepthMessage struct {
	Time     time.Time
	Snapshot bool
	Symbol   string
	Bids     []book.Quote
	Asks     []book.Quote
}

type depthLine struct {
	TS   int64  `json:"ts"`
	Type string `json:"type"`
	Data struct {
		Symbol string               `json:"s"`
		Bids   [][2]decimal.Decimal `json:"b"`
		Asks   [][2]decimal.Decimal `json:"a"`
	} `json:"data"`
}

// DepthReader decodes a depth stream, one JSON object per line.
type DepthReader struct {
	c      io.Closer
	sc     *bufio.Scanner
	symbol string
	line   int
}

// OpenDepth opens a depth file, decompressing it if needed. symbol is
// used for messages that do not name one.
func OpenDepth(path, symbol string) (*DepthReader, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	dr := NewDepthReader(rc, symbol)
	dr.c = rc
	return dr, nil
}

func NewDepthReader(r io.Reader, symbol string) *DepthReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxDepthLine)
	return &DepthReader{sc: sc, symbol: symbol}
}

func (d *DepthReader) Close() error {
	if d.c != nil {
		return d.c.Close()
	}
	return nil
}

func (d *DepthReader) Next() (DepthMessage, bool, error) {
	for d.sc.Scan() {
		d.line++
		raw := d.sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l depthLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return DepthMessage{}, false, fmt.Errorf("depth line %d: %w", d.line, err)
		}

		m := DepthMessage{
			Time:   time.UnixMilli(l.TS).UTC(),
			Symbol: l.Data.Symbol,
			Bids:   quotes(l.Data.Bids),
			Asks:   quotes(l.Data.Asks),
		}
		switch l.Type {
		case "snapshot":
			m.Snapshot = true
		case "delta":
		default:
			return DepthMessage{}, false, fmt.Errorf("depth line %d: unknown type %q", d.line, l.Type)
		}
		if m.Symbol == "" {
			m.Symbol = d.symbol
		}
		if m.Symbol == "" {
			return DepthMessage{}, false, fmt.Errorf("depth line %d: no symbol", d.line)
		}
		return m, true, nil
	}
	if err := d.sc.Err(); err != nil {
		return DepthMessage{}, false, fmt.Errorf("depth line %d: %w", d.line+1, err)
	}
	return DepthMessage{}, false, nil
}

func quotes(in [][2]decimal.Decimal) []book.Quote {
	out := make([]book.Quote, len(in))
	for i, pv := range in {
		out[i] = book.Quote{Price: pv[0], Volume: pv[1]}
	}
	return out
}

// DepthTracker keeps the last reported volume of every level and turns
// each message into the reductions it implies. Increases are not
// reported: new resting size only enters the book through replayed trades.
type DepthTracker struct {
	books map[string]*[2]map[string]book.Quote
}

func NewDepthTracker() *DepthTracker {
	return &DepthTracker{books: make(map[string]*[2]map[string]book.Quote)}
}

func sideIndex(s order.Side) int {
	if s == order.Sell {
		return 1
	}
	return 0
}

func (t *DepthTracker) state(symbol string) *[2]map[string]book.Quote {
	st, ok := t.books[symbol]
	if !ok {
		st = &[2]map[string]book.Quote{{}, {}}
		t.books[symbol] = st
	}
	return st
}

// Seeded reports whether a snapshot or delta has been seen for symbol.
func (t *DepthTracker) Seeded(symbol string) bool {
	_, ok := t.books[symbol]
	return ok
}

// Apply folds m into the tracked depth. The returned reductions are
// ordered bids then asks, each best price first.
func (t *DepthTracker) Apply(m DepthMessage) []DepthUpdate {
	st := t.state(m.Symbol)
	var out []DepthUpdate
	for _, side := range []order.Side{order.Buy, order.Sell} {
		levels := st[sideIndex(side)]
		in := m.Bids
		if side == order.Sell {
			in = m.Asks
		}

		var cuts []DepthUpdate
		cut := func(q book.Quote, to decimal.Decimal) {
			if q.Volume.GreaterThan(to) {
				cuts = append(cuts, DepthUpdate{
					Time:   m.Time,
					Symbol: m.Symbol,
					Side:   side,
					Price:  q.Price,
					Volume: q.Volume.Sub(to),
				})
			}
		}

		if m.Snapshot {
			next := make(map[string]book.Quote, len(in))
			for _, q := range in {
				if q.Volume.Sign() > 0 {
					next[q.Price.String()] = q
				}
			}
			for k, q := range levels {
				cut(q, next[k].Volume)
			}
			levels = next
		} else {
			for _, q := range in {
				k := q.Price.String()
				if prev, ok := levels[k]; ok {
					cut(prev, q.Volume)
				}
				if q.Volume.Sign() <= 0 {
					delete(levels, k)
				} else {
					levels[k] = q
				}
			}
		}
		st[sideIndex(side)] = levels

		sort.Slice(cuts, func(i, j int) bool {
			if side == order.Buy {
				return cuts[i].Price.GreaterThan(cuts[j].Price)
			}
			return cuts[i].Price.LessThan(cuts[j].Price)
		})
		out = append(out, cuts...)
	}
	return out
}

// Seed returns the tracked depth of symbol, best levels first.
func (t *DepthTracker) Seed(symbol string) book.Seed {
	st := t.state(symbol)
	s := book.Seed{Symbol: symbol}
	for k := range st[0] {
		s.Bids = append(s.Bids, st[0][k])
	}
	for k := range st[1] {
		s.Asks = append(s.Asks, st[1][k])
	}
	sort.Slice(s.Bids, func(i, j int) bool { return s.Bids[i].Price.GreaterThan(s.Bids[j].Price) })
	sort.Slice(s.Asks, func(i, j int) bool { return s.Asks[i].Price.LessThan(s.Asks[j].Price) })
	return s
}

// DepthStream replays a depth file as reductions. Prime must be called
// first: it folds the leading snapshots, plus every message stamped at or
// before From, into the seeds the books start from.
type DepthStream struct {
	r       *DepthReader
	tracker *DepthTracker
	from    time.Time
	to      time.Time

	held    *DepthMessage
	pending []DepthUpdate
	primed  bool
	done    bool
}

func NewDepthStream(r *DepthReader, from, to time.Time) *DepthStream {
	return &DepthStream{r: r, tracker: NewDepthTracker(), from: from, to: to}
}

// Prime returns one seed per symbol found in the leading snapshots, in
// the order they appear.
func (s *DepthStream) Prime() ([]book.Seed, error) {
	if s.primed {
		return nil, fmt.Errorf("depth stream already primed")
	}
	s.primed = true

	var symbols []string
	leading := true
	for {
		m, ok, err := s.r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			s.done = true
			break
		}
		if leading && m.Snapshot && !s.tracker.Seeded(m.Symbol) {
			symbols = append(symbols, m.Symbol)
			s.tracker.Apply(m)
			continue
		}
		leading = false
		if len(symbols) == 0 {
			return nil, fmt.Errorf("depth stream must start with a snapshot, got a delta for %s", m.Symbol)
		}
		if !s.from.IsZero() && !m.Time.After(s.from) {
			if s.tracker.Seeded(m.Symbol) {
				s.tracker.Apply(m)
			}
			continue
		}
		s.held = &m
		break
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("depth stream has no snapshot")
	}

	seeds := make([]book.Seed, 0, len(symbols))
	for _, sym := range symbols {
		seeds = append(seeds, s.tracker.Seed(sym))
	}
	depthLog.Debugf("primed %d symbols from depth stream", len(seeds))
	return seeds, nil
}

// Next returns the next reduction. Messages for symbols that were not
// seeded are skipped.
func (s *DepthStream) Next() (DepthUpdate, bool, error) {
	if !s.primed {
		return DepthUpdate{}, false, fmt.Errorf("depth stream used before Prime")
	}
	for len(s.pending) == 0 {
		if s.done {
			return DepthUpdate{}, false, nil
		}
		var m DepthMessage
		if s.held != nil {
			m, s.held = *s.held, nil
		} else {
			var ok bool
			var err error
			m, ok, err = s.r.Next()
			if err != nil {
				return DepthUpdate{}, false, err
			}
			if !ok {
				s.done = true
				continue
			}
		}
		if !s.to.IsZero() && !m.Time.Before(s.to) {
			s.done = true
			continue
		}
		if !s.tracker.Seeded(m.Symbol) {
			depthLog.Debugf("skipping depth for unseeded symbol %s", m.Symbol)
			continue
		}
		s.pending = s.tracker.Apply(m)
	}
	u := s.pending[0]
	s.pending = s.pending[1:]
	return u, true, nil
}

func (s *DepthStream) Close() error { return s.r.Close() }
