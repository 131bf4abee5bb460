// Package book rebuilds one symbol's limit-order book from replayed feed
// data and matches replayed and strategy orders against it with strict
// price-time priority.
//
// Replayed ("historical") orders are the real book: they consume and
// cancel each other's liquidity. Strategy ("synthetic") orders are
// assumed too small to move the market, so by default they fill without
// removing historical depth, and when they rest they only fill as fast
// as the real queue in front of them is consumed.
package book

import (
	"errors"
	"fmt"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvariant marks a broken internal accounting invariant. Results
	// produced after it are meaningless, so callers should stop.
	ErrInvariant = errors.New("book invariant violated")
	ErrRejected  = errors.New("order rejected")
)

// DefaultMaxDepth is the number of levels per side shown by Snapshot.
const DefaultMaxDepth = 5

// Fill is one execution produced while matching. Final is set when the
// fill took the order's remaining volume to zero.
type Fill struct {
	Handle order.Handle
	Price  decimal.Decimal
	Amount decimal.Decimal
	Final  bool
}

type Quote struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Seed is the first feed snapshot for a symbol. Bids are expected best
// (highest) first and asks best (lowest) first, but order is not relied on.
type Seed struct {
	Symbol string
	Bids   []Quote
	Asks   []Quote
}

// Depth is a read-only view of the best levels of a book.
type Depth struct {
	Symbol string
	Bids   []Quote
	Asks   []Quote
}

type Book struct {
	symbol   string
	maxDepth int
	impact   Impact
	strict   bool
	bids     *ladder
	asks     *ladder
}

type Option func(*Book)

func WithMaxDepth(n int) Option {
	return func(b *Book) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

func WithImpact(i Impact) Option {
	return func(b *Book) { b.impact = i }
}

// WithStrict re-verifies every touched level by full scan after each
// mutation.
func WithStrict(strict bool) Option {
	return func(b *Book) { b.strict = strict }
}

// New builds a book for seed.Symbol, installing one historical order per
// seeded level. Seeded orders are allocated from reg.
func New(seed Seed, reg *order.Registry, opts ...Option) (*Book, error) {
	b := &Book{
		symbol:   seed.Symbol,
		maxDepth: DefaultMaxDepth,
		bids:     newLadder(),
		asks:     newLadder(),
	}
	for _, opt := range opts {
		opt(b)
	}

	install := func(side order.Side, quotes []Quote) error {
		dir := order.Long
		if side == order.Sell {
			dir = order.Short
		}
		for _, q := range quotes {
			if q.Volume.Sign() <= 0 {
				return fmt.Errorf("%w: seed %s %s level %s has volume %s", ErrInvariant, seed.Symbol, side, q.Price, q.Volume)
			}
			rec := reg.New(order.Request{
				Symbol:    seed.Symbol,
				Price:     q.Price,
				Volume:    q.Volume,
				Kind:      order.Limit,
				Direction: dir,
				Offset:    order.Open,
				Origin:    order.Historical,
			})
			rec.Rest()
			b.ladder(side).upsert(q.Price, func() *Level { return newLevel(q.Price) }).Add(rec)
		}
		return nil
	}
	if err := install(order.Buy, seed.Bids); err != nil {
		return nil, err
	}
	if err := install(order.Sell, seed.Asks); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Book) Symbol() string { return b.symbol }

func (b *Book) MaxDepth() int { return b.maxDepth }

func (b *Book) ladder(side order.Side) *ladder {
	if side == order.Buy {
		return b.bids
	}
	return b.asks
}

// best returns the level with the highest priority on side.
func (b *Book) best(side order.Side) *Level {
	if side == order.Buy {
		return b.bids.max()
	}
	return b.asks.min()
}

func (b *Book) BestBid() (decimal.Decimal, bool) {
	if l := b.bids.max(); l != nil {
		return l.price, true
	}
	return decimal.Zero, false
}

func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if l := b.asks.min(); l != nil {
		return l.price, true
	}
	return decimal.Zero, false
}

// Level returns the level at price on side, or nil.
func (b *Book) Level(side order.Side, price decimal.Decimal) *Level {
	return b.ladder(side).find(price)
}

// Levels is the number of price levels on side.
func (b *Book) Levels(side order.Side) int {
	return b.ladder(side).Len()
}

// crosses reports whether an order on side at price can trade at level.
func crosses(side order.Side, price, level decimal.Decimal) bool {
	if side == order.Buy {
		return price.GreaterThanOrEqual(level)
	}
	return price.LessThanOrEqual(level)
}

// Place matches o against the opposite side and rests whatever is left
// of a limit order. A rejected order gets status Rejected and an error
// wrapping ErrRejected.
func (b *Book) Place(o *order.Record) ([]Fill, error) {
	switch o.Kind {
	case order.Market:
		return b.placeMarket(o)
	case order.Limit:
		return b.placeLimit(o)
	default:
		o.Status = order.Rejected
		return nil, fmt.Errorf("%w: unknown order kind %d", ErrRejected, o.Kind)
	}
}

func (b *Book) placeMarket(o *order.Record) ([]Fill, error) {
	if o.Historical() {
		o.Status = order.Rejected
		return nil, fmt.Errorf("%w: historical market order %s", ErrRejected, o.Handle)
	}
	opp := o.Side().Opposite()
	lvl := b.best(opp)
	if lvl == nil {
		o.Status = order.Rejected
		return nil, fmt.Errorf("%w: %s has no %s liquidity for market order %s", ErrRejected, b.symbol, opp, o.Handle)
	}
	return b.fillSynthetic(o, opp, lvl)
}

func (b *Book) placeLimit(o *order.Record) ([]Fill, error) {
	side := o.Side()
	opp := side.Opposite()

	var fills []Fill
	for o.Remaining().Sign() > 0 {
		lvl := b.best(opp)
		if lvl == nil || !crosses(side, o.Price, lvl.price) {
			break
		}
		if !o.Historical() {
			f, err := b.fillSynthetic(o, opp, lvl)
			fills = append(fills, f...)
			if err != nil {
				return fills, err
			}
			break
		}

		want := o.Remaining()
		left, f := lvl.Match(want)
		fills = append(fills, f...)
		if matched := want.Sub(left); matched.Sign() > 0 {
			o.Fill(matched)
		}
		if err := b.check(lvl); err != nil {
			return fills, err
		}
		if lvl.hist.Sign() > 0 {
			break
		}
		fills = append(fills, b.remove(opp, lvl)...)
	}

	if o.Remaining().Sign() > 0 {
		lvl := b.ladder(side).upsert(o.Price, func() *Level { return newLevel(o.Price) })
		lvl.Add(o)
		o.Rest()
		if err := b.check(lvl); err != nil {
			return fills, err
		}
	}
	return fills, nil
}

// fillSynthetic executes all of o at lvl's price. The book itself is only
// touched when the impact policy asks for it.
func (b *Book) fillSynthetic(o *order.Record, opp order.Side, lvl *Level) ([]Fill, error) {
	amount := o.Remaining()
	price := lvl.price
	o.Fill(amount)
	fills := []Fill{{Handle: o.Handle, Price: price, Amount: amount, Final: true}}

	if b.impact != DepthImpact {
		return fills, nil
	}
	lvl.CancelHistorical(amount)
	if err := b.check(lvl); err != nil {
		return fills, err
	}
	if lvl.hist.Sign() <= 0 {
		fills = append(fills, b.remove(opp, lvl)...)
	}
	return fills, nil
}

// CancelFeedLiquidity applies a feed-reported reduction of real resting
// size at price on side. Unknown prices are ignored.
func (b *Book) CancelFeedLiquidity(side order.Side, price, volume decimal.Decimal) ([]Fill, error) {
	lvl := b.ladder(side).find(price)
	if lvl == nil || volume.Sign() <= 0 {
		return nil, nil
	}
	lvl.CancelHistorical(volume)
	if err := b.check(lvl); err != nil {
		return nil, err
	}
	if lvl.hist.Sign() > 0 {
		return nil, nil
	}
	return b.remove(side, lvl), nil
}

// CancelOrder withdraws a resting synthetic order. Cancelling an order
// that is not resting is a no-op. Other orders waiting at the level keep
// their place, and the level leaves the book only once it is empty.
func (b *Book) CancelOrder(o *order.Record) error {
	if o.Historical() || o.Status.Terminal() {
		return nil
	}
	side := o.Side()
	lvl := b.ladder(side).find(o.Price)
	if lvl == nil || lvl.CancelSynthetic(o.Handle) == nil {
		return nil
	}
	if err := b.check(lvl); err != nil {
		return err
	}
	if lvl.total.Sign() <= 0 {
		b.ladder(side).delete(lvl.price)
	}
	return nil
}

// remove takes lvl out of the book. Synthetic orders still waiting there
// have been traded through and fill at the level price.
func (b *Book) remove(side order.Side, lvl *Level) []Fill {
	b.ladder(side).delete(lvl.price)
	return lvl.release()
}

func (b *Book) check(lvl *Level) error {
	if err := lvl.consistent(); err != nil {
		return fmt.Errorf("%s: %w", b.symbol, err)
	}
	if !b.strict {
		return nil
	}
	if err := lvl.Verify(); err != nil {
		return fmt.Errorf("%s: %w", b.symbol, err)
	}
	return nil
}

// Snapshot returns the best levels using the book's display depth.
func (b *Book) Snapshot() Depth {
	return b.SnapshotDepth(b.maxDepth)
}

// SnapshotDepth returns min(bid levels, ask levels, n) levels on both
// sides, so the two sides are always the same length.
func (b *Book) SnapshotDepth(n int) Depth {
	depth := min(b.bids.Len(), b.asks.Len(), n)
	d := Depth{
		Symbol: b.symbol,
		Bids:   make([]Quote, 0, max(depth, 0)),
		Asks:   make([]Quote, 0, max(depth, 0)),
	}
	if depth <= 0 {
		return d
	}
	b.bids.descend(func(l *Level) bool {
		d.Bids = append(d.Bids, Quote{Price: l.price, Volume: l.total})
		return len(d.Bids) < depth
	})
	b.asks.ascend(func(l *Level) bool {
		d.Asks = append(d.Asks, Quote{Price: l.price, Volume: l.total})
		return len(d.Asks) < depth
	})
	return d
}

// Verify checks every level of both sides by full scan.
func (b *Book) Verify() error {
	var err error
	visit := func(l *Level) bool {
		if e := l.Verify(); e != nil {
			err = fmt.Errorf("%s: %w", b.symbol, e)
			return false
		}
		return true
	}
	b.bids.ascend(visit)
	if err != nil {
		return err
	}
	b.asks.ascend(visit)
	return err
}
