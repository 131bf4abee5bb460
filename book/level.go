package book

import (
	"fmt"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

// slot pairs a resting historical order with the synthetic orders that
// queued up in front of it. Those synthetic orders fill only as fast as
// the historical order itself is consumed.
type slot struct {
	hist     *order.Record
	attached []*order.Record
}

// Level is the FIFO queue for one price on one side of a book. It keeps
// running totals so depth reads and emptiness checks never scan.
type Level struct {
	price    decimal.Decimal
	chain    []*slot
	trailing []*order.Record
	total    decimal.Decimal
	hist     decimal.Decimal
}

func newLevel(price decimal.Decimal) *Level {
	return &Level{price: price}
}

func (l *Level) Price() decimal.Decimal { return l.price }

// Total is the remaining volume of every order at this price.
func (l *Level) Total() decimal.Decimal { return l.total }

// HistoricalTotal is the remaining volume of replayed orders only.
func (l *Level) HistoricalTotal() decimal.Decimal { return l.hist }

// Orders returns the number of historical and synthetic orders held.
func (l *Level) Orders() (historical, synthetic int) {
	for _, s := range l.chain {
		synthetic += len(s.attached)
	}
	return len(l.chain), synthetic + len(l.trailing)
}

// Add queues o. A historical order closes the current trailing bucket:
// the synthetic orders waiting there become attached to it.
func (l *Level) Add(o *order.Record) {
	rem := o.Remaining()
	if o.Historical() {
		l.chain = append(l.chain, &slot{hist: o, attached: l.trailing})
		l.trailing = nil
		l.hist = l.hist.Add(rem)
	} else {
		l.trailing = append(l.trailing, o)
	}
	l.total = l.total.Add(rem)
}

// consumeSynthetic drains bucket in arrival order by up to amount.
func (l *Level) consumeSynthetic(bucket *[]*order.Record, amount decimal.Decimal) []Fill {
	var fills []Fill
	orders := *bucket
	for len(orders) > 0 && amount.Sign() > 0 {
		o := orders[0]
		rem := o.Remaining()
		if amount.GreaterThanOrEqual(rem) {
			amount = amount.Sub(rem)
			o.Fill(rem)
			l.total = l.total.Sub(rem)
			fills = append(fills, Fill{Handle: o.Handle, Price: l.price, Amount: rem, Final: true})
			orders[0] = nil
			orders = orders[1:]
			continue
		}
		o.Fill(amount)
		l.total = l.total.Sub(amount)
		fills = append(fills, Fill{Handle: o.Handle, Price: l.price, Amount: amount})
		break
	}
	*bucket = orders
	return fills
}

// Match consumes up to amount of incoming liquidity, oldest historical
// order first, and returns what could not be matched here.
func (l *Level) Match(amount decimal.Decimal) (decimal.Decimal, []Fill) {
	gross := amount
	var fills []Fill
	for len(l.chain) > 0 && amount.Sign() > 0 {
		head := l.chain[0]
		rem := head.hist.Remaining()
		if amount.GreaterThanOrEqual(rem) {
			amount = amount.Sub(rem)
			head.hist.Fill(rem)
			l.hist = l.hist.Sub(rem)
			fills = append(fills, l.consumeSynthetic(&head.attached, rem)...)
			l.popHead()
			continue
		}
		head.hist.Fill(amount)
		l.hist = l.hist.Sub(amount)
		fills = append(fills, l.consumeSynthetic(&head.attached, amount)...)
		amount = decimal.Zero
	}
	l.total = l.total.Sub(gross.Sub(amount))
	return amount, fills
}

// CancelHistorical removes up to amount of replayed resting size without
// trading it. A partly cancelled order has its requested size reduced.
func (l *Level) CancelHistorical(amount decimal.Decimal) decimal.Decimal {
	gross := amount
	for len(l.chain) > 0 && amount.Sign() > 0 {
		head := l.chain[0]
		rem := head.hist.Remaining()
		if amount.GreaterThanOrEqual(rem) {
			amount = amount.Sub(rem)
			head.hist.Requested = head.hist.Traded
			head.hist.Status = order.Cancelled
			l.hist = l.hist.Sub(rem)
			l.popHead()
			continue
		}
		head.hist.Requested = head.hist.Requested.Sub(amount)
		l.hist = l.hist.Sub(amount)
		amount = decimal.Zero
	}
	l.total = l.total.Sub(gross.Sub(amount))
	return amount
}

// CancelSynthetic drops the synthetic order h wherever it waits. It
// reports the removed record, or nil when h is not at this level.
func (l *Level) CancelSynthetic(h order.Handle) *order.Record {
	for _, s := range l.chain {
		if o := l.removeFrom(&s.attached, h); o != nil {
			return o
		}
	}
	return l.removeFrom(&l.trailing, h)
}

func (l *Level) removeFrom(bucket *[]*order.Record, h order.Handle) *order.Record {
	orders := *bucket
	for i, o := range orders {
		if o.Handle != h {
			continue
		}
		l.total = l.total.Sub(o.Remaining())
		*bucket = append(orders[:i:i], orders[i+1:]...)
		o.Status = order.Cancelled
		return o
	}
	return nil
}

// popHead dequeues the head historical order, carrying its unfilled
// attached orders to the front of the next bucket in line.
func (l *Level) popHead() {
	head := l.chain[0]
	l.chain[0] = nil
	l.chain = l.chain[1:]
	if len(head.attached) == 0 {
		return
	}
	if len(l.chain) > 0 {
		next := l.chain[0]
		next.attached = append(head.attached, next.attached...)
		return
	}
	l.trailing = append(head.attached, l.trailing...)
}

// release fills every synthetic order still waiting here at the level
// price. It is called when the level leaves its book.
func (l *Level) release() []Fill {
	var fills []Fill
	drain := func(bucket []*order.Record) {
		for _, o := range bucket {
			rem := o.Remaining()
			if rem.Sign() <= 0 {
				continue
			}
			o.Fill(rem)
			l.total = l.total.Sub(rem)
			fills = append(fills, Fill{Handle: o.Handle, Price: l.price, Amount: rem, Final: true})
		}
	}
	for _, s := range l.chain {
		drain(s.attached)
		s.attached = nil
	}
	drain(l.trailing)
	l.trailing = nil
	return fills
}

// consistent is the cheap check run after every mutation.
func (l *Level) consistent() error {
	if l.total.Sign() < 0 || l.hist.Sign() < 0 || l.hist.GreaterThan(l.total) {
		return fmt.Errorf("%w: level %s total=%s historical=%s", ErrInvariant, l.price, l.total, l.hist)
	}
	return nil
}

// Verify recomputes both totals by a full scan and compares them with the
// cached values.
func (l *Level) Verify() error {
	hist := decimal.Zero
	synth := decimal.Zero
	for _, s := range l.chain {
		r := s.hist.Remaining()
		if r.Sign() <= 0 {
			return fmt.Errorf("%w: level %s holds exhausted historical order %s", ErrInvariant, l.price, s.hist.Handle)
		}
		hist = hist.Add(r)
		for _, o := range s.attached {
			synth = synth.Add(o.Remaining())
		}
	}
	for _, o := range l.trailing {
		synth = synth.Add(o.Remaining())
	}
	if !hist.Equal(l.hist) {
		return fmt.Errorf("%w: level %s historical cached=%s actual=%s", ErrInvariant, l.price, l.hist, hist)
	}
	if want := hist.Add(synth); !want.Equal(l.total) {
		return fmt.Errorf("%w: level %s total cached=%s actual=%s", ErrInvariant, l.price, l.total, want)
	}
	return nil
}
