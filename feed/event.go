package feed

import (
	"time"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

// Trade is one printed trade from the tape. Side is the aggressor side.
type Trade struct {
	Time   time.Time
	Symbol string
	Side   order.Side
	Price  decimal.Decimal
	Size   decimal.Decimal
}

// Request turns the trade into the historical limit order it is replayed
// as: buys open longs, sells open shorts.
func (t Trade) Request() order.Request {
	dir := order.Long
	if t.Side == order.Sell {
		dir = order.Short
	}
	return order.Request{
		Symbol:    t.Symbol,
		Price:     t.Price,
		Volume:    t.Size,
		Kind:      order.Limit,
		Direction: dir,
		Offset:    order.Open,
		Origin:    order.Historical,
		Time:      t.Time,
	}
}

// DepthUpdate is a reduction of resting size at one price level.
type DepthUpdate struct {
	Time   time.Time
	Symbol string
	Side   order.Side
	Price  decimal.Decimal
	Volume decimal.Decimal
}

type EventKind int

const (
	TradeEvent EventKind = iota
	DepthEvent
)

func (k EventKind) String() string {
	if k == DepthEvent {
		return "depth"
	}
	return "trade"
}

// Event is either a trade or a depth update, per Kind.
type Event struct {
	Kind  EventKind
	Trade Trade
	Depth DepthUpdate
}

func TradeOf(t Trade) Event       { return Event{Kind: TradeEvent, Trade: t} }
func DepthOf(d DepthUpdate) Event { return Event{Kind: DepthEvent, Depth: d} }

func (e Event) Time() time.Time {
	if e.Kind == DepthEvent {
		return e.Depth.Time
	}
	return e.Trade.Time
}

func (e Event) Symbol() string {
	if e.Kind == DepthEvent {
		return e.Depth.Symbol
	}
	return e.Trade.Symbol
}

// inRange reports whether t falls in the open window (from, to). A zero
// bound is unbounded.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && !t.After(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
