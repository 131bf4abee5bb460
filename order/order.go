// Package order holds the order records shared by the book and the
// exchange, and the run-scoped registry that owns them.
package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction int

const (
	Long Direction = iota + 1
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

type Offset int

const (
	Open Offset = iota + 1
	Close
	CloseToday
)

func (o Offset) String() string {
	switch o {
	case Open:
		return "open"
	case Close:
		return "close"
	case CloseToday:
		return "close-today"
	default:
		return "unknown"
	}
}

type Kind int

const (
	Limit Kind = iota + 1
	Market
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

// Origin separates replayed market liquidity from strategy orders.
type Origin int

const (
	Synthetic Origin = iota
	Historical
)

func (o Origin) String() string {
	if o == Historical {
		return "historical"
	}
	return "synthetic"
}

type Status int

const (
	Submitting Status = iota + 1
	NotTraded
	PartTraded
	AllTraded
	Cancelled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case NotTraded:
		return "not-traded"
	case PartTraded:
		return "partially-traded"
	case AllTraded:
		return "fully-traded"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == AllTraded || s == Cancelled || s == Rejected
}

// Side is the book side an order rests on or takes from.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// SideOf maps (direction, offset) to a book side: opening a long or
// closing a short buys, opening a short or closing a long sells.
func SideOf(d Direction, o Offset) Side {
	if (d == Long) == (o == Open) {
		return Buy
	}
	return Sell
}

// FillSink is notified once an order's remaining volume reaches zero.
type FillSink interface {
	OnFilled(h Handle, amount, price decimal.Decimal)
}

// FillFunc adapts a plain function to FillSink.
type FillFunc func(h Handle, amount, price decimal.Decimal)

func (f FillFunc) OnFilled(h Handle, amount, price decimal.Decimal) { f(h, amount, price) }

// Request is what a caller submits; the registry turns it into a Record.
type Request struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Kind      Kind
	Direction Direction
	Offset    Offset
	Origin    Origin
	Time      time.Time
	Sink      FillSink
}

// Side reports the book side of the request.
func (r Request) Side() Side { return SideOf(r.Direction, r.Offset) }

type Record struct {
	Handle    Handle
	Symbol    string
	Direction Direction
	Offset    Offset
	Kind      Kind
	Origin    Origin
	Price     decimal.Decimal
	Requested decimal.Decimal
	Traded    decimal.Decimal
	Status    Status
	Sink      FillSink
	Time      time.Time
}

func (r *Record) Remaining() decimal.Decimal {
	return r.Requested.Sub(r.Traded)
}

func (r *Record) Side() Side { return SideOf(r.Direction, r.Offset) }

func (r *Record) Historical() bool { return r.Origin == Historical }

// Fill books amount as traded and moves the status forward.
func (r *Record) Fill(amount decimal.Decimal) {
	r.Traded = r.Traded.Add(amount)
	if r.Remaining().Sign() <= 0 {
		r.Status = AllTraded
	} else {
		r.Status = PartTraded
	}
}

// Rest settles the status of an order that is about to sit in the book.
func (r *Record) Rest() {
	if r.Traded.IsZero() {
		r.Status = NotTraded
	} else {
		r.Status = PartTraded
	}
}
