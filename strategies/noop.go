package strategies

import (
	"context"
	"fmt"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

// NoopStrategy does nothing.
type NoopStrategy struct{}

func (NoopStrategy) OnTick(ctx context.Context, v Venue, tick Tick) error {
	_ = ctx
	_ = v
	_ = tick
	return nil
}

// OpenOnceStrategy sends a single market order the first time it sees a
// tick for its symbol. Positive units open a long, negative a short.
// It's meant as a wiring test.
type OpenOnceStrategy struct {
	Symbol  string
	Account string
	Units   decimal.Decimal

	opened bool
	handle order.Handle
}

func (s *OpenOnceStrategy) OnTick(ctx context.Context, v Venue, tick Tick) error {
	if s.opened {
		return nil
	}
	if tick.Symbol != s.Symbol {
		return nil
	}
	if s.Units.IsZero() {
		return fmt.Errorf("open-once: units must be non-zero")
	}

	dir := order.Long
	if s.Units.IsNegative() {
		dir = order.Short
	}
	h, err := v.Submit(order.Request{
		Symbol:    s.Symbol,
		Volume:    s.Units.Abs(),
		Kind:      order.Market,
		Direction: dir,
		Offset:    order.Open,
		Origin:    order.Synthetic,
		Time:      tick.Time,
	}, s.Account)
	if err != nil {
		return routed(err)
	}
	s.opened = true
	s.handle = h
	return nil
}

// Handle is the order sent, zero until then.
func (s *OpenOnceStrategy) Handle() order.Handle { return s.handle }
