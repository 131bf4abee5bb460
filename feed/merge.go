package feed

import "errors"

type TradeSource interface {
	Next() (Trade, bool, error)
	Close() error
}

type DepthSource interface {
	Next() (DepthUpdate, bool, error)
	Close() error
}

// Merged interleaves a trade tape and a depth stream by time. On equal
// timestamps the trade comes first. Either source may be nil.
type Merged struct {
	trades TradeSource
	depth  DepthSource

	trade  Trade
	update DepthUpdate
	haveT  bool
	haveD  bool
	doneT  bool
	doneD  bool
}

func Merge(trades TradeSource, depth DepthSource) *Merged {
	return &Merged{trades: trades, depth: depth, doneT: trades == nil, doneD: depth == nil}
}

func (m *Merged) Next() (Event, bool, error) {
	if !m.haveT && !m.doneT {
		t, ok, err := m.trades.Next()
		if err != nil {
			return Event{}, false, err
		}
		m.trade, m.haveT, m.doneT = t, ok, !ok
	}
	if !m.haveD && !m.doneD {
		d, ok, err := m.depth.Next()
		if err != nil {
			return Event{}, false, err
		}
		m.update, m.haveD, m.doneD = d, ok, !ok
	}

	switch {
	case m.haveT && (!m.haveD || !m.update.Time.Before(m.trade.Time)):
		m.haveT = false
		return TradeOf(m.trade), true, nil
	case m.haveD:
		m.haveD = false
		return DepthOf(m.update), true, nil
	}
	return Event{}, false, nil
}

func (m *Merged) Close() error {
	var errs []error
	if m.trades != nil {
		errs = append(errs, m.trades.Close())
	}
	if m.depth != nil {
		errs = append(errs, m.depth.Close())
	}
	return errors.Join(errs...)
}
