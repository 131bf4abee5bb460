package exchange

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/XuAnn175/Simulator/book"
	"github.com/XuAnn175/Simulator/journal"
	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s", want, got.String())
}

func q(price, vol string) book.Quote { return book.Quote{Price: dec(price), Volume: dec(vol)} }

func newExchange(t *testing.T, bids, asks []book.Quote, opts ...Option) *Exchange {
	t.Helper()
	e, err := New([]book.Seed{{Symbol: "BTCUSDT", Bids: bids, Asks: asks}}, append(opts, WithStrict(true))...)
	require.NoError(t, err)
	require.NoError(t, e.AddAccount("test", dec("1000")))
	return e
}

func limit(dir order.Direction, off order.Offset, price, vol string) order.Request {
	return order.Request{
		Symbol:    "BTCUSDT",
		Price:     dec(price),
		Volume:    dec(vol),
		Kind:      order.Limit,
		Direction: dir,
		Offset:    off,
		Time:      time.UnixMilli(1700000000000),
	}
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	h      order.Handle
	amount decimal.Decimal
	price  decimal.Decimal
}

func (r *recorder) OnFilled(h order.Handle, amount, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{h, amount, price})
}

func TestSyntheticBuyFillsWithoutImpact(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	rec := &recorder{}
	req := limit(order.Long, order.Open, "101", "4")
	req.Sink = rec

	h, err := e.Submit(req, "test")
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, h, rec.calls[0].h)
	assertDec(t, "4", rec.calls[0].amount)
	assertDec(t, "101", rec.calls[0].price)

	o, ok := e.Order(h)
	require.True(t, ok)
	assert.Equal(t, order.AllTraded, o.Status)

	snap := e.Snapshot()["BTCUSDT"]
	require.Len(t, snap.Asks, 1)
	assertDec(t, "10", snap.Asks[0].Volume)
}

func TestSyntheticBuyWithDepthImpact(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")}, WithImpact(book.DepthImpact))
	rec := &recorder{}
	req := limit(order.Long, order.Open, "101", "4")
	req.Sink = rec

	_, err := e.Submit(req, "test")
	require.NoError(t, err)
	assert.Len(t, rec.calls, 1)

	snap := e.Snapshot()["BTCUSDT"]
	require.Len(t, snap.Asks, 1)
	assertDec(t, "101", snap.Asks[0].Price)
	assertDec(t, "6", snap.Asks[0].Volume)
}

func TestHistoricalSellMovesReferencePrice(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	p, err := e.ReferencePrice("BTCUSDT")
	require.NoError(t, err)
	assertDec(t, "100.5", p)

	req := limit(order.Short, order.Open, "100", "15")
	req.Origin = order.Historical
	_, err = e.Submit(req, "")
	require.NoError(t, err)

	// bids are gone, so the last two-sided mid is carried forward
	p, err = e.ReferencePrice("BTCUSDT")
	require.NoError(t, err)
	assertDec(t, "100.5", p)

	snap := e.Snapshot()["BTCUSDT"]
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks, "one-sided book shows no depth")

	req = limit(order.Long, order.Open, "98", "1")
	req.Origin = order.Historical
	_, err = e.Submit(req, "")
	require.NoError(t, err)
	p, err = e.ReferencePrice("BTCUSDT")
	require.NoError(t, err)
	assertDec(t, "99", p)
}

func TestLedgerLongOpen(t *testing.T) {
	e := newExchange(t, []book.Quote{q("49", "10")}, []book.Quote{q("50", "10")})

	_, err := e.Submit(limit(order.Long, order.Open, "50", "4"), "test")
	require.NoError(t, err)

	a, err := e.Account("test")
	require.NoError(t, err)
	assertDec(t, "800", a.Balance)
	assertDec(t, "4", a.Position("BTCUSDT").Long)
	assertDec(t, "0", a.Position("BTCUSDT").Short)

	rows := e.History("test")
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "test", r.Account)
	assert.Equal(t, "BTCUSDT", r.Symbol)
	assert.Equal(t, int64(1700000000000), r.Time.UnixMilli())
	assertDec(t, "800", r.Balance)
	assertDec(t, "4", r.Long)
	assertDec(t, "49.5", r.Price)
	assertDec(t, "998", r.AccountValue) // 800 + 4*49.5
}

func TestLedgerRules(t *testing.T) {
	tests := []struct {
		name    string
		dir     order.Direction
		off     order.Offset
		price   string
		balance string
		long    string
		short   string
	}{
		{"long open buys", order.Long, order.Open, "101", "596", "4", "0"},
		{"long close sells", order.Long, order.Close, "100", "1400", "-4", "0"},
		{"short open sells", order.Short, order.Open, "100", "1400", "0", "4"},
		{"short close buys", order.Short, order.Close, "101", "596", "0", "-4"},
		{"close today is close", order.Short, order.CloseToday, "101", "596", "0", "-4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
			_, err := e.Submit(limit(tt.dir, tt.off, tt.price, "4"), "test")
			require.NoError(t, err)

			a, err := e.Account("test")
			require.NoError(t, err)
			assertDec(t, tt.balance, a.Balance)
			assertDec(t, tt.long, a.Position("BTCUSDT").Long)
			assertDec(t, tt.short, a.Position("BTCUSDT").Short)

			rows := e.History("test")
			require.Len(t, rows, 1)
			// value = balance + (long-short) * 100.5
			want := dec(tt.balance).Add(dec(tt.long).Sub(dec(tt.short)).Mul(dec("100.5")))
			assertDec(t, want.String(), rows[0].AccountValue)
		})
	}
}

func TestUnlinkedFillsLeaveLedgerAlone(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	_, err := e.Submit(limit(order.Long, order.Open, "101", "4"), "")
	require.NoError(t, err)

	a, _ := e.Account("test")
	assertDec(t, "1000", a.Balance)
	assert.Empty(t, e.History("test"))
	assert.Equal(t, 1, e.Fills())
}

func TestUnknownAccountRunsUnlinked(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	h, err := e.Submit(limit(order.Long, order.Open, "101", "4"), "nobody")
	require.NoError(t, err)

	o, ok := e.Order(h)
	require.True(t, ok)
	assert.Equal(t, order.AllTraded, o.Status)
	assert.Empty(t, e.History("test"))

	_, err = e.Account("nobody")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestRoutingErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*order.Request)
		wantErr error
	}{
		{"unknown symbol", func(r *order.Request) { r.Symbol = "ETHUSDT" }, ErrUnknownSymbol},
		{"zero volume", func(r *order.Request) { r.Volume = decimal.Zero }, ErrInvalidOrder},
		{"negative price", func(r *order.Request) { r.Price = dec("-1") }, ErrInvalidOrder},
		{"historical market", func(r *order.Request) { r.Kind = order.Market; r.Origin = order.Historical }, ErrInvalidOrder},
		{"missing offset", func(r *order.Request) { r.Offset = 0 }, ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
			req := limit(order.Long, order.Open, "101", "4")
			tt.mutate(&req)

			h, err := e.Submit(req, "test")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, IsFatal(err))

			o, ok := e.Order(h)
			require.True(t, ok)
			assert.Equal(t, order.Rejected, o.Status)
			assert.NoError(t, e.Err())
		})
	}
}

func TestMarketOrderOnEmptySideIsRejected(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, nil)
	req := limit(order.Long, order.Open, "0", "1")
	req.Kind = order.Market

	h, err := e.Submit(req, "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, book.ErrRejected)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.False(t, IsFatal(err))
	o, _ := e.Order(h)
	assert.Equal(t, order.Rejected, o.Status)
}

func TestMarketOrderFillsAtBestPrice(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10"), q("102", "10")})
	req := limit(order.Long, order.Open, "0", "30")
	req.Kind = order.Market

	_, err := e.Submit(req, "test")
	require.NoError(t, err)
	a, _ := e.Account("test")
	assertDec(t, "-2030", a.Balance)
}

func TestNoReferencePriceIsFatalWhenValuingFills(t *testing.T) {
	e := newExchange(t, nil, []book.Quote{q("101", "10")})
	_, err := e.ReferencePrice("BTCUSDT")
	assert.ErrorIs(t, err, ErrNoReferencePrice)

	// unlinked fills need no valuation
	_, err = e.Submit(limit(order.Long, order.Open, "101", "1"), "")
	require.NoError(t, err)

	_, err = e.Submit(limit(order.Long, order.Open, "101", "1"), "test")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, ErrNoReferencePrice)

	_, err = e.Submit(limit(order.Long, order.Open, "101", "1"), "")
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, e.Cancel(1), ErrHalted)
	assert.ErrorIs(t, e.CancelFeedLiquidity("BTCUSDT", order.Sell, dec("101"), dec("1"), time.Time{}), ErrHalted)
	assert.ErrorIs(t, e.Err(), ErrNoReferencePrice)
}

func TestUnknownSymbolQueries(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	_, err := e.ReferencePrice("ETHUSDT")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	err = e.CancelFeedLiquidity("ETHUSDT", order.Buy, dec("1"), dec("1"), time.Time{})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.False(t, IsFatal(err))
}

func TestNewRejectsBadSeeds(t *testing.T) {
	_, err := New([]book.Seed{{Symbol: "BTCUSDT", Bids: []book.Quote{q("100", "0")}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, book.ErrInvariant)
	assert.True(t, IsFatal(err))

	_, err = New([]book.Seed{{Symbol: "BTCUSDT"}, {Symbol: "BTCUSDT"}})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAddAccount(t *testing.T) {
	e, err := New([]book.Seed{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}})
	require.NoError(t, err)
	require.NoError(t, e.AddAccount("a", dec("10")))
	require.NoError(t, e.AddAccount("b", dec("20")))
	assert.ErrorIs(t, e.AddAccount("a", dec("1")), ErrDuplicate)
	assert.Error(t, e.AddAccount("", dec("1")))

	accts := e.Accounts()
	require.Len(t, accts, 2)
	assert.Equal(t, "a", accts[0].Name)
	assert.Equal(t, "b", accts[1].Name)
	assert.Len(t, accts[0].Positions, 2)
	assertDec(t, "0", accts[0].Positions["ETHUSDT"].Long)
	assertDec(t, "10", accts[0].Initial)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, e.Symbols())
}

func TestCancel(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	h, err := e.Submit(limit(order.Long, order.Open, "100", "3"), "test")
	require.NoError(t, err)
	o, _ := e.Order(h)
	assert.Equal(t, order.NotTraded, o.Status)
	assertDec(t, "13", e.Snapshot()["BTCUSDT"].Bids[0].Volume)

	require.NoError(t, e.Cancel(h))
	o, _ = e.Order(h)
	assert.Equal(t, order.Cancelled, o.Status)
	assertDec(t, "10", e.Snapshot()["BTCUSDT"].Bids[0].Volume)

	require.NoError(t, e.Cancel(h))
	require.NoError(t, e.Cancel(0))
	assertDec(t, "10", e.Snapshot()["BTCUSDT"].Bids[0].Volume)

	// handles from another exchange never resolve here
	other := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	foreign, err := other.Submit(limit(order.Long, order.Open, "100", "3"), "")
	require.NoError(t, err)
	require.NoError(t, e.Cancel(foreign))
	_, ok := e.Order(foreign)
	assert.False(t, ok)
}

// Cancelling one of two orders resting alone at a price leaves the other
// untouched and books nothing.
func TestCancelKeepsOtherOrdersAtSyntheticLevel(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("105", "10")})
	rec := &recorder{}
	small := limit(order.Long, order.Open, "102", "1")
	big := limit(order.Long, order.Open, "102", "50")
	big.Sink = rec
	a, err := e.Submit(small, "test")
	require.NoError(t, err)
	b, err := e.Submit(big, "test")
	require.NoError(t, err)

	require.NoError(t, e.Cancel(a))

	o, _ := e.Order(b)
	assert.Equal(t, order.NotTraded, o.Status)
	assert.True(t, o.Traded.IsZero())
	assert.Empty(t, rec.calls)
	assert.Zero(t, e.Fills())
	assert.Empty(t, e.History("test"))

	acct, err := e.Account("test")
	require.NoError(t, err)
	assertDec(t, "1000", acct.Balance)
	assertDec(t, "0", acct.Position("BTCUSDT").Long)

	bids := e.Snapshot()["BTCUSDT"].Bids
	require.NotEmpty(t, bids)
	assertDec(t, "102", bids[0].Price)
	assertDec(t, "50", bids[0].Volume)
}

func TestFeedCancelReleasesRestingOrder(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10"), q("99", "10")}, []book.Quote{q("101", "10")})
	rec := &recorder{}
	req := limit(order.Long, order.Open, "100", "2")
	req.Sink = rec
	h, err := e.Submit(req, "test")
	require.NoError(t, err)
	assert.Empty(t, rec.calls)

	ts := time.UnixMilli(1700000000500)
	require.NoError(t, e.CancelFeedLiquidity("BTCUSDT", order.Buy, dec("100"), dec("10"), ts))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, h, rec.calls[0].h)
	assertDec(t, "100", rec.calls[0].price)

	rows := e.History("test")
	require.Len(t, rows, 1)
	assert.Equal(t, ts.UnixMilli(), rows[0].Time.UnixMilli())
	assertDec(t, "800", rows[0].Balance)
	assertDec(t, "100", rows[0].Price) // mid of 99 and 101
}

type resubmitter struct {
	e       *Exchange
	t       *testing.T
	inner   order.Handle
	status  order.Status
	handles []order.Handle
}

func (r *resubmitter) OnFilled(h order.Handle, amount, price decimal.Decimal) {
	r.handles = append(r.handles, h)
	if len(r.handles) > 1 {
		return
	}
	req := limit(order.Long, order.Close, "100", amount.String())
	req.Sink = r
	inner, err := r.e.Submit(req, "test")
	require.NoError(r.t, err)
	r.inner = inner
	o, _ := r.e.Order(inner)
	r.status = o.Status
}

func TestSubmitFromSinkIsQueued(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	sink := &resubmitter{e: e, t: t}
	req := limit(order.Long, order.Open, "101", "4")
	req.Sink = sink

	outer, err := e.Submit(req, "test")
	require.NoError(t, err)

	assert.Equal(t, order.Submitting, sink.status, "queued order is not processed inside the sink")
	require.Len(t, sink.handles, 2)
	assert.Equal(t, outer, sink.handles[0])
	assert.Equal(t, sink.inner, sink.handles[1])

	o, _ := e.Order(sink.inner)
	assert.Equal(t, order.AllTraded, o.Status)

	a, _ := e.Account("test")
	assertDec(t, "996", a.Balance) // -404 + 400
	assertDec(t, "0", a.Position("BTCUSDT").Long)
	assert.Len(t, e.History("test"), 2)
}

func TestQueuedRejectionIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")},
		WithLogger(logger.WithField("component", "exchange")))

	var inner order.Handle
	var innerErr error
	req := limit(order.Long, order.Open, "101", "1")
	req.Sink = order.FillFunc(func(order.Handle, decimal.Decimal, decimal.Decimal) {
		bad := limit(order.Long, order.Open, "101", "1")
		bad.Symbol = "ETHUSDT"
		inner, innerErr = e.Submit(bad, "test")
	})

	_, err := e.Submit(req, "test")
	require.NoError(t, err)
	assert.NoError(t, innerErr, "a queued call reports nothing to its caller")

	o, ok := e.Order(inner)
	require.True(t, ok)
	assert.Equal(t, order.Rejected, o.Status)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "queued call failed") {
			warned = true
			assert.Contains(t, entry.Message, ErrUnknownSymbol.Error())
		}
	}
	assert.True(t, warned, "queued rejection was not logged as a warning")
}

func TestSinkPanicIsContained(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	req := limit(order.Long, order.Open, "101", "1")
	req.Sink = order.FillFunc(func(order.Handle, decimal.Decimal, decimal.Decimal) { panic("boom") })

	_, err := e.Submit(req, "test")
	require.NoError(t, err)

	_, err = e.Submit(limit(order.Long, order.Open, "101", "1"), "test")
	require.NoError(t, err)
	assert.Len(t, e.History("test"), 2)
}

func TestFlushHistory(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	require.NoError(t, e.AddAccount("second", dec("0")))

	_, err := e.Submit(limit(order.Short, order.Open, "100", "1"), "second")
	require.NoError(t, err)
	_, err = e.Submit(limit(order.Long, order.Open, "101", "1"), "test")
	require.NoError(t, err)
	_, err = e.Submit(limit(order.Long, order.Open, "101", "2"), "test")
	require.NoError(t, err)

	mem := &journal.Memory{}
	require.NoError(t, e.FlushHistory(mem))
	require.Len(t, mem.Rows, 3)
	assert.Equal(t, "test", mem.Rows[0].Account)
	assert.Equal(t, "test", mem.Rows[1].Account)
	assert.Equal(t, "second", mem.Rows[2].Account)
	assertDec(t, "697", mem.Rows[1].Balance)

	assert.Empty(t, e.History("test"))
	require.NoError(t, e.FlushHistory(mem))
	assert.Len(t, mem.Rows, 3)
}

type failingJournal struct{}

func (failingJournal) RecordRow(journal.Row) error { return errors.New("disk full") }
func (failingJournal) Close() error                { return nil }

func TestFlushHistoryKeepsRowsOnError(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "10")}, []book.Quote{q("101", "10")})
	_, err := e.Submit(limit(order.Long, order.Open, "101", "1"), "test")
	require.NoError(t, err)

	assert.Error(t, e.FlushHistory(failingJournal{}))
	assert.Len(t, e.History("test"), 1)
}

func TestConcurrentCallersAreSerialized(t *testing.T) {
	e := newExchange(t, []book.Quote{q("100", "1000")}, []book.Quote{q("101", "1000")})

	var wg sync.WaitGroup
	handles := make([]order.Handle, 40)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := e.Submit(limit(order.Long, order.Open, "101", "1"), "test")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		o, ok := e.Order(h)
		require.True(t, ok)
		assert.Equal(t, order.AllTraded, o.Status)
	}
	a, _ := e.Account("test")
	assertDec(t, "-3040", a.Balance)
	assert.Len(t, e.History("test"), 40)
}
