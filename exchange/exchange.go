// Package exchange routes orders to per-symbol books, tracks a reference
// price per symbol and keeps the account ledger.
//
// The exchange is a single logical actor. One mutex serializes every call,
// and fill sinks run after the call that produced the fills has updated
// the ledger and released the lock. A call that arrives while another is
// still in progress, from inside a sink or from another goroutine, is
// queued and runs, in order, once the outer call is done. A queued call
// returns nil at once; its own error is only logged.
package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/XuAnn175/Simulator/book"
	"github.com/XuAnn175/Simulator/journal"
	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var exchangeLog = logrus.WithField("component", "exchange")

type Exchange struct {
	mu  sync.Mutex
	log *logrus.Entry

	reg      *order.Registry
	books    map[string]*book.Book
	symbols  []string
	ref      map[string]decimal.Decimal
	bookOpts []book.Option

	accounts map[string]*Account
	names    []string
	links    map[order.Handle]string
	history  map[string][]journal.Row
	fills    int

	busy    bool
	pending []func() ([]notice, error)
	fault   error
}

type Option func(*Exchange)

func WithMaxDepth(n int) Option {
	return func(e *Exchange) { e.bookOpts = append(e.bookOpts, book.WithMaxDepth(n)) }
}

func WithImpact(i book.Impact) Option {
	return func(e *Exchange) { e.bookOpts = append(e.bookOpts, book.WithImpact(i)) }
}

func WithStrict(strict bool) Option {
	return func(e *Exchange) { e.bookOpts = append(e.bookOpts, book.WithStrict(strict)) }
}

func WithLogger(l *logrus.Entry) Option {
	return func(e *Exchange) {
		if l != nil {
			e.log = l
		}
	}
}

// notice is a sink invocation deferred until the lock is released.
type notice struct {
	sink   order.FillSink
	handle order.Handle
	amount decimal.Decimal
	price  decimal.Decimal
}

// New builds one book per seed. Symbols must be unique.
func New(seeds []book.Seed, opts ...Option) (*Exchange, error) {
	e := &Exchange{
		log:      exchangeLog,
		reg:      order.NewRegistry(),
		books:    make(map[string]*book.Book, len(seeds)),
		ref:      make(map[string]decimal.Decimal, len(seeds)),
		accounts: make(map[string]*Account),
		links:    make(map[order.Handle]string),
		history:  make(map[string][]journal.Row),
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, seed := range seeds {
		if _, ok := e.books[seed.Symbol]; ok {
			return nil, fmt.Errorf("symbol %q: %w", seed.Symbol, ErrDuplicate)
		}
		b, err := book.New(seed, e.reg, e.bookOpts...)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", seed.Symbol, err)
		}
		e.books[seed.Symbol] = b
		e.symbols = append(e.symbols, seed.Symbol)
		e.updateReference(seed.Symbol)
	}
	e.log.Debugf("exchange ready: symbols=%v", e.symbols)
	return e, nil
}

// Symbols lists the traded symbols in seed order.
func (e *Exchange) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.symbols...)
}

// AddAccount opens an account with a zero position in every symbol.
func (e *Exchange) AddAccount(name string, balance decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		return fmt.Errorf("account name is required")
	}
	if _, ok := e.accounts[name]; ok {
		return fmt.Errorf("account %q: %w", name, ErrDuplicate)
	}
	e.accounts[name] = newAccount(name, balance, e.symbols)
	e.names = append(e.names, name)
	e.history[name] = nil
	return nil
}

// Submit allocates an order for req and routes it to its book. The handle
// is valid even when an error is returned; a rejected order keeps status
// Rejected. Fills of orders linked to account are booked to its ledger.
// An unknown account is logged and the order runs unlinked.
//
// When another call is in progress the order is queued: Submit returns the
// handle and a nil error with the order still Submitting, and a later
// rejection is only logged. Check the order's status through the handle.
func (e *Exchange) Submit(req order.Request, account string) (order.Handle, error) {
	e.mu.Lock()
	if e.fault != nil {
		e.mu.Unlock()
		return 0, e.halted()
	}
	rec := e.reg.New(req)
	err := e.runLocked(func() ([]notice, error) {
		return e.submitLocked(rec, account)
	})
	return rec.Handle, err
}

// Cancel withdraws a resting synthetic order. Unknown, historical and
// finished orders are ignored. Like Submit, a Cancel issued while another
// call is in progress is queued and returns nil.
func (e *Exchange) Cancel(h order.Handle) error {
	e.mu.Lock()
	if e.fault != nil {
		e.mu.Unlock()
		return e.halted()
	}
	return e.runLocked(func() ([]notice, error) {
		return e.cancelLocked(h)
	})
}

// CancelFeedLiquidity removes volume of replayed resting size at price on
// side, as reported by a depth update stamped ts.
func (e *Exchange) CancelFeedLiquidity(symbol string, side order.Side, price, volume decimal.Decimal, ts time.Time) error {
	e.mu.Lock()
	if e.fault != nil {
		e.mu.Unlock()
		return e.halted()
	}
	return e.runLocked(func() ([]notice, error) {
		b, ok := e.books[symbol]
		if !ok {
			e.log.Warnf("feed cancel for unknown symbol %s", symbol)
			return nil, fmt.Errorf("cancel %s: %w", symbol, ErrUnknownSymbol)
		}
		fills, err := b.CancelFeedLiquidity(side, price, volume)
		if err != nil {
			return nil, e.fail(err)
		}
		e.updateReference(symbol)
		return e.applyLocked(symbol, fills, ts)
	})
}

// runLocked is entered with e.mu held and returns with it released. While
// another call is in progress fn is queued instead.
func (e *Exchange) runLocked(fn func() ([]notice, error)) error {
	if e.busy {
		e.pending = append(e.pending, fn)
		e.mu.Unlock()
		return nil
	}
	e.busy = true
	notes, err := fn()
	e.mu.Unlock()

	e.notify(notes)
	e.drain()
	return err
}

// drain runs queued calls one at a time until the queue is empty.
func (e *Exchange) drain() {
	for {
		e.mu.Lock()
		if len(e.pending) == 0 || e.fault != nil {
			if n := len(e.pending); n > 0 {
				e.log.Warnf("dropping %d queued calls: %v", n, e.fault)
			}
			e.pending = nil
			e.busy = false
			e.mu.Unlock()
			return
		}
		fn := e.pending[0]
		e.pending[0] = nil
		e.pending = e.pending[1:]
		notes, err := fn()
		e.mu.Unlock()

		if err != nil {
			e.log.Warnf("queued call failed: %v", err)
		}
		e.notify(notes)
	}
}

func (e *Exchange) notify(notes []notice) {
	for _, n := range notes {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorf("fill sink for %s panicked: %v", n.handle, r)
				}
			}()
			n.sink.OnFilled(n.handle, n.amount, n.price)
		}()
	}
}

func (e *Exchange) submitLocked(rec *order.Record, account string) ([]notice, error) {
	b, ok := e.books[rec.Symbol]
	if !ok {
		rec.Status = order.Rejected
		e.log.Warnf("order %s for unknown symbol %s rejected", rec.Handle, rec.Symbol)
		return nil, fmt.Errorf("submit %s: %w", rec.Handle, ErrUnknownSymbol)
	}
	if err := validate(rec); err != nil {
		rec.Status = order.Rejected
		e.log.Warnf("order %s rejected: %v", rec.Handle, err)
		return nil, fmt.Errorf("submit %s: %w", rec.Handle, err)
	}
	if account != "" {
		if _, ok := e.accounts[account]; ok {
			e.links[rec.Handle] = account
		} else {
			e.log.Warnf("order %s: account %s does not exist, running unlinked", rec.Handle, account)
		}
	}

	fills, err := b.Place(rec)
	if err != nil {
		if IsFatal(err) {
			return nil, e.fail(err)
		}
		e.log.Warnf("order %s rejected: %v", rec.Handle, err)
		return nil, fmt.Errorf("submit %s: %w: %w", rec.Handle, ErrInvalidOrder, err)
	}
	e.updateReference(rec.Symbol)
	return e.applyLocked(rec.Symbol, fills, rec.Time)
}

func validate(rec *order.Record) error {
	switch {
	case rec.Requested.Sign() <= 0:
		return fmt.Errorf("%w: volume %s", ErrInvalidOrder, rec.Requested)
	case rec.Kind != order.Limit && rec.Kind != order.Market:
		return fmt.Errorf("%w: kind %d", ErrInvalidOrder, rec.Kind)
	case rec.Kind == order.Limit && rec.Price.Sign() <= 0:
		return fmt.Errorf("%w: limit price %s", ErrInvalidOrder, rec.Price)
	case rec.Kind == order.Market && rec.Historical():
		return fmt.Errorf("%w: historical market order", ErrInvalidOrder)
	case rec.Direction != order.Long && rec.Direction != order.Short:
		return fmt.Errorf("%w: direction %d", ErrInvalidOrder, rec.Direction)
	case rec.Offset < order.Open || rec.Offset > order.CloseToday:
		return fmt.Errorf("%w: offset %d", ErrInvalidOrder, rec.Offset)
	}
	return nil
}

func (e *Exchange) cancelLocked(h order.Handle) ([]notice, error) {
	rec, ok := e.reg.Get(h)
	if !ok || rec.Historical() || rec.Status.Terminal() {
		return nil, nil
	}
	if err := e.books[rec.Symbol].CancelOrder(rec); err != nil {
		return nil, e.fail(err)
	}
	e.updateReference(rec.Symbol)
	return nil, nil
}

// updateReference recomputes the mid of symbol. A one-sided book keeps
// the last two-sided mid.
func (e *Exchange) updateReference(symbol string) {
	b := e.books[symbol]
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if okBid && okAsk {
		e.ref[symbol] = bid.Add(ask).Div(decimal.NewFromInt(2))
	}
}

// applyLocked books fills to linked accounts, one history row per fill,
// and collects the sink calls for completed orders.
func (e *Exchange) applyLocked(symbol string, fills []book.Fill, ts time.Time) ([]notice, error) {
	if len(fills) == 0 {
		return nil, nil
	}
	e.fills += len(fills)
	price, havePrice := e.ref[symbol]

	var notes []notice
	for _, f := range fills {
		rec, ok := e.reg.Get(f.Handle)
		if !ok {
			return notes, e.fail(fmt.Errorf("%w: fill for unknown order %s", book.ErrInvariant, f.Handle))
		}
		if name, linked := e.links[f.Handle]; linked {
			if !havePrice {
				return notes, e.fail(fmt.Errorf("value fill of %s: %s: %w", f.Handle, symbol, ErrNoReferencePrice))
			}
			acct := e.accounts[name]
			acct.apply(rec, f.Amount, f.Price)
			pos := acct.Position(rec.Symbol)
			e.history[name] = append(e.history[name], journal.Row{
				Account:      name,
				Time:         ts,
				Symbol:       rec.Symbol,
				Balance:      acct.Balance,
				Long:         pos.Long,
				Short:        pos.Short,
				AccountValue: acct.Value(rec.Symbol, price),
				Price:        price,
			})
			e.log.Debugf("fill %s %s %s@%s account=%s balance=%s", f.Handle, rec.Symbol, f.Amount, f.Price, name, acct.Balance)
		}
		if f.Final && rec.Sink != nil {
			notes = append(notes, notice{sink: rec.Sink, handle: f.Handle, amount: f.Amount, price: f.Price})
		}
	}
	return notes, nil
}

// fail latches err as the exchange fault. Callers hold e.mu.
func (e *Exchange) fail(err error) error {
	if e.fault == nil {
		e.fault = err
		e.log.Errorf("halting: %v", err)
	}
	return e.halted()
}

func (e *Exchange) halted() error {
	return fmt.Errorf("%w: %w", ErrHalted, e.fault)
}

// Err returns the latched fault, if any.
func (e *Exchange) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fault == nil {
		return nil
	}
	return e.halted()
}

// ReferencePrice returns the current mid of symbol.
func (e *Exchange) ReferencePrice(symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; !ok {
		return decimal.Zero, fmt.Errorf("reference price %s: %w", symbol, ErrUnknownSymbol)
	}
	p, ok := e.ref[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("reference price %s: %w", symbol, ErrNoReferencePrice)
	}
	return p, nil
}

// Snapshot returns the visible depth of every book.
func (e *Exchange) Snapshot() map[string]book.Depth {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]book.Depth, len(e.books))
	for s, b := range e.books {
		out[s] = b.Snapshot()
	}
	return out
}

// Order returns a copy of the order behind h.
func (e *Exchange) Order(h order.Handle) (order.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.reg.Get(h)
	if !ok {
		return order.Record{}, false
	}
	return *rec, true
}

func (e *Exchange) Account(name string) (Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.accounts[name]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", name, ErrUnknownAccount)
	}
	return a.clone(), nil
}

// Accounts returns every account in creation order.
func (e *Exchange) Accounts() []Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Account, 0, len(e.names))
	for _, n := range e.names {
		out = append(out, e.accounts[n].clone())
	}
	return out
}

// Fills is the number of fills produced so far.
func (e *Exchange) Fills() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fills
}

// History returns the rows recorded for account since the last flush.
func (e *Exchange) History(account string) []journal.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]journal.Row(nil), e.history[account]...)
}

// FlushHistory writes the accumulated rows, account by account in
// creation order, and clears them. Nothing is cleared if writing fails.
func (e *Exchange) FlushHistory(j journal.Journal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, name := range e.names {
		for _, r := range e.history[name] {
			if err := j.RecordRow(r); err != nil {
				return fmt.Errorf("flush history of %s: %w", name, err)
			}
			n++
		}
	}
	for _, name := range e.names {
		e.history[name] = nil
	}
	e.log.Infof("flushed %d history rows", n)
	return nil
}
