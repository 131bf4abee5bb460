// Package backtest replays a recorded market through the exchange and
// drives a strategy from it.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/XuAnn175/Simulator/exchange"
	"github.com/XuAnn175/Simulator/feed"
	"github.com/XuAnn175/Simulator/journal"
	"github.com/XuAnn175/Simulator/strategies"
	"github.com/sirupsen/logrus"
)

var runnerLog = logrus.WithField("component", "backtest")

// DefaultTickInterval is the minimum gap between two trades for the
// second one to reach the strategy.
const DefaultTickInterval = 10 * time.Millisecond

// EventFeed yields replay events in time order and returns
// (ok=false, err=nil) at the end.
type EventFeed interface {
	Next() (feed.Event, bool, error)
	Close() error
}

// RunnerOptions controls how the runner behaves.
type RunnerOptions struct {
	// TickInterval defaults to DefaultTickInterval. A negative value
	// calls the strategy after every trade.
	TickInterval time.Duration

	// Progress logs a line every Progress events; zero disables it.
	Progress int
}

// Runner drives an exchange forward using a feed and strategy.
type Runner struct {
	Exchange *exchange.Exchange
	Feed     EventFeed
	Strategy strategies.TickStrategy
	Options  RunnerOptions
}

// Result is a summary of a replay.
type Result struct {
	Events  int
	Trades  int
	Deltas  int
	Ticks   int
	Skipped int
	Fills   int

	Start time.Time
	End   time.Time

	Accounts []journal.AccountSummary
}

// Run executes the replay loop:
//  1. read the next event
//  2. a trade is submitted as an unlinked historical limit order; a depth
//     update cancels replayed liquidity
//  3. after a trade, strategy.OnTick if the tick interval has elapsed
//
// Routing errors are logged and counted in Skipped. Fatal exchange
// errors, strategy errors and ctx cancellation stop the run; the partial
// result is returned with the error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Exchange == nil {
		return Result{}, fmt.Errorf("backtest: Exchange is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	defer r.Feed.Close()

	interval := r.Options.TickInterval
	if interval == 0 {
		interval = DefaultTickInterval
	}

	var res Result
	var prev time.Time
	err := func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev, ok, err := r.Feed.Next()
			if err != nil {
				return fmt.Errorf("feed: %w", err)
			}
			if !ok {
				return nil
			}

			res.Events++
			ts := ev.Time()
			if res.Start.IsZero() || ts.Before(res.Start) {
				res.Start = ts
			}
			if res.End.IsZero() || ts.After(res.End) {
				res.End = ts
			}
			if n := r.Options.Progress; n > 0 && res.Events%n == 0 {
				runnerLog.Infof("replayed %d events, at %s", res.Events, ts.UTC().Format(time.RFC3339Nano))
			}

			if ev.Kind == feed.DepthEvent {
				res.Deltas++
				d := ev.Depth
				err := r.Exchange.CancelFeedLiquidity(d.Symbol, d.Side, d.Price, d.Volume, d.Time)
				if err := r.routed(&res, err); err != nil {
					return err
				}
				continue
			}

			res.Trades++
			_, err = r.Exchange.Submit(ev.Trade.Request(), "")
			if err := r.routed(&res, err); err != nil {
				return err
			}

			due := prev.IsZero() || interval < 0 || ts.Sub(prev) >= interval
			prev = ts
			if !due {
				continue
			}
			if err := r.tick(ctx, &res, ev.Trade); err != nil {
				return err
			}
		}
	}()

	res.Fills = r.Exchange.Fills()
	for _, a := range r.Exchange.Accounts() {
		res.Accounts = append(res.Accounts, journal.AccountSummary{
			Name:         a.Name,
			StartBalance: a.Initial,
			EndBalance:   a.Balance,
		})
	}
	if err == nil {
		// a fault raised by a queued call is only visible here
		err = r.Exchange.Err()
	}
	if err != nil {
		runnerLog.Errorf("replay stopped after %d events: %v", res.Events, err)
		return res, err
	}
	runnerLog.Infof("replay done: events=%d trades=%d deltas=%d ticks=%d fills=%d skipped=%d",
		res.Events, res.Trades, res.Deltas, res.Ticks, res.Fills, res.Skipped)
	return res, nil
}

// routed passes fatal errors through and swallows the rest.
func (r *Runner) routed(res *Result, err error) error {
	if err == nil {
		return nil
	}
	if exchange.IsFatal(err) {
		return err
	}
	res.Skipped++
	runnerLog.Warnf("skipping event: %v", err)
	return nil
}

func (r *Runner) tick(ctx context.Context, res *Result, tr feed.Trade) error {
	price, err := r.Exchange.ReferencePrice(tr.Symbol)
	if errors.Is(err, exchange.ErrNoReferencePrice) || errors.Is(err, exchange.ErrUnknownSymbol) {
		runnerLog.Debugf("no tick at %s: %v", tr.Time.UTC().Format(time.RFC3339Nano), err)
		return nil
	}
	if err != nil {
		return err
	}

	res.Ticks++
	t := strategies.Tick{
		Time:   tr.Time,
		Symbol: tr.Symbol,
		Price:  price,
		Depth:  r.Exchange.Snapshot(),
	}
	if err := r.Strategy.OnTick(ctx, r.Exchange, t); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}

// Export writes the exchange's account history to j. The rows are also
// hashed, and the digest is returned so runs can be compared.
func Export(e *exchange.Exchange, j journal.Journal) (string, error) {
	d := journal.NewDigest()
	sinks := journal.Multi{d}
	if j != nil {
		sinks = append(sinks, j)
	}
	if err := e.FlushHistory(sinks); err != nil {
		return "", err
	}
	return d.Sum(), nil
}
