package strategies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/XuAnn175/Simulator/book"
	"github.com/XuAnn175/Simulator/config"
	"github.com/XuAnn175/Simulator/exchange"
	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var strategyLog = logrus.WithField("component", "strategy")

// Venue is what a strategy trades through. *exchange.Exchange implements it.
type Venue interface {
	Submit(req order.Request, account string) (order.Handle, error)
	Cancel(h order.Handle) error
	Account(name string) (exchange.Account, error)
	ReferencePrice(symbol string) (decimal.Decimal, error)
	Snapshot() map[string]book.Depth
}

// Tick is handed to a strategy after a replayed trade. Price is the
// reference price of Symbol once the trade has been matched.
type Tick struct {
	Time   time.Time
	Symbol string
	Price  decimal.Decimal
	Depth  map[string]book.Depth
}

// TickStrategy is the minimal interface a replay strategy must implement.
// OnTick is called at most once per replayed trade, and only when enough
// time has passed since the previous trade.
type TickStrategy interface {
	OnTick(ctx context.Context, v Venue, tick Tick) error
}

// StrategyByName builds the strategy named by cfg.
func StrategyByName(cfg config.StrategyConfig) (TickStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "noop", "none":
		return NoopStrategy{}, nil

	case "open-once":
		return &OpenOnceStrategy{
			Symbol:  cfg.Symbol,
			Account: cfg.Account,
			Units:   decimal.NewFromFloat(cfg.Units),
		}, nil

	case "grid":
		g := cfg.Grid
		grid, err := NewGrid(GridConfig{
			Symbol:     cfg.Symbol,
			Account:    cfg.Account,
			Low:        decimal.NewFromFloat(g.Low),
			High:       decimal.NewFromFloat(g.High),
			Step:       decimal.NewFromFloat(g.Step),
			Profit:     decimal.NewFromFloat(g.Profit),
			Amount:     decimal.NewFromFloat(g.Amount),
			MinBalance: decimal.NewFromFloat(g.MinBalance),
		})
		if err != nil {
			return nil, err
		}
		return grid, nil

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: noop, open-once, grid)", cfg.Name)
	}
}

// routed handles a Submit error the way every strategy here does:
// routing problems are logged and skipped, a halted exchange stops the run.
func routed(err error) error {
	if err == nil || exchange.IsFatal(err) {
		return err
	}
	strategyLog.Warnf("order not placed: %v", err)
	return nil
}
