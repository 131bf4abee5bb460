package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

type CellState int

const (
	Idle CellState = iota
	Pending
	Cover
)

func (s CellState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Cover:
		return "cover"
	default:
		return fmt.Sprintf("CellState(%d)", int(s))
	}
}

// Cell is one rung of the grid: buy at Buy, then sell the same amount at
// Sell. State goes idle -> pending -> cover -> idle.
type Cell struct {
	Buy   decimal.Decimal
	Sell  decimal.Decimal
	State CellState
	Order order.Handle
}

type GridConfig struct {
	Symbol     string
	Account    string
	Low        decimal.Decimal
	High       decimal.Decimal
	Step       decimal.Decimal
	Profit     decimal.Decimal
	Amount     decimal.Decimal
	MinBalance decimal.Decimal
}

// Grid buys at the lower edge of the cell the price is in and, once that
// fills, offers the position back Profit higher. A cell trades again only
// after its cover order has filled.
type Grid struct {
	cfg   GridConfig
	high  decimal.Decimal
	cells []Cell
	v     Venue

	covered int
}

// NewGrid lays out int((High-Low)/Step) cells starting at Low.
func NewGrid(cfg GridConfig) (*Grid, error) {
	switch {
	case cfg.Symbol == "":
		return nil, fmt.Errorf("grid: symbol is required")
	case cfg.Step.Sign() <= 0:
		return nil, fmt.Errorf("grid: step must be positive")
	case cfg.Amount.Sign() <= 0:
		return nil, fmt.Errorf("grid: amount must be positive")
	case !cfg.High.GreaterThan(cfg.Low):
		return nil, fmt.Errorf("grid: high must be greater than low")
	}

	n := cfg.High.Sub(cfg.Low).Div(cfg.Step).IntPart() + 1
	g := &Grid{
		cfg:   cfg,
		high:  cfg.Low.Add(cfg.Step.Mul(decimal.NewFromInt(n))),
		cells: make([]Cell, 0, n-1),
	}
	for i := int64(0); i < n-1; i++ {
		buy := cfg.Low.Add(cfg.Step.Mul(decimal.NewFromInt(i)))
		g.cells = append(g.cells, Cell{
			Buy:  buy.RoundBank(1),
			Sell: buy.Add(cfg.Profit).RoundBank(1),
		})
	}
	return g, nil
}

// Cells returns a copy of the grid state.
func (g *Grid) Cells() []Cell { return append([]Cell(nil), g.cells...) }

// Covered is the number of completed buy and sell round trips.
func (g *Grid) Covered() int { return g.covered }

func (g *Grid) OnTick(ctx context.Context, v Venue, tick Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tick.Symbol != g.cfg.Symbol {
		return nil
	}
	g.v = v

	price := tick.Price
	if price.LessThan(g.cfg.Low) || price.GreaterThan(g.high) {
		return nil
	}
	idx := price.Sub(g.cfg.Low).Div(g.cfg.Step).IntPart()
	if idx < 0 || idx >= int64(len(g.cells)) {
		return nil
	}
	cell := &g.cells[idx]
	if cell.State != Idle {
		return nil
	}

	acct, err := v.Account(g.cfg.Account)
	if err != nil {
		return err
	}
	if acct.Balance.LessThan(g.cfg.MinBalance) {
		strategyLog.Debugf("grid: balance %s below %s, not buying", acct.Balance, g.cfg.MinBalance)
		return nil
	}

	cell.State = Pending
	h, err := g.place(int(idx), order.Open, cell.Buy, tick.Time)
	if err != nil {
		cell.State = Idle
		return routed(err)
	}
	if cell.State == Pending {
		cell.Order = h
	}
	strategyLog.Debugf("grid: cell %d buy %s@%s at %s", idx, g.cfg.Amount, cell.Buy, tick.Price)
	return nil
}

func (g *Grid) place(idx int, off order.Offset, price decimal.Decimal, ts time.Time) (order.Handle, error) {
	sink := order.FillFunc(func(order.Handle, decimal.Decimal, decimal.Decimal) {
		g.filled(idx, off, ts)
	})
	return g.v.Submit(order.Request{
		Symbol:    g.cfg.Symbol,
		Price:     price,
		Volume:    g.cfg.Amount,
		Kind:      order.Limit,
		Direction: order.Long,
		Offset:    off,
		Origin:    order.Synthetic,
		Time:      ts,
		Sink:      sink,
	}, g.cfg.Account)
}

// filled runs from the fill sink, possibly before place has returned.
func (g *Grid) filled(idx int, off order.Offset, ts time.Time) {
	cell := &g.cells[idx]
	if off == order.Close {
		cell.State = Idle
		cell.Order = 0
		g.covered++
		return
	}

	cell.State = Cover
	h, err := g.place(idx, order.Close, cell.Sell, ts)
	if err != nil {
		strategyLog.Warnf("grid: cell %d cover order: %v", idx, err)
		cell.State = Idle
		return
	}
	if cell.State == Cover {
		cell.Order = h
	}
}
