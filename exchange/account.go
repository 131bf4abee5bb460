package exchange

import (
	"maps"

	"github.com/XuAnn175/Simulator/order"
	"github.com/shopspring/decimal"
)

// Position holds the open long and short volume in one symbol. Both are
// magnitudes; a short position of 3 has Short == 3.
type Position struct {
	Long  decimal.Decimal `json:"long"`
	Short decimal.Decimal `json:"short"`
}

// Net is Long minus Short.
func (p Position) Net() decimal.Decimal { return p.Long.Sub(p.Short) }

// Account is a cash balance plus positions. There is no margin: opening
// a long spends cash, opening a short receives it.
type Account struct {
	Name      string              `json:"name"`
	Initial   decimal.Decimal     `json:"initial"`
	Balance   decimal.Decimal     `json:"balance"`
	Positions map[string]Position `json:"positions"`
}

func newAccount(name string, balance decimal.Decimal, symbols []string) *Account {
	a := &Account{
		Name:      name,
		Initial:   balance,
		Balance:   balance,
		Positions: make(map[string]Position, len(symbols)),
	}
	for _, s := range symbols {
		a.Positions[s] = Position{Long: decimal.Zero, Short: decimal.Zero}
	}
	return a
}

func (a *Account) clone() Account {
	c := *a
	c.Positions = maps.Clone(a.Positions)
	return c
}

// Position returns the position in symbol, zero if none.
func (a Account) Position(symbol string) Position {
	p, ok := a.Positions[symbol]
	if !ok {
		return Position{Long: decimal.Zero, Short: decimal.Zero}
	}
	return p
}

// Value marks the position in symbol to price: balance + (long - short) * price.
func (a Account) Value(symbol string, price decimal.Decimal) decimal.Decimal {
	return a.Balance.Add(a.Position(symbol).Net().Mul(price))
}

// apply books a fill of amount at price for rec. Close and CloseToday
// are treated the same.
func (a *Account) apply(rec *order.Record, amount, price decimal.Decimal) {
	cash := amount.Mul(price)
	p := a.Position(rec.Symbol)
	opening := rec.Offset == order.Open
	switch {
	case rec.Direction == order.Long && opening:
		a.Balance = a.Balance.Sub(cash)
		p.Long = p.Long.Add(amount)
	case rec.Direction == order.Long:
		a.Balance = a.Balance.Add(cash)
		p.Long = p.Long.Sub(amount)
	case opening:
		a.Balance = a.Balance.Add(cash)
		p.Short = p.Short.Add(amount)
	default:
		a.Balance = a.Balance.Sub(cash)
		p.Short = p.Short.Sub(amount)
	}
	a.Positions[rec.Symbol] = p
}
