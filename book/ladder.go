package book

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// ladder holds one side's price levels in a red-black tree keyed by price.
// Iteration order is always the numeric order of the keys.
type ladder struct {
	tree *redblacktree.Tree
}

func comparePrice(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

func newLadder() *ladder {
	return &ladder{tree: redblacktree.NewWith(comparePrice)}
}

func (t *ladder) Len() int { return t.tree.Size() }

func (t *ladder) find(price decimal.Decimal) *Level {
	v, ok := t.tree.Get(price)
	if !ok {
		return nil
	}
	return v.(*Level)
}

// upsert returns the level at price, creating it with mk when absent.
func (t *ladder) upsert(price decimal.Decimal, mk func() *Level) *Level {
	if lvl := t.find(price); lvl != nil {
		return lvl
	}
	lvl := mk()
	t.tree.Put(price, lvl)
	return lvl
}

// delete reports whether a level was removed.
func (t *ladder) delete(price decimal.Decimal) bool {
	if t.tree.GetNode(price) == nil {
		return false
	}
	t.tree.Remove(price)
	return true
}

func (t *ladder) min() *Level {
	if n := t.tree.Left(); n != nil {
		return n.Value.(*Level)
	}
	return nil
}

func (t *ladder) max() *Level {
	if n := t.tree.Right(); n != nil {
		return n.Value.(*Level)
	}
	return nil
}

// ascend visits levels lowest price first until fn returns false.
func (t *ladder) ascend(fn func(*Level) bool) {
	it := t.tree.Iterator()
	for it.Next() {
		if !fn(it.Value().(*Level)) {
			return
		}
	}
}

// descend visits levels highest price first until fn returns false.
func (t *ladder) descend(fn func(*Level) bool) {
	it := t.tree.Iterator()
	it.End()
	for it.Prev() {
		if !fn(it.Value().(*Level)) {
			return
		}
	}
}
