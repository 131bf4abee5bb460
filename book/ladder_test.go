package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

func mkLevel(p decimal.Decimal) func() *Level {
	return func() *Level { return newLevel(p) }
}

func TestLadderInsertFindDelete(t *testing.T) {
	tree := newLadder()
	l1 := tree.upsert(dec("100"), mkLevel(dec("100")))
	if l1 == nil {
		t.Fatal("upsert failed")
	}
	if l2 := tree.find(dec("100.0")); l2 != l1 {
		t.Error("find did not return the same level for an equal price")
	}

	tree.upsert(dec("200"), mkLevel(dec("200")))
	if !tree.min().Price().Equal(dec("100")) {
		t.Error("expected min=100")
	}
	if !tree.max().Price().Equal(dec("200")) {
		t.Error("expected max=200")
	}

	if !tree.delete(dec("100")) {
		t.Error("delete failed")
	}
	if tree.find(dec("100")) != nil {
		t.Error("expected level 100 to be gone")
	}
	if tree.Len() != 1 {
		t.Errorf("expected 1 level, got %d", tree.Len())
	}
}

func TestLadderDeleteMissing(t *testing.T) {
	tree := newLadder()
	if tree.delete(dec("123")) {
		t.Error("expected false when deleting a missing level")
	}
}

func TestLadderEmptyMinMax(t *testing.T) {
	tree := newLadder()
	if tree.min() != nil || tree.max() != nil {
		t.Error("expected nil min/max on an empty ladder")
	}
}

func TestLadderUpsertDuplicate(t *testing.T) {
	tree := newLadder()
	l1 := tree.upsert(dec("150"), mkLevel(dec("150")))
	l2 := tree.upsert(dec("150"), mkLevel(dec("150")))
	if l1 != l2 {
		t.Error("upsert should return the existing level for a duplicate price")
	}
	if tree.Len() != 1 {
		t.Errorf("expected 1 level, got %d", tree.Len())
	}
}

func TestLadderWalkStopsEarly(t *testing.T) {
	tree := newLadder()
	for _, p := range []string{"5", "1", "4", "2", "3"} {
		tree.upsert(dec(p), mkLevel(dec(p)))
	}
	var seen []string
	tree.descend(func(l *Level) bool {
		seen = append(seen, l.Price().String())
		return len(seen) < 2
	})
	if len(seen) != 2 || seen[0] != "5" || seen[1] != "4" {
		t.Errorf("unexpected descending walk: %v", seen)
	}
}

// checkOrdered walks the ladder both ways and compares the walks with the
// expected key set.
func checkOrdered(t *rapid.T, tree *ladder, present map[int64]bool) {
	var up, down []decimal.Decimal
	tree.ascend(func(l *Level) bool {
		up = append(up, l.Price())
		return true
	})
	tree.descend(func(l *Level) bool {
		down = append(down, l.Price())
		return true
	})
	if len(up) != len(present) || len(down) != len(present) || tree.Len() != len(present) {
		t.Fatalf("walked %d up, %d down, Len %d, want %d", len(up), len(down), tree.Len(), len(present))
	}
	for i, p := range up {
		if !present[p.IntPart()] {
			t.Fatalf("unexpected level %s", p)
		}
		if i > 0 && p.Cmp(up[i-1]) <= 0 {
			t.Fatalf("ascend out of order: %s after %s", p, up[i-1])
		}
		if !down[len(down)-1-i].Equal(p) {
			t.Fatalf("descend is not the reverse of ascend at %d", i)
		}
	}
	if len(up) > 0 && (!tree.min().Price().Equal(up[0]) || !tree.max().Price().Equal(up[len(up)-1])) {
		t.Fatalf("min/max disagree with the walk")
	}
}

func TestLadderRandomOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree := newLadder()
		present := map[int64]bool{}
		ops := rapid.SliceOfN(rapid.Int64Range(-50, 50), 1, 200).Draw(t, "ops")
		for _, k := range ops {
			p := decimal.NewFromInt(k)
			if present[k] {
				if !tree.delete(p) {
					t.Fatalf("delete %d failed", k)
				}
				delete(present, k)
			} else {
				tree.upsert(p, mkLevel(p))
				present[k] = true
			}
			checkOrdered(t, tree, present)
		}
	})
}
