package book

import (
	"fmt"
	"strings"
)

// Impact decides whether synthetic executions take liquidity out of the
// replayed book.
type Impact int

const (
	// NoImpact fills synthetic orders without touching historical depth.
	NoImpact Impact = iota
	// DepthImpact removes the filled amount from the historical orders
	// resting at the level the synthetic order traded against.
	DepthImpact
)

func (i Impact) String() string {
	switch i {
	case NoImpact:
		return "none"
	case DepthImpact:
		return "depth"
	default:
		return fmt.Sprintf("impact(%d)", int(i))
	}
}

func ParseImpact(s string) (Impact, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoImpact, nil
	case "depth":
		return DepthImpact, nil
	default:
		return NoImpact, fmt.Errorf("unknown impact model %q (supported: none, depth)", s)
	}
}
