package exchange

import (
	"errors"

	"github.com/XuAnn175/Simulator/book"
)

var (
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrUnknownAccount = errors.New("unknown account")
	ErrDuplicate      = errors.New("already exists")
	ErrInvalidOrder   = errors.New("invalid order")

	// ErrNoReferencePrice is returned when a symbol has never had both a
	// bid and an ask, so there is no mid to value positions against.
	ErrNoReferencePrice = errors.New("no reference price")

	// ErrHalted is returned by every mutating call once a fatal error has
	// been seen. It wraps the original cause.
	ErrHalted = errors.New("exchange halted")
)

// IsFatal reports whether err means the replay can no longer produce
// meaningful results.
func IsFatal(err error) bool {
	return errors.Is(err, ErrHalted) || errors.Is(err, book.ErrInvariant)
}
