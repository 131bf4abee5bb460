package order

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

var registrySeq atomic.Uint32

// Handle identifies a record inside one registry. The upper 32 bits carry
// the registry generation, so a handle issued by another (or a discarded)
// registry never resolves. The zero Handle is never issued.
type Handle uint64

func (h Handle) generation() uint32 { return uint32(h >> 32) }
func (h Handle) index() uint32      { return uint32(h) }

func (h Handle) String() string {
	if h == 0 {
		return "order-none"
	}
	return fmt.Sprintf("order-%d.%d", h.generation(), h.index())
}

// Registry is an append-only arena of order records for one run.
type Registry struct {
	gen     uint32
	records []*Record
}

func NewRegistry() *Registry {
	return &Registry{gen: registrySeq.Add(1)}
}

// New allocates a record for req with nothing traded yet.
func (r *Registry) New(req Request) *Record {
	rec := &Record{
		Handle:    Handle(uint64(r.gen)<<32 | uint64(len(r.records)+1)),
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Offset:    req.Offset,
		Kind:      req.Kind,
		Origin:    req.Origin,
		Price:     req.Price,
		Requested: req.Volume,
		Traded:    decimal.Zero,
		Status:    Submitting,
		Sink:      req.Sink,
		Time:      req.Time,
	}
	r.records = append(r.records, rec)
	return rec
}

// Get resolves h, reporting false for foreign or unknown handles.
func (r *Registry) Get(h Handle) (*Record, bool) {
	if h.generation() != r.gen {
		return nil, false
	}
	i := int(h.index())
	if i < 1 || i > len(r.records) {
		return nil, false
	}
	return r.records[i-1], true
}

func (r *Registry) Len() int { return len(r.records) }
