package engine

import (
	"fmt"
	"sync/atomic"
	"time"
)

// IdGenerator mints order ids for one book. Ids carry the owning pair
// id as a prefix so a Matcher can route a bare order id back to its
// book without a side channel. The pair id itself may contain '-'
// (e.g. "BTC-USD"), so a router must strip exactly the last two
// segments rather than split on the first '-'.
type IdGenerator struct {
	pairID  string
	counter atomic.Uint64
}

// NewIdGenerator constructs a generator for one pair. The counter
// starts at zero and is never expected to wrap within a book's
// lifetime; wrapping would be a fatal invariant breach, not handled
// here.
func NewIdGenerator(pairID string) *IdGenerator {
	return &IdGenerator{pairID: pairID}
}

// Next returns "<pair_id>-<hex millis>-<hex6 counter>". The counter
// increments atomically so a future multi-producer frontend can share
// one generator safely, even though a single book's operations are
// expected to be invoked serially.
func (g *IdGenerator) Next(now time.Time) string {
	count := g.counter.Add(1) - 1
	millis := now.UnixMilli()
	return fmt.Sprintf("%s-%x-%06x", g.pairID, millis, count)
}
