package common

import (
	"fmt"
	"time"
)

// Trade is an immutable record of one execution. Aggressor and Resting
// are snapshots taken at the moment of the match, not live handles --
// mutating the resting order afterward (e.g. a further partial fill)
// never retroactively changes a reported trade.
type Trade struct {
	Aggressor     Order
	Resting       Order
	ExecutedQty   float64
	ExecutedPrice Price
	Timestamp     time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{aggressor=%s resting=%s qty=%v price=%s at=%s}",
		t.Aggressor.String(), t.Resting.String(), t.ExecutedQty, t.ExecutedPrice,
		t.Timestamp.Format(time.RFC3339Nano),
	)
}
