package engine

import (
	"github.com/saidin/matchbook/internal/common"
	"github.com/tidwall/btree"
)

// PriceLevel is the FIFO queue of resting orders at one price on one
// side. Orders[0] is the earliest-enqueued (head); new residuals are
// appended at the tail.
type PriceLevel struct {
	Price  common.Price
	Orders []*common.Order
}

// PriceLevels is the btree-backed ladder type shared by bids and asks,
// ordered by each side's own comparator (descending for bids, ascending
// for asks) so that Min() always yields the best price on that side.
type PriceLevels = btree.BTreeG[*PriceLevel]

// indexOfOrder returns the position of orderID within a level's FIFO
// queue, or -1 if absent.
func indexOfOrder(orders []*common.Order, orderID string) int {
	for i, o := range orders {
		if o.ID() == orderID {
			return i
		}
	}
	return -1
}

// removeAt removes the order at position i, preserving FIFO order of
// the remainder.
func removeAt(orders []*common.Order, i int) []*common.Order {
	return append(orders[:i:i], orders[i+1:]...)
}

// insertAt reinserts an order at position i -- used only to restore a
// level to its exact pre-call shape when an amendment is rejected.
func insertAt(orders []*common.Order, i int, order *common.Order) []*common.Order {
	orders = append(orders, nil)
	copy(orders[i+1:], orders[i:])
	orders[i] = order
	return orders
}
