package common

import (
	"fmt"
	"time"
)

// Order is a resting or transient unit of interest in one book. The
// book owns its fill/cancel/update transitions; callers never mutate
// these fields directly.
type Order struct {
	id        string
	kind      OrderKind
	price     Price
	hasPrice  bool
	quantity  float64 // remaining quantity
	status    OrderStatus
	timestamp time.Time // creation time, refreshed on amend
}

// New constructs an order. Limit kinds require a price; market kinds
// accept one but discard it, so a market order never carries a price.
func New(id string, kind OrderKind, price Price, hasPrice bool, quantity float64, now time.Time) (Order, error) {
	if quantity <= 0 {
		return Order{}, fmt.Errorf("%w: quantity must be positive, got %v", ErrBadOrder, quantity)
	}
	if kind.IsLimit() && !hasPrice {
		return Order{}, fmt.Errorf("%w: limit order requires a price", ErrBadOrder)
	}
	if !kind.IsLimit() {
		hasPrice = false
		price = Price{}
	}

	return Order{
		id:        id,
		kind:      kind,
		price:     price,
		hasPrice:  hasPrice,
		quantity:  quantity,
		status:    Open,
		timestamp: now,
	}, nil
}

// Fill decrements remaining quantity by amount and transitions the
// status accordingly. Preconditions (0 < amount <= remaining) are the
// caller's responsibility -- the match loop never violates them, and a
// violation here is an invariant breach, not a validation error.
func (o *Order) Fill(amount float64) {
	if amount <= 0 || amount > o.quantity {
		panic(fmt.Sprintf("common: Fill precondition violated: amount=%v remaining=%v", amount, o.quantity))
	}

	o.quantity -= amount
	if o.quantity == 0 {
		o.status = Executed
	} else {
		o.status = PartiallyExecuted
	}
}

// Update applies an amendment. Rejects terminal orders outright; a
// resulting limit kind without a price is rejected; a resulting market
// kind clears any carried price. On success the timestamp is refreshed,
// which is what drops the order to the tail of its (possibly new)
// price level once the book re-inserts it.
func (o Order) Update(kind *OrderKind, price *Price, quantity *float64, now time.Time) (Order, error) {
	if o.status.IsTerminal() {
		return Order{}, fmt.Errorf("%w: order is terminal (%s)", ErrBadUpdate, o.status)
	}

	next := o
	if kind != nil {
		next.kind = *kind
	}
	if price != nil {
		next.price = *price
		next.hasPrice = true
	}
	if quantity != nil {
		if *quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive, got %v", ErrBadUpdate, *quantity)
		}
		next.quantity = *quantity
	}

	if next.kind.IsLimit() && !next.hasPrice {
		return Order{}, fmt.Errorf("%w: limit order requires a price", ErrBadUpdate)
	}
	if !next.kind.IsLimit() {
		next.hasPrice = false
		next.price = Price{}
	}

	next.timestamp = now
	return next, nil
}

// Cancel transitions an Open order to Cancelled. Any other status --
// including PartiallyExecuted -- is rejected: an order that has
// already traded cannot be retroactively removed from the tape.
func (o *Order) Cancel() error {
	if o.status != Open {
		return fmt.Errorf("%w: order status is %s, not Open", ErrNotCancelable, o.status)
	}
	o.status = Cancelled
	return nil
}

func (o Order) ID() string           { return o.id }
func (o Order) Kind() OrderKind      { return o.kind }
func (o Order) Quantity() float64    { return o.quantity }
func (o Order) Status() OrderStatus  { return o.status }
func (o Order) Timestamp() time.Time { return o.timestamp }

// Price returns the order's price and whether it has one.
func (o Order) Price() (Price, bool) { return o.price, o.hasPrice }

func (o Order) String() string {
	price := "-"
	if p, ok := o.Price(); ok {
		price = p.String()
	}
	return fmt.Sprintf("Order{id=%s kind=%s price=%s qty=%v status=%s}",
		o.id, o.kind, price, o.quantity, o.status)
}
