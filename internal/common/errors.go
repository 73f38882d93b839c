// Package common holds the domain value types shared by every book in
// the matcher: prices, orders, trades, and the closed set of errors the
// core ever returns.
package common

import "errors"

// Closed set of errors the core surfaces to a caller. No internal
// invariant breach (index/ladder divergence) is represented here --
// that condition is fatal and panics instead of returning an error.
var (
	ErrBadPrice              = errors.New("common: bad price")
	ErrBadOrder              = errors.New("common: bad order")
	ErrBadUpdate             = errors.New("common: bad update")
	ErrUnknownPair           = errors.New("common: unknown pair")
	ErrPairExists            = errors.New("common: pair already exists")
	ErrPairInactive          = errors.New("common: pair inactive")
	ErrNotFound              = errors.New("common: order not found")
	ErrNotCancelable         = errors.New("common: order not cancelable")
	ErrInsufficientLiquidity = errors.New("common: insufficient liquidity")
)
