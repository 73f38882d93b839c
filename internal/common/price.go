package common

import "fmt"

// scalar is the fixed-point denominator: four decimal digits of
// fractional precision, matching the original matcher's Price.
const scalar = 10000

// Price is a non-negative fixed-point decimal used as the key of every
// price level. It never participates in float comparisons -- ordering
// and equality are exact integer comparisons on (integral, fractional).
type Price struct {
	integral   uint64
	fractional uint64 // 0 <= fractional < scalar
}

// Of converts a float64 into a Price, truncating toward zero in the
// integral part and flooring the fractional part after scaling by
// scalar. This conversion is documented as lossy: callers at an
// external boundary own the precision they send in.
func Of(price float64) (Price, error) {
	if price < 0 {
		return Price{}, fmt.Errorf("%w: negative price %v", ErrBadPrice, price)
	}

	integral := uint64(price)
	frac := (price - float64(integral)) * float64(scalar)
	if frac < 0 {
		frac = 0
	}
	return Price{integral: integral, fractional: uint64(frac)}, nil
}

// MustOf is Of but panics on error; useful for constants in tests and
// for listing prices already known to be valid at the call site.
func MustOf(price float64) Price {
	p, err := Of(price)
	if err != nil {
		panic(err)
	}
	return p
}

// ToReal returns the price as a float64.
func (p Price) ToReal() float64 {
	return float64(p.integral) + float64(p.fractional)/scalar
}

// Less reports whether p sorts strictly before other under the total
// order (integral, fractional).
func (p Price) Less(other Price) bool {
	if p.integral != other.integral {
		return p.integral < other.integral
	}
	return p.fractional < other.fractional
}

// Equal reports exact equality -- no float comparison involved.
func (p Price) Equal(other Price) bool {
	return p.integral == other.integral && p.fractional == other.fractional
}

func (p Price) String() string {
	return fmt.Sprintf("%d.%04d", p.integral, p.fractional)
}
