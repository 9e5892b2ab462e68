package coupon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Rejection reasons for coupon evaluation. These are expected outcomes the
// API maps to stable reason codes, not faults.
var (
	ErrNotFound          = errors.New("coupon not found")
	ErrInactive          = errors.New("coupon is not active")
	ErrExpired           = errors.New("coupon is outside its validity window")
	ErrBelowMinimum      = errors.New("order amount is below the coupon minimum")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// Reason translates an evaluation rejection into its wire code.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInactive):
		return "INACTIVE"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrBelowMinimum):
		return "BELOW_MINIMUM"
	case errors.Is(err, ErrUsageLimitReached):
		return "USAGE_LIMIT_REACHED"
	}
	return ""
}

var hundred = decimal.NewFromInt(100)

// Evaluate computes the discount a coupon grants on the given subtotal.
// It is a pure function: consuming the coupon's usage budget happens at
// settlement time, never here, so previews cannot burn a use.
// The result always satisfies 0 <= discount <= subtotal.
func Evaluate(subtotal int, c Coupon, now time.Time) (int, error) {
	if c.Status != Active {
		return 0, ErrInactive
	}

	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return 0, ErrExpired
	}

	if subtotal < c.MinAmount {
		return 0, ErrBelowMinimum
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return 0, ErrUsageLimitReached
	}

	var discount int
	switch c.DiscountType {
	case Percentage:
		d := decimal.NewFromInt(int64(subtotal)).Mul(c.Value).Div(hundred).Round(0)
		discount = int(d.IntPart())
		if c.MaxDiscount > 0 && discount > c.MaxDiscount {
			discount = c.MaxDiscount
		}

	case Fixed:
		discount = int(c.Value.Round(0).IntPart())
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}

	return discount, nil
}
