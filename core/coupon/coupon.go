package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

type Status string

const (
	Active   Status = "active"
	Inactive Status = "inactive"
)

type Coupon struct {
	ID           string          `json:"id" db:"coupon_id"`
	Code         string          `json:"code" db:"code"`
	DiscountType DiscountType    `json:"discountType" db:"discount_type"`
	Value        decimal.Decimal `json:"value" db:"value"`
	MinAmount    int             `json:"minAmount" db:"min_amount"`
	MaxDiscount  int             `json:"maxDiscount" db:"max_discount"`
	UsageLimit   int             `json:"usageLimit" db:"usage_limit"`
	UsedCount    int             `json:"usedCount" db:"used_count"`
	ValidFrom    time.Time       `json:"validFrom" db:"valid_from"`
	ValidUntil   time.Time       `json:"validUntil" db:"valid_until"`
	Status       Status          `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

type CouponNew struct {
	Code         string          `json:"code" validate:"required,alphanum,uppercase"`
	DiscountType DiscountType    `json:"discountType" validate:"required,oneof=percentage fixed"`
	Value        decimal.Decimal `json:"value" validate:"required"`
	MinAmount    int             `json:"minAmount" validate:"gte=0"`
	MaxDiscount  int             `json:"maxDiscount" validate:"gte=0"`
	UsageLimit   int             `json:"usageLimit" validate:"gte=0"`
	ValidFrom    time.Time       `json:"validFrom" validate:"required"`
	ValidUntil   time.Time       `json:"validUntil" validate:"required,gtfield=ValidFrom"`
}
