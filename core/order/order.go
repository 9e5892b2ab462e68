package order

import (
	"time"

	"github.com/edushop/edushop/core/cart"
)

type Status string

const (
	Pending    Status = "pending"
	Paid       Status = "paid"
	Processing Status = "processing"
	Cancelled  Status = "cancelled"
	Completed  Status = "completed"
)

// transitions is the whole state machine. Anything not listed is forbidden;
// in particular nothing leaves paid, completed or cancelled back to pending.
var transitions = map[Status][]Status{
	Pending:    {Paid, Cancelled},
	Paid:       {Processing},
	Processing: {Completed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from Status, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Method string

const (
	MethodGateway Method = "gateway"
	MethodPaypal  Method = "paypal"
	MethodStripe  Method = "stripe"
	MethodCOD     Method = "cod"
)

// Order is an immutable snapshot of a purchase attempt. Once created, item
// contents and amounts never change; only status and payment metadata move.
type Order struct {
	ID             string     `json:"id" db:"order_id"`
	Code           string     `json:"code" db:"order_code"`
	UserID         string     `json:"userId" db:"user_id"`
	Status         Status     `json:"status" db:"status"`
	TotalAmount    int        `json:"totalAmount" db:"total_amount"`
	DiscountAmount int        `json:"discountAmount" db:"discount_amount"`
	FinalAmount    int        `json:"finalAmount" db:"final_amount"`
	CouponID       *string    `json:"couponId" db:"coupon_id"`
	PaymentMethod  Method     `json:"paymentMethod" db:"payment_method"`
	ProviderID     string     `json:"-" db:"provider_id"`
	TransactionID  string     `json:"transactionId" db:"transaction_id"`
	CancelReason   string     `json:"cancelReason" db:"cancel_reason"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" db:"updated_at"`
	PaidAt         *time.Time `json:"paidAt" db:"paid_at"`
}

// Item carries the price and title of a purchased item as they were at
// order time, shielding the purchase from later catalog edits.
type Item struct {
	OrderID       string        `json:"orderId" db:"order_id"`
	ItemType      cart.ItemType `json:"itemType" db:"item_type"`
	ItemID        string        `json:"itemId" db:"item_id"`
	Title         string        `json:"title" db:"title"`
	Price         int           `json:"price" db:"price"`
	DiscountPrice int           `json:"discountPrice" db:"discount_price"`
	Quantity      int           `json:"quantity" db:"quantity"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
}
