package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edushop/edushop/core/book"
	"github.com/edushop/edushop/core/cart"
	"github.com/edushop/edushop/core/coupon"
	"github.com/edushop/edushop/core/course"
	"github.com/edushop/edushop/database"
	"github.com/edushop/edushop/random"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrEmptyCart = errors.New("cart is empty")

const codeLength = 12

// Draft is an assembled but not yet persisted order. Providers that need an
// external handoff (paypal, stripe) run it before Persist so no external
// call ever happens inside the transaction.
type Draft struct {
	Order Order
	Items []Item
}

// Assemble builds an order snapshot from the user's cart: current catalog
// price and title per item, coupon evaluated against the subtotal, discount
// prorated across items. A coupon rejection surfaces to the caller; it is
// never silently dropped.
func Assemble(ctx context.Context, db *sqlx.DB, userID string, couponCode string, method Method) (Draft, error) {
	cartItems, err := cart.FetchItems(ctx, db, userID)
	if err != nil {
		return Draft{}, fmt.Errorf("fetching cart items: %w", err)
	}

	if len(cartItems) == 0 {
		return Draft{}, ErrEmptyCart
	}

	now := time.Now().UTC()
	orderID := validate.GenerateID()

	var subtotal int
	items := make([]Item, 0, len(cartItems))
	for _, ci := range cartItems {
		var title string
		var price int

		switch ci.ItemType {
		case cart.TypeCourse:
			c, err := course.Fetch(ctx, db, ci.ItemID)
			if err != nil {
				return Draft{}, fmt.Errorf("fetching course[%s]: %w", ci.ItemID, err)
			}
			title, price = c.Name, c.Price

		case cart.TypeBook:
			b, err := book.Fetch(ctx, db, ci.ItemID)
			if err != nil {
				return Draft{}, fmt.Errorf("fetching book[%s]: %w", ci.ItemID, err)
			}
			title, price = b.Title, b.Price

		default:
			return Draft{}, fmt.Errorf("cart item[%s] has unknown type %q", ci.ItemID, ci.ItemType)
		}

		items = append(items, Item{
			OrderID:       orderID,
			ItemType:      ci.ItemType,
			ItemID:        ci.ItemID,
			Title:         title,
			Price:         price,
			DiscountPrice: price,
			Quantity:      ci.Quantity,
			CreatedAt:     now,
		})

		subtotal += price * ci.Quantity
	}

	var discount int
	var couponID *string
	if couponCode != "" {
		code := strings.ToUpper(strings.TrimSpace(couponCode))

		cpn, err := coupon.FetchByCode(ctx, db, code)
		if err != nil {
			return Draft{}, err
		}

		discount, err = coupon.Evaluate(subtotal, cpn, now)
		if err != nil {
			return Draft{}, err
		}

		couponID = &cpn.ID

		// Record the discount the lines actually express, so the charged
		// unit prices always sum to the final amount.
		discount = prorate(items, subtotal, discount)
	}

	ord := Order{
		ID:             orderID,
		Code:           orderCode(),
		UserID:         userID,
		Status:         Pending,
		TotalAmount:    subtotal,
		DiscountAmount: discount,
		FinalAmount:    subtotal - discount,
		CouponID:       couponID,
		PaymentMethod:  method,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return Draft{Order: ord, Items: items}, nil
}

// prorate spreads the order discount across items proportionally to their
// share of the subtotal. Unit prices are integers, so a line absorbs
// discount only in multiples of its quantity; the rounding leftover goes
// onto whichever lines still have room, and anything no line can express
// is returned unapplied. The result is the discount the lines carry, and
// sum(DiscountPrice * Quantity) == subtotal - result always holds.
func prorate(items []Item, subtotal int, discount int) int {
	if subtotal == 0 || discount == 0 {
		return 0
	}

	applied := 0
	for i := range items {
		unitOff := discount * items[i].Price / subtotal
		items[i].DiscountPrice = items[i].Price - unitOff
		applied += unitOff * items[i].Quantity
	}

	for i := range items {
		left := discount - applied
		if left <= 0 {
			break
		}

		extra := left / items[i].Quantity
		if extra > items[i].DiscountPrice {
			extra = items[i].DiscountPrice
		}
		items[i].DiscountPrice -= extra
		applied += extra * items[i].Quantity
	}

	return applied
}

// Persist writes the order and its items atomically and clears the cart in
// the same transaction, so cart contents survive a failed write. The order
// code is regenerated on the rare unique collision.
func Persist(ctx context.Context, db *sqlx.DB, d Draft) (Order, error) {
	const attempts = 3

	ord := d.Order

	for i := 0; i < attempts; i++ {
		err := database.Transaction(db, func(tx sqlx.ExtContext) error {
			if err := Create(ctx, tx, ord); err != nil {
				return err
			}

			for _, it := range d.Items {
				if err := CreateItem(ctx, tx, it); err != nil {
					return err
				}
			}

			return cart.Delete(ctx, tx, ord.UserID)
		})

		if err == nil {
			return ord, nil
		}

		var pqe *pq.Error
		if errors.As(err, &pqe) && pqe.Code == "23505" && pqe.Constraint == "orders_order_code_key" {
			ord.Code = orderCode()
			continue
		}

		return Order{}, fmt.Errorf("persisting order[%s]: %w", ord.ID, err)
	}

	return Order{}, fmt.Errorf("persisting order[%s]: exhausted %d order code attempts", ord.ID, attempts)
}

// orderCode generates the user-facing order identifier.
func orderCode() string {
	return "ED" + random.Code(codeLength)
}
