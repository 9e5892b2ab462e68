package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/edushop/edushop/core/coupon"
	"github.com/edushop/edushop/core/entitlement"
	"github.com/edushop/edushop/core/payment"
	"github.com/edushop/edushop/database"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Settlement outcomes the callback handler translates into the gateway's
// acknowledgment codes.
var (
	// ErrUnknownOrder: verified callback for an order that does not exist.
	// Rejected without creating anything.
	ErrUnknownOrder = errors.New("callback for unknown order")
)

// Settle reconciles a verified gateway result with the order it names.
// Repeated delivery of the same callback is harmless: the paid transition
// runs at most once, later attempts are acknowledged no-ops.
func Settle(ctx context.Context, db *sqlx.DB, log logrus.FieldLogger, res payment.Result) error {
	ord, err := FetchByCode(ctx, db, res.OrderCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WithFields(logrus.Fields{
				"alert":      "consistency",
				"order_code": res.OrderCode,
			}).Warn("verified callback names a non-existent order")
			return ErrUnknownOrder
		}
		return fmt.Errorf("fetching order[%s] for settlement: %w", res.OrderCode, err)
	}

	if res.Status != payment.StatusSuccess {
		done, err := cancelPending(ctx, db, ord.ID, "gateway reported "+res.Status)
		if err != nil {
			return err
		}
		if !done {
			log.WithField("order_id", ord.ID).Info("failure callback for already-settled order ignored")
		}
		return nil
	}

	return MarkPaid(ctx, db, log, ord.ID, res.TransactionID)
}

// MarkPaid moves an order pending->paid and grants its entitlements in one
// durable commit. The status guard makes concurrent duplicate invocations
// collapse to a single grant: losers observe zero affected rows and return
// success without writing anything. This is the engine's central
// correctness property; manual paths (COD approval) go through here too.
func MarkPaid(ctx context.Context, db *sqlx.DB, log logrus.FieldLogger, orderID string, transactionID string) error {
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		ord, won, err := markPaid(ctx, tx, orderID, transactionID)
		if err != nil {
			return err
		}

		if !won {
			// Already paid or cancelled: nothing to do, but a payment
			// arriving for a cancelled order is worth an alert.
			cur, err := Fetch(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if cur.Status == Cancelled {
				log.WithFields(logrus.Fields{
					"alert":    "consistency",
					"order_id": orderID,
				}).Warn("payment confirmed for an order already cancelled")
			}
			return nil
		}

		if ord.CouponID != nil {
			if err := coupon.Consume(ctx, tx, *ord.CouponID); err != nil {
				return fmt.Errorf("consuming coupon[%s]: %w", *ord.CouponID, err)
			}
		}

		items, err := FetchItems(ctx, tx, ord.ID)
		if err != nil {
			return err
		}

		grant := make([]entitlement.Item, 0, len(items))
		for _, it := range items {
			grant = append(grant, entitlement.Item{
				ItemType: string(it.ItemType),
				ItemID:   it.ItemID,
				Quantity: it.Quantity,
			})
		}

		if err := entitlement.Grant(ctx, tx, ord.ID, ord.UserID, grant); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		// The rollback retracted the paid flip and any partial grant;
		// the order is still pending and the gateway will retry.
		log.WithFields(logrus.Fields{
			"alert":    "consistency",
			"order_id": orderID,
			"message":  err,
		}).Error("settlement aborted, no partial entitlement committed")
		return fmt.Errorf("settling order[%s]: %w", orderID, err)
	}

	return nil
}

// Cancel is the user/sweep-facing guarded cancellation of a pending order.
func Cancel(ctx context.Context, db *sqlx.DB, orderID string, reason string) (bool, error) {
	return cancelPending(ctx, db, orderID, reason)
}

// Advance moves a paid order through its fulfillment legs. Only
// paid->processing and processing->completed are allowed.
func Advance(ctx context.Context, db *sqlx.DB, orderID string, to Status) (Order, bool, error) {
	var from Status
	switch to {
	case Processing:
		from = Paid
	case Completed:
		from = Processing
	default:
		return Order{}, false, fmt.Errorf("no manual transition to %s", to)
	}

	if !CanTransition(from, to) {
		return Order{}, false, fmt.Errorf("transition %s -> %s not allowed", from, to)
	}

	return advance(ctx, db, orderID, from, to)
}
