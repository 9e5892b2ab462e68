package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("order not found")

func Create(ctx context.Context, db sqlx.ExtContext, ord Order) error {
	const q = `
	INSERT INTO orders
		(order_id, order_code, user_id, status, total_amount, discount_amount, final_amount,
		 coupon_id, payment_method, provider_id, transaction_id, cancel_reason, created_at, updated_at)
	VALUES
		(:order_id, :order_code, :user_id, :status, :total_amount, :discount_amount, :final_amount,
		 :coupon_id, :payment_method, :provider_id, :transaction_id, :cancel_reason, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, ord); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	return nil
}

func CreateItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO order_items
		(order_id, item_type, item_id, title, price, discount_price, quantity, created_at)
	VALUES
		(:order_id, :item_type, :item_id, :title, :price, :discount_price, :quantity, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Order, error) {
	const q = `SELECT * FROM orders WHERE order_id = $1`
	return fetchOne(ctx, db, q, id)
}

func FetchByCode(ctx context.Context, db sqlx.ExtContext, code string) (Order, error) {
	const q = `SELECT * FROM orders WHERE order_code = $1`
	return fetchOne(ctx, db, q, code)
}

func FetchByProviderID(ctx context.Context, db sqlx.ExtContext, providerID string) (Order, error) {
	const q = `SELECT * FROM orders WHERE provider_id = $1`
	return fetchOne(ctx, db, q, providerID)
}

func fetchOne(ctx context.Context, db sqlx.ExtContext, q string, arg string) (Order, error) {
	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("selecting order: %w", err)
	}

	return ord, nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]Order, error) {
	const q = `SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	ords := []Order{}
	if err := sqlx.SelectContext(ctx, db, &ords, q, userID); err != nil {
		return nil, fmt.Errorf("selecting user orders: %w", err)
	}

	return ords, nil
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, orderID string) ([]Item, error) {
	const q = `SELECT * FROM order_items WHERE order_id = $1 ORDER BY created_at, item_id`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting order items: %w", err)
	}

	return items, nil
}

// markPaid is the guarded pending->paid flip. Zero rows means a concurrent
// transition already moved the order; the caller decides whether that is a
// no-op or an alert.
func markPaid(ctx context.Context, db sqlx.ExtContext, orderID string, transactionID string) (Order, bool, error) {
	const q = `
	UPDATE orders
	SET status = 'paid', transaction_id = $2, paid_at = now(), updated_at = now()
	WHERE order_id = $1 AND status = 'pending'
	RETURNING *`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, orderID, transactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, false, nil
		}
		return Order{}, false, fmt.Errorf("marking order paid: %w", err)
	}

	return ord, true, nil
}

// cancelPending is the guarded pending->cancelled flip, shared by user
// cancellation, failed callbacks and the stale sweep.
func cancelPending(ctx context.Context, db sqlx.ExtContext, orderID string, reason string) (bool, error) {
	const q = `
	UPDATE orders
	SET status = 'cancelled', cancel_reason = $2, updated_at = now()
	WHERE order_id = $1 AND status = 'pending'`

	res, err := db.ExecContext(ctx, q, orderID, reason)
	if err != nil {
		return false, fmt.Errorf("cancelling order: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking order cancellation: %w", err)
	}

	return n > 0, nil
}

// advance is the guarded flip for the post-payment legs of the state
// machine (paid->processing, processing->completed).
func advance(ctx context.Context, db sqlx.ExtContext, orderID string, from Status, to Status) (Order, bool, error) {
	const q = `
	UPDATE orders
	SET status = $3, updated_at = now()
	WHERE order_id = $1 AND status = $2
	RETURNING *`

	var ord Order
	if err := sqlx.GetContext(ctx, db, &ord, q, orderID, from, to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, false, nil
		}
		return Order{}, false, fmt.Errorf("advancing order to %s: %w", to, err)
	}

	return ord, true, nil
}

// cancelStale sweeps orders stuck in pending past the timeout. The status
// guard in the WHERE clause means the sweep and a late legitimate callback
// cannot both win.
func cancelStale(ctx context.Context, db sqlx.ExtContext, olderThanSeconds float64) (int64, error) {
	const q = `
	UPDATE orders
	SET status = 'cancelled', cancel_reason = 'payment timeout', updated_at = now()
	WHERE status = 'pending' AND created_at < now() - ($1 * interval '1 second')`

	res, err := db.ExecContext(ctx, q, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("cancelling stale orders: %w", err)
	}

	return res.RowsAffected()
}
