package cart

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func FetchItems(ctx context.Context, db sqlx.ExtContext, userID string) ([]Item, error) {
	const q = `SELECT * FROM cart_items WHERE user_id = $1 ORDER BY created_at`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart items: %w", err)
	}

	return items, nil
}

// UpsertItem adds an item or refreshes its quantity and price snapshot.
func UpsertItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO cart_items (user_id, item_type, item_id, quantity, unit_price, created_at, updated_at)
	VALUES (:user_id, :item_type, :item_id, :quantity, :unit_price, :created_at, :updated_at)
	ON CONFLICT (user_id, item_type, item_id) DO UPDATE
	SET quantity = EXCLUDED.quantity,
	    unit_price = EXCLUDED.unit_price,
	    updated_at = EXCLUDED.updated_at`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("upserting cart item: %w", err)
	}

	return nil
}

func DeleteItem(ctx context.Context, db sqlx.ExtContext, userID string, itemType ItemType, itemID string) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1 AND item_type = $2 AND item_id = $3`

	if _, err := db.ExecContext(ctx, q, userID, itemType, itemID); err != nil {
		return fmt.Errorf("deleting cart item: %w", err)
	}

	return nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, userID string) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("deleting cart: %w", err)
	}

	return nil
}
