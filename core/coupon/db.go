package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, c Coupon) error {
	const q = `
	INSERT INTO coupons
		(coupon_id, code, discount_type, value, min_amount, max_discount,
		 usage_limit, used_count, valid_from, valid_until, status, created_at, updated_at)
	VALUES
		(:coupon_id, :code, :discount_type, :value, :min_amount, :max_discount,
		 :usage_limit, :used_count, :valid_from, :valid_until, :status, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting coupon: %w", err)
	}

	return nil
}

func FetchByCode(ctx context.Context, db sqlx.ExtContext, code string) (Coupon, error) {
	const q = `SELECT * FROM coupons WHERE code = $1`

	var c Coupon
	if err := sqlx.GetContext(ctx, db, &c, q, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, fmt.Errorf("selecting coupon[%s]: %w", code, err)
	}

	return c, nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Coupon, error) {
	const q = `SELECT * FROM coupons WHERE coupon_id = $1`

	var c Coupon
	if err := sqlx.GetContext(ctx, db, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, fmt.Errorf("selecting coupon[%s]: %w", id, err)
	}

	return c, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Coupon, error) {
	const q = `SELECT * FROM coupons ORDER BY created_at`

	cs := []Coupon{}
	if err := sqlx.SelectContext(ctx, db, &cs, q); err != nil {
		return nil, fmt.Errorf("selecting coupons: %w", err)
	}

	return cs, nil
}

// Consume burns one use of the coupon. The guard on used_count makes the
// increment an atomic check-and-set, so usage_limit holds under concurrent
// settlements: losers of the race get ErrUsageLimitReached.
func Consume(ctx context.Context, db sqlx.ExtContext, couponID string) error {
	const q = `
	UPDATE coupons
	SET used_count = used_count + 1, updated_at = now()
	WHERE coupon_id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	res, err := db.ExecContext(ctx, q, couponID)
	if err != nil {
		return fmt.Errorf("incrementing coupon usage: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking coupon usage update: %w", err)
	}
	if n == 0 {
		return ErrUsageLimitReached
	}

	return nil
}
