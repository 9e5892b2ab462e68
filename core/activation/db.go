package activation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func Create(ctx context.Context, db sqlx.ExtContext, c Code) error {
	const q = `
	INSERT INTO activation_codes
		(code_id, book_id, code, type, max_activations, current_activations,
		 status, order_id, user_id, expires_at, created_at, updated_at)
	VALUES
		(:code_id, :book_id, :code, :type, :max_activations, :current_activations,
		 :status, :order_id, :user_id, :expires_at, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting activation code: %w", err)
	}

	return nil
}

// Issue claims one unassigned code from the book's pool and binds it to the
// order and buyer. SKIP LOCKED keeps concurrent settlements from contending
// on the same row: each claims a different code or finds the pool empty.
func Issue(ctx context.Context, db sqlx.ExtContext, bookID string, orderID string, userID string) (Code, error) {
	const q = `
	UPDATE activation_codes
	SET order_id = $2, user_id = $3, updated_at = now()
	WHERE code_id = (
		SELECT code_id FROM activation_codes
		WHERE book_id = $1 AND order_id IS NULL AND status = 'active'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	)
	RETURNING *`

	var c Code
	if err := sqlx.GetContext(ctx, db, &c, q, bookID, orderID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Code{}, ErrExhausted
		}
		return Code{}, fmt.Errorf("claiming activation code for book[%s]: %w", bookID, err)
	}

	return c, nil
}

// redeemOne is the atomic check-and-increment at the heart of redemption.
// The WHERE clause re-checks every guard so two concurrent redemptions of a
// single-use code cannot both pass: the second sees zero rows.
func redeemOne(ctx context.Context, db sqlx.ExtContext, code string) (Code, error) {
	const q = `
	UPDATE activation_codes
	SET current_activations = current_activations + 1,
	    status = CASE WHEN current_activations + 1 >= max_activations THEN 'used' ELSE status END,
	    updated_at = now()
	WHERE code = $1
	  AND status = 'active'
	  AND current_activations < max_activations
	  AND (expires_at IS NULL OR expires_at > now())
	RETURNING *`

	var c Code
	err := sqlx.GetContext(ctx, db, &c, q, code)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Code{}, fmt.Errorf("redeeming activation code: %w", err)
	}

	// The guarded update matched nothing. Read the row again only to tell
	// the caller why.
	const reason = `SELECT * FROM activation_codes WHERE code = $1`

	if err := sqlx.GetContext(ctx, db, &c, reason, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Code{}, ErrNotFound
		}
		return Code{}, fmt.Errorf("inspecting activation code: %w", err)
	}

	switch {
	case c.Status == StatusExpired:
		return Code{}, ErrExpired
	case c.ExpiresAt != nil && !c.ExpiresAt.After(time.Now().UTC()):
		return Code{}, ErrExpired
	default:
		return Code{}, ErrAlreadyUsed
	}
}

func FetchByOrder(ctx context.Context, db sqlx.ExtContext, orderID string) ([]Code, error) {
	const q = `SELECT * FROM activation_codes WHERE order_id = $1 ORDER BY created_at`

	cs := []Code{}
	if err := sqlx.SelectContext(ctx, db, &cs, q, orderID); err != nil {
		return nil, fmt.Errorf("selecting order activation codes: %w", err)
	}

	return cs, nil
}

func createUserBook(ctx context.Context, db sqlx.ExtContext, ub UserBook) error {
	const q = `
	INSERT INTO user_books (user_id, book_id, code_id, created_at)
	VALUES (:user_id, :book_id, :code_id, :created_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, ub); err != nil {
		var pqe *pq.Error
		if errors.As(err, &pqe) && pqe.Code == "23505" {
			return ErrOwned
		}
		return fmt.Errorf("inserting user book: %w", err)
	}

	return nil
}

func FetchUserBooks(ctx context.Context, db sqlx.ExtContext, userID string) ([]UserBook, error) {
	const q = `SELECT * FROM user_books WHERE user_id = $1 ORDER BY created_at`

	ubs := []UserBook{}
	if err := sqlx.SelectContext(ctx, db, &ubs, q, userID); err != nil {
		return nil, fmt.Errorf("selecting user books: %w", err)
	}

	return ubs, nil
}

// ExpireOverdue flips active codes past their expiry. Run by the background
// sweep; redemption re-checks expiry on its own, so this only keeps the
// reported status honest.
func ExpireOverdue(ctx context.Context, db sqlx.ExtContext) (int64, error) {
	const q = `
	UPDATE activation_codes
	SET status = 'expired', updated_at = now()
	WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= now()`

	res, err := db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("expiring activation codes: %w", err)
	}

	return res.RowsAffected()
}
