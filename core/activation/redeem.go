package activation

import (
	"context"
	"fmt"
	"time"

	"github.com/edushop/edushop/database"
	"github.com/edushop/edushop/random"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
)

const codeLength = 16

// Redeem spends one activation of the code and grants the book to the user.
// Increment and grant commit together: if the user already owns the book the
// activation is not burned.
func Redeem(ctx context.Context, db *sqlx.DB, code string, userID string) (UserBook, error) {
	var ub UserBook

	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		c, err := redeemOne(ctx, tx, code)
		if err != nil {
			return err
		}

		ub = UserBook{
			UserID:    userID,
			BookID:    c.BookID,
			CodeID:    c.ID,
			CreatedAt: time.Now().UTC(),
		}

		return createUserBook(ctx, tx, ub)
	})

	if err != nil {
		return UserBook{}, err
	}

	return ub, nil
}

// Mint generates count fresh pool codes for a book.
func Mint(ctx context.Context, db sqlx.ExtContext, bookID string, count int, typ Type, maxActivations int, expiresAt *time.Time) ([]Code, error) {
	if typ == TypeSingle {
		maxActivations = 1
	}

	now := time.Now().UTC()
	codes := make([]Code, 0, count)

	for i := 0; i < count; i++ {
		raw, err := random.CodeSecure(codeLength)
		if err != nil {
			return nil, fmt.Errorf("generating activation code: %w", err)
		}

		c := Code{
			ID:             validate.GenerateID(),
			BookID:         bookID,
			Code:           raw,
			Type:           typ,
			MaxActivations: maxActivations,
			Status:         StatusActive,
			ExpiresAt:      expiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := Create(ctx, db, c); err != nil {
			return nil, err
		}

		codes = append(codes, c)
	}

	return codes, nil
}
