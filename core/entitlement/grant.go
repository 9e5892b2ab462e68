package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/edushop/edushop/core/activation"
	"github.com/edushop/edushop/core/cart"
	"github.com/jmoiron/sqlx"
)

// Grant hands out everything a paid order bought: course enrollments and
// book activation codes. It runs inside the settlement transaction and is
// idempotent per order: re-invocation finds the earlier writes and adds
// nothing. A failure (code pool exhausted) aborts the whole transaction so
// partial entitlement never commits.
func Grant(ctx context.Context, tx sqlx.ExtContext, orderID string, userID string, items []Item) error {
	now := time.Now().UTC()

	for _, it := range items {
		switch cart.ItemType(it.ItemType) {
		case cart.TypeCourse:
			e := Enrollment{
				OrderID:   orderID,
				CourseID:  it.ItemID,
				UserID:    userID,
				CreatedAt: now,
			}
			if err := createEnrollment(ctx, tx, e); err != nil {
				return fmt.Errorf("enrolling user[%s] in course[%s]: %w", userID, it.ItemID, err)
			}

		case cart.TypeBook:
			issued, err := countIssued(ctx, tx, orderID, it.ItemID)
			if err != nil {
				return err
			}

			for n := issued; n < it.Quantity; n++ {
				if _, err := activation.Issue(ctx, tx, it.ItemID, orderID, userID); err != nil {
					return fmt.Errorf("issuing code %d/%d for book[%s]: %w", n+1, it.Quantity, it.ItemID, err)
				}
			}

		default:
			return fmt.Errorf("order item[%s] has unknown type %q", it.ItemID, it.ItemType)
		}
	}

	return nil
}
