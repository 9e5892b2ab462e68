package entitlement

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// createEnrollment inserts the enrollment if this order has not already
// produced it. ON CONFLICT DO NOTHING is what makes replayed grants
// harmless.
func createEnrollment(ctx context.Context, db sqlx.ExtContext, e Enrollment) error {
	const q = `
	INSERT INTO enrollments (order_id, course_id, user_id, created_at)
	VALUES (:order_id, :course_id, :user_id, :created_at)
	ON CONFLICT (order_id, course_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, db, q, e); err != nil {
		return fmt.Errorf("inserting enrollment: %w", err)
	}

	return nil
}

func FetchEnrollments(ctx context.Context, db sqlx.ExtContext, userID string) ([]Enrollment, error) {
	const q = `SELECT * FROM enrollments WHERE user_id = $1 ORDER BY created_at`

	es := []Enrollment{}
	if err := sqlx.SelectContext(ctx, db, &es, q, userID); err != nil {
		return nil, fmt.Errorf("selecting enrollments: %w", err)
	}

	return es, nil
}

// countIssued reports how many codes an earlier grant already bound to this
// order and book.
func countIssued(ctx context.Context, db sqlx.ExtContext, orderID string, bookID string) (int, error) {
	const q = `SELECT count(*) FROM activation_codes WHERE order_id = $1 AND book_id = $2`

	var n int
	if err := sqlx.GetContext(ctx, db, &n, q, orderID, bookID); err != nil {
		return 0, fmt.Errorf("counting issued codes: %w", err)
	}

	return n, nil
}
