package entitlement

import "time"

// Enrollment grants a user access to a purchased course. Keyed by
// (order, course) so a replayed grant detects its own earlier writes.
type Enrollment struct {
	OrderID   string    `json:"orderId" db:"order_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	UserID    string    `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Item is the slice of an order the granter needs to know about.
type Item struct {
	ItemType string
	ItemID   string
	Quantity int
}
