package activation

import (
	"errors"
	"time"
)

// Type distinguishes one-shot codes from multi-activation ones.
type Type string

const (
	TypeSingle   Type = "single"
	TypeMultiple Type = "multiple"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

var (
	ErrNotFound    = errors.New("activation code not found")
	ErrAlreadyUsed = errors.New("activation code already used")
	ErrExpired     = errors.New("activation code expired")
	ErrExhausted   = errors.New("activation code pool exhausted")
	ErrOwned       = errors.New("book already activated for this user")
)

// Reason translates a redemption rejection into its wire code.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAlreadyUsed):
		return "ALREADY_USED"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrOwned):
		return "ALREADY_OWNED"
	}
	return ""
}

type Code struct {
	ID                 string     `json:"id" db:"code_id"`
	BookID             string     `json:"bookId" db:"book_id"`
	Code               string     `json:"code" db:"code"`
	Type               Type       `json:"type" db:"type"`
	MaxActivations     int        `json:"maxActivations" db:"max_activations"`
	CurrentActivations int        `json:"currentActivations" db:"current_activations"`
	Status             Status     `json:"status" db:"status"`
	OrderID            *string    `json:"orderId" db:"order_id"`
	UserID             *string    `json:"userId" db:"user_id"`
	ExpiresAt          *time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time  `json:"updatedAt" db:"updated_at"`
}

// UserBook records a redeemed entitlement: this user can read this book.
type UserBook struct {
	UserID    string    `json:"userId" db:"user_id"`
	BookID    string    `json:"bookId" db:"book_id"`
	CodeID    string    `json:"codeId" db:"code_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
