package cart

import "time"

// ItemType discriminates what a cart row points at.
type ItemType string

const (
	TypeCourse ItemType = "course"
	TypeBook   ItemType = "book"
)

type Cart struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

type Item struct {
	UserID    string    `json:"-" db:"user_id"`
	ItemType  ItemType  `json:"itemType" db:"item_type"`
	ItemID    string    `json:"itemId" db:"item_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice int       `json:"unitPrice" db:"unit_price"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type ItemNew struct {
	ItemType ItemType `json:"itemType" validate:"required,oneof=course book"`
	ItemID   string   `json:"itemId" validate:"required"`
	Quantity int      `json:"quantity" validate:"required,gte=1,lte=100"`
}
