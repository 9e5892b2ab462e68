package book

import "time"

type Book struct {
	ID          string    `json:"id" db:"book_id"`
	Title       string    `json:"title" db:"title"`
	Author      string    `json:"author" db:"author"`
	Description string    `json:"description" db:"description"`
	ImageURL    string    `json:"imageUrl" db:"image_url"`
	Price       int       `json:"price" db:"price"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
	Version     int       `json:"-" db:"version"`
}

type BookNew struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Price       int    `json:"price" validate:"gte=0"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,url"`
}
