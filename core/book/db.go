package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("book not found")

func Create(ctx context.Context, db sqlx.ExtContext, b Book) error {
	const q = `
	INSERT INTO books (book_id, title, author, description, image_url, price, created_at, updated_at)
	VALUES (:book_id, :title, :author, :description, :image_url, :price, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, b); err != nil {
		return fmt.Errorf("inserting book: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (Book, error) {
	const q = `SELECT * FROM books WHERE book_id = $1`

	var b Book
	if err := sqlx.GetContext(ctx, db, &b, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("selecting book[%s]: %w", id, err)
	}

	return b, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Book, error) {
	const q = `SELECT * FROM books ORDER BY created_at`

	bs := []Book{}
	if err := sqlx.SelectContext(ctx, db, &bs, q); err != nil {
		return nil, fmt.Errorf("selecting books: %w", err)
	}

	return bs, nil
}
