package book

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/api/weberr"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		books, err := FetchAll(ctx, db)
		if err != nil {
			return fmt.Errorf("listing books: %w", err)
		}

		return web.Respond(ctx, w, books, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		b, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching book[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, b, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var bn BookNew
		if err := web.Decode(w, r, &bn); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding book: %w", err))
		}

		if err := validate.Check(bn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		b := Book{
			ID:          validate.GenerateID(),
			Title:       bn.Title,
			Author:      bn.Author,
			Description: bn.Description,
			Price:       bn.Price,
			ImageURL:    bn.ImageURL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := Create(ctx, db, b); err != nil {
			return fmt.Errorf("creating book: %w", err)
		}

		return web.Respond(ctx, w, b, http.StatusCreated)
	}
}
