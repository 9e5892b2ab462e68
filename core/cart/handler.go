package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/api/weberr"
	"github.com/edushop/edushop/core/book"
	"github.com/edushop/edushop/core/claims"
	"github.com/edushop/edushop/core/course"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
)

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		items, err := FetchItems(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching cart items: %w", err)
		}

		c := Cart{Items: items}
		for _, it := range items {
			c.Total += it.UnitPrice * it.Quantity
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleUpsertItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding cart item: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}
		if err := validate.CheckID(in.ItemID); err != nil {
			return weberr.BadRequest(err)
		}

		// The price snapshot is taken from the catalog at add time; the
		// order assembler refreshes it again at checkout.
		var price int
		switch in.ItemType {
		case TypeCourse:
			c, err := course.Fetch(ctx, db, in.ItemID)
			if err != nil {
				if errors.Is(err, course.ErrNotFound) {
					return weberr.NotFound(err)
				}
				return fmt.Errorf("fetching course[%s]: %w", in.ItemID, err)
			}
			price = c.Price

		case TypeBook:
			b, err := book.Fetch(ctx, db, in.ItemID)
			if err != nil {
				if errors.Is(err, book.ErrNotFound) {
					return weberr.NotFound(err)
				}
				return fmt.Errorf("fetching book[%s]: %w", in.ItemID, err)
			}
			price = b.Price
		}

		qty := in.Quantity
		if in.ItemType == TypeCourse {
			// A course can be bought once.
			qty = 1
		}

		now := time.Now().UTC()
		it := Item{
			UserID:    clm.UserID,
			ItemType:  in.ItemType,
			ItemID:    in.ItemID,
			Quantity:  qty,
			UnitPrice: price,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := UpsertItem(ctx, db, it); err != nil {
			return fmt.Errorf("adding item to cart: %w", err)
		}

		return web.Respond(ctx, w, it, http.StatusOK)
	}
}

func HandleDeleteItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		itemType := ItemType(web.Param(r, "item_type"))
		if itemType != TypeCourse && itemType != TypeBook {
			return weberr.BadRequest(errors.New("unknown item type"))
		}

		itemID := web.Param(r, "item_id")
		if err := validate.CheckID(itemID); err != nil {
			return weberr.BadRequest(err)
		}

		if err := DeleteItem(ctx, db, clm.UserID, itemType, itemID); err != nil {
			return fmt.Errorf("removing item from cart: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if err := Delete(ctx, db, clm.UserID); err != nil {
			return fmt.Errorf("clearing cart: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
