package coupon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/api/weberr"
	"github.com/edushop/edushop/core/book"
	"github.com/edushop/edushop/core/cart"
	"github.com/edushop/edushop/core/claims"
	"github.com/edushop/edushop/core/course"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
)

type validateIn struct {
	Code string `json:"code" validate:"required"`
}

type validateOut struct {
	Code     string `json:"code"`
	Subtotal int    `json:"subtotal"`
	Discount int    `json:"discount"`
	Final    int    `json:"finalAmount"`
}

// HandleValidate previews a coupon against the caller's current cart without
// consuming it.
func HandleValidate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in validateIn
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding coupon code: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		items, err := cart.FetchItems(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching cart items: %w", err)
		}

		// Price from the catalog, not the cart snapshot, so the preview
		// matches what checkout will charge after a price edit.
		var subtotal int
		for _, it := range items {
			switch it.ItemType {
			case cart.TypeCourse:
				c, err := course.Fetch(ctx, db, it.ItemID)
				if err != nil {
					return fmt.Errorf("fetching course[%s]: %w", it.ItemID, err)
				}
				subtotal += c.Price * it.Quantity

			case cart.TypeBook:
				b, err := book.Fetch(ctx, db, it.ItemID)
				if err != nil {
					return fmt.Errorf("fetching book[%s]: %w", it.ItemID, err)
				}
				subtotal += b.Price * it.Quantity

			default:
				return fmt.Errorf("cart item[%s] has unknown type %q", it.ItemID, it.ItemType)
			}
		}

		code := strings.ToUpper(strings.TrimSpace(in.Code))

		c, err := FetchByCode(ctx, db, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.Rejection(err, err.Error(), Reason(err))
			}
			return fmt.Errorf("fetching coupon[%s]: %w", code, err)
		}

		discount, err := Evaluate(subtotal, c, time.Now().UTC())
		if err != nil {
			if reason := Reason(err); reason != "" {
				return weberr.Rejection(err, err.Error(), reason)
			}
			return fmt.Errorf("evaluating coupon[%s]: %w", code, err)
		}

		out := validateOut{
			Code:     c.Code,
			Subtotal: subtotal,
			Discount: discount,
			Final:    subtotal - discount,
		}

		return web.Respond(ctx, w, out, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var cn CouponNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding coupon: %w", err))
		}

		if err := validate.Check(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		c := Coupon{
			ID:           validate.GenerateID(),
			Code:         cn.Code,
			DiscountType: cn.DiscountType,
			Value:        cn.Value,
			MinAmount:    cn.MinAmount,
			MaxDiscount:  cn.MaxDiscount,
			UsageLimit:   cn.UsageLimit,
			ValidFrom:    cn.ValidFrom,
			ValidUntil:   cn.ValidUntil,
			Status:       Active,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := Create(ctx, db, c); err != nil {
			return fmt.Errorf("creating coupon: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		cs, err := FetchAll(ctx, db)
		if err != nil {
			return fmt.Errorf("listing coupons: %w", err)
		}

		return web.Respond(ctx, w, cs, http.StatusOK)
	}
}
