package activation

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
	"github.com/edushop/edushop/core/claims"
	"github.com/edushop/edushop/database"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
)

type redeemIn struct {
	Code string `json:"code" validate:"required"`
}

func HandleRedeem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var in redeemIn
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding activation code: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		code := strings.TrimSpace(in.Code)

		ub, err := Redeem(ctx, db, code, clm.UserID)
		if err != nil {
			if reason := Reason(err); reason != "" {
				return weberr.Rejection(err, err.Error(), reason)
			}
			return fmt.Errorf("redeeming activation code: %w", err)
		}

		return web.Respond(ctx, w, ub, http.StatusOK)
	}
}

type mintIn struct {
	Count          int        `json:"count" validate:"required,gte=1,lte=10000"`
	Type           Type       `json:"type" validate:"required,oneof=single multiple"`
	MaxActivations int        `json:"maxActivations" validate:"gte=0"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

func HandleMint(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		bookID := web.Param(r, "id")
		if err := validate.CheckID(bookID); err != nil {
			return weberr.BadRequest(err)
		}

		var in mintIn
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding mint request: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if in.Type == TypeMultiple && in.MaxActivations < 1 {
			err := errors.New("multiple-use codes need maxActivations >= 1")
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if _, err := book.Fetch(ctx, db, bookID); err != nil {
			if errors.Is(err, book.ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching book[%s]: %w", bookID, err)
		}

		var codes []Code
		err := database.Transaction(db, func(tx sqlx.ExtContext) error {
			var err error
			codes, err = Mint(ctx, tx, bookID, in.Count, in.Type, in.MaxActivations, in.ExpiresAt)
			return err
		})
		if err != nil {
			return fmt.Errorf("minting %d codes for book[%s]: %w", in.Count, bookID, err)
		}

		return web.Respond(ctx, w, codes, http.StatusCreated)
	}
}
