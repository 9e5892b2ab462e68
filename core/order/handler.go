package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/edushop/edushop/api/background"
	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/api/weberr"
	"github.com/edushop/edushop/config"
	"github.com/edushop/edushop/core/activation"
	"github.com/edushop/edushop/core/claims"
	"github.com/edushop/edushop/core/coupon"
	"github.com/edushop/edushop/core/payment"
	"github.com/edushop/edushop/core/user"
	"github.com/edushop/edushop/email"
	"github.com/edushop/edushop/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/plutov/paypal/v4"
)

// Acknowledgment codes the gateway expects in callback responses. Anything
// other than a 2xx with one of these makes it retry.
const (
	ackOK           = "00"
	ackUnknownOrder = "01"
	ackBadSignature = "97"
)

type ack struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type checkoutIn struct {
	CouponCode string `json:"couponCode"`
}

// decodeCheckout tolerates an absent body: the coupon is optional.
func decodeCheckout(w http.ResponseWriter, r *http.Request) (checkoutIn, error) {
	var in checkoutIn
	if err := web.Decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
		return checkoutIn{}, weberr.BadRequest(fmt.Errorf("decoding checkout request: %w", err))
	}
	return in, nil
}

// assemble runs the order assembler and translates its expected failures
// into user-facing outcomes.
func assemble(ctx context.Context, db *sqlx.DB, userID string, couponCode string, method Method) (Draft, error) {
	d, err := Assemble(ctx, db, userID, couponCode, method)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			return Draft{}, weberr.Rejection(err, "no items to checkout", "EMPTY_CART")
		}
		if reason := coupon.Reason(err); reason != "" {
			return Draft{}, weberr.Rejection(err, err.Error(), reason)
		}
		return Draft{}, fmt.Errorf("assembling order: %w", err)
	}
	return d, nil
}

// HandleGatewayCheckout creates a pending order and hands back the signed
// redirect to the gateway-hosted payment page. Signing happens before any
// row is written and no lock is held across it.
func HandleGatewayCheckout(db *sqlx.DB, cfg config.Gateway) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		in, err := decodeCheckout(w, r)
		if err != nil {
			return err
		}

		d, err := assemble(ctx, db, clm.UserID, in.CouponCode, MethodGateway)
		if err != nil {
			return err
		}

		ord, err := Persist(ctx, db, d)
		if err != nil {
			return err
		}

		payURL, err := payment.BuildPayURL(cfg, ord.Code, ord.FinalAmount, web.ClientIP(r))
		if err != nil {
			return fmt.Errorf("building pay url for order[%s]: %w", ord.ID, err)
		}

		out := struct {
			Order  Order  `json:"order"`
			PayURL string `json:"payUrl"`
		}{Order: ord, PayURL: payURL}

		return web.Respond(ctx, w, out, http.StatusCreated)
	}
}

// HandleGatewayCallback is the gateway's asynchronous settlement webhook.
// The signature is verified before any field of the payload is trusted and
// before any guarded transition runs.
func HandleGatewayCallback(db *sqlx.DB, cfg config.Gateway, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		res, err := payment.VerifyCallback(cfg, r.URL.Query())
		if err != nil {
			log.WithFields(logrus.Fields{
				"alert":  "security",
				"remote": r.RemoteAddr,
			}).Warnf("rejected gateway callback: %v", err)
			return web.Respond(ctx, w, ack{Code: ackBadSignature, Message: "invalid signature"}, http.StatusOK)
		}

		if err := Settle(ctx, db, log, res); err != nil {
			if errors.Is(err, ErrUnknownOrder) {
				return web.Respond(ctx, w, ack{Code: ackUnknownOrder, Message: "order not found"}, http.StatusOK)
			}
			return fmt.Errorf("settling callback for order[%s]: %w", res.OrderCode, err)
		}

		return web.Respond(ctx, w, ack{Code: ackOK, Message: "confirmed"}, http.StatusOK)
	}
}

func HandlePaypalCheckout(db *sqlx.DB, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		in, err := decodeCheckout(w, r)
		if err != nil {
			return err
		}

		d, err := assemble(ctx, db, clm.UserID, in.CouponCode, MethodPaypal)
		if err != nil {
			return err
		}

		items := make([]paypal.Item, 0, len(d.Items))
		for _, it := range d.Items {
			items = append(items, paypal.Item{
				Quantity: strconv.Itoa(it.Quantity),
				Name:     it.Title,

				UnitAmount: &paypal.Money{
					Currency: "USD",
					Value:    strconv.Itoa(it.DiscountPrice),
				},
			})
		}

		units := []paypal.PurchaseUnitRequest{{
			ReferenceID: d.Order.Code,
			Items:       items,

			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    strconv.Itoa(d.Order.FinalAmount),
			},
		}}

		ppOrd, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, nil)
		if err != nil {
			return fmt.Errorf("creating paypal order: %w", err)
		}

		d.Order.ProviderID = ppOrd.ID
		if _, err := Persist(ctx, db, d); err != nil {
			return fmt.Errorf("creating the order bound to payment[%s]: %w", ppOrd.ID, err)
		}

		return web.Respond(ctx, w, ppOrd, http.StatusOK)
	}
}

func HandlePaypalCapture(db *sqlx.DB, pp *paypal.Client, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		providerID := web.Param(r, "id")

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", providerID, err)
		}

		if resp.Status != "COMPLETED" {
			return fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", providerID, resp.Status)
		}

		ord, err := FetchByProviderID(ctx, db, providerID)
		if err != nil {
			return fmt.Errorf("fetching the order bound to payment[%s]: %w", providerID, err)
		}

		if err := MarkPaid(ctx, db, log, ord.ID, providerID); err != nil {
			return fmt.Errorf("the order was payed but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleStripeCheckout(db *sqlx.DB, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		in, err := decodeCheckout(w, r)
		if err != nil {
			return err
		}

		d, err := assemble(ctx, db, clm.UserID, in.CouponCode, MethodStripe)
		if err != nil {
			return err
		}

		li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(d.Items))
		for _, it := range d.Items {
			li = append(li, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(int64(it.Quantity)),

				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String("usd"),
					TaxBehavior: stripe.String("inclusive"),
					UnitAmount:  stripe.Int64(int64(it.DiscountPrice) * 100),

					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(it.Title),
					},
				},
			})
		}

		params := &stripe.CheckoutSessionParams{
			SuccessURL:        stripe.String(cfg.SuccessURL),
			CancelURL:         stripe.String(cfg.CancelURL),
			Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
			ClientReferenceID: stripe.String(d.Order.Code),
			LineItems:         li,
		}

		s, err := strp.CheckoutSessions.New(params)
		if err != nil {
			return fmt.Errorf("creating stripe session: %w", err)
		}

		d.Order.ProviderID = s.ID
		if _, err := Persist(ctx, db, d); err != nil {
			return fmt.Errorf("creating the order bound to payment[%s]: %w", s.ID, err)
		}

		return web.Respond(ctx, w, s.URL, http.StatusOK)
	}
}

func HandleStripeCapture(db *sqlx.DB, cfg config.Stripe, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			log.WithField("alert", "security").Warnf("rejected stripe event: %v", err)
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "checkout.session.completed" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		if session.Mode != stripe.CheckoutSessionModePayment {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		ord, err := FetchByProviderID(ctx, db, session.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				log.WithFields(logrus.Fields{
					"alert":      "consistency",
					"session_id": session.ID,
				}).Warn("stripe event names an unknown order")
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching the order bound to payment[%s]: %w", session.ID, err)
		}

		if err := MarkPaid(ctx, db, log, ord.ID, session.ID); err != nil {
			return fmt.Errorf("the order was payed but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleCODCheckout creates a pending cash-on-delivery order awaiting
// manual admin approval.
func HandleCODCheckout(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		in, err := decodeCheckout(w, r)
		if err != nil {
			return err
		}

		d, err := assemble(ctx, db, clm.UserID, in.CouponCode, MethodCOD)
		if err != nil {
			return err
		}

		ord, err := Persist(ctx, db, d)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, ord, http.StatusCreated)
	}
}

// HandleApprove is the manual settlement path for COD orders. It runs the
// same guarded transition as the gateway callback.
func HandleApprove(db *sqlx.DB, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		ord, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching order[%s]: %w", id, err)
		}

		if err := MarkPaid(ctx, db, log, ord.ID, "manual-approval"); err != nil {
			return fmt.Errorf("approving order[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleCancel(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if _, err := claims.Get(ctx); err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		ord, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching order[%s]: %w", id, err)
		}

		if !claims.CanAccess(ctx, ord.UserID) {
			return weberr.NotFound(errors.New("order belongs to another user"))
		}

		done, err := Cancel(ctx, db, ord.ID, "cancelled by user")
		if err != nil {
			return fmt.Errorf("cancelling order[%s]: %w", id, err)
		}
		if !done {
			err := fmt.Errorf("order[%s] is not pending", id)
			return weberr.Rejection(err, "order can no longer be cancelled", "NOT_CANCELLABLE")
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

type advanceIn struct {
	Status Status `json:"status" validate:"required,oneof=processing completed"`
}

// HandleAdvance moves a paid order along its fulfillment legs. Reaching
// completed dispatches the confirmation email in the background.
func HandleAdvance(db *sqlx.DB, bg *background.Background, mailer *email.Mailer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		var in advanceIn
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("decoding status: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		ord, done, err := Advance(ctx, db, id, in.Status)
		if err != nil {
			return fmt.Errorf("advancing order[%s]: %w", id, err)
		}
		if !done {
			err := fmt.Errorf("order[%s] is not in the right state for %s", id, in.Status)
			return weberr.Rejection(err, "order cannot move to the requested status", "INVALID_TRANSITION")
		}

		if ord.Status == Completed && mailer != nil {
			usr, err := user.Fetch(ctx, db, ord.UserID)
			if err != nil {
				return fmt.Errorf("fetching buyer of order[%s]: %w", id, err)
			}

			bg.Add(func() error {
				return mailer.SendOrderConfirmation(email.Confirmation{
					To:        usr.Email,
					Name:      usr.Name,
					OrderCode: ord.Code,
					Amount:    ord.FinalAmount,
				})
			})
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		ords, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing orders: %w", err)
		}

		return web.Respond(ctx, w, ords, http.StatusOK)
	}
}

// HandleShow returns the order with its immutable item snapshot and any
// activation codes the grant bound to it.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if _, err := claims.Get(ctx); err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		ord, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching order[%s]: %w", id, err)
		}

		if !claims.CanAccess(ctx, ord.UserID) {
			return weberr.NotFound(errors.New("order belongs to another user"))
		}

		items, err := FetchItems(ctx, db, ord.ID)
		if err != nil {
			return fmt.Errorf("fetching items of order[%s]: %w", id, err)
		}

		codes, err := activation.FetchByOrder(ctx, db, ord.ID)
		if err != nil {
			return fmt.Errorf("fetching codes of order[%s]: %w", id, err)
		}

		out := struct {
			Order
			Items []Item            `json:"items"`
			Codes []activation.Code `json:"activationCodes"`
		}{Order: ord, Items: items, Codes: codes}

		return web.Respond(ctx, w, out, http.StatusOK)
	}
}
