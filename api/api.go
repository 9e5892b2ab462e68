package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/edushop/edushop/api/background"
	"github.com/edushop/edushop/api/middleware"
	"github.com/edushop/edushop/api/web"
	"github.com/edushop/edushop/config"
	"github.com/edushop/edushop/core/activation"
	"github.com/edushop/edushop/core/auth"
	"github.com/edushop/edushop/core/book"
	"github.com/edushop/edushop/core/cart"
	"github.com/edushop/edushop/core/coupon"
	"github.com/edushop/edushop/core/course"
	"github.com/edushop/edushop/core/entitlement"
	"github.com/edushop/edushop/core/order"
	"github.com/edushop/edushop/email"
	"github.com/edushop/edushop/rate"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	DB         *sqlx.DB
	Session    *scs.SessionManager
	Mailer     *email.Mailer
	Background *background.Background
	Paypal     *paypal.Client
	Stripe     *stripecl.API
	StripeCfg  config.Stripe
	GatewayCfg config.Gateway
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Session)
	admin := auth.Admin(cfg.Session)

	// Brute-force deterrent on the two endpoints where guessing codes pays.
	guess := middleware.RateLimit(rate.NewLimiter(10, 15, rate.Every(time.Second)))

	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session))
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))

	a.Handle(http.MethodGet, "/courses/owned", entitlement.HandleCoursesOwned(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/courses", course.HandleCreate(cfg.DB), admin)

	a.Handle(http.MethodGet, "/books/owned", entitlement.HandleBooksOwned(cfg.DB), authen)
	a.Handle(http.MethodPost, "/books/{id}/codes", activation.HandleMint(cfg.DB), admin)
	a.Handle(http.MethodGet, "/books/{id}", book.HandleShow(cfg.DB))
	a.Handle(http.MethodGet, "/books", book.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/books", book.HandleCreate(cfg.DB), admin)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.DB), authen)
	a.Handle(http.MethodPut, "/cart/items", cart.HandleUpsertItem(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart/items/{item_type}/{item_id}", cart.HandleDeleteItem(cfg.DB), authen)

	a.Handle(http.MethodPost, "/coupons/validate", coupon.HandleValidate(cfg.DB), authen, guess)
	a.Handle(http.MethodGet, "/coupons", coupon.HandleList(cfg.DB), admin)
	a.Handle(http.MethodPost, "/coupons", coupon.HandleCreate(cfg.DB), admin)

	a.Handle(http.MethodPost, "/activations/redeem", activation.HandleRedeem(cfg.DB), authen, guess)

	a.Handle(http.MethodPost, "/orders/gateway", order.HandleGatewayCheckout(cfg.DB, cfg.GatewayCfg), authen)
	a.Handle(http.MethodPost, "/orders/paypal", order.HandlePaypalCheckout(cfg.DB, cfg.Paypal), authen)
	a.Handle(http.MethodPost, "/orders/paypal/{id}/capture", order.HandlePaypalCapture(cfg.DB, cfg.Paypal, cfg.Log), authen)
	a.Handle(http.MethodPost, "/orders/stripe", order.HandleStripeCheckout(cfg.DB, cfg.Stripe, cfg.StripeCfg), authen)
	a.Handle(http.MethodPost, "/orders/stripe/capture", order.HandleStripeCapture(cfg.DB, cfg.StripeCfg, cfg.Log))
	a.Handle(http.MethodPost, "/orders/cod", order.HandleCODCheckout(cfg.DB), authen)
	a.Handle(http.MethodPost, "/orders/{id}/approve", order.HandleApprove(cfg.DB, cfg.Log), admin)
	a.Handle(http.MethodPost, "/orders/{id}/cancel", order.HandleCancel(cfg.DB), authen)
	a.Handle(http.MethodPut, "/orders/{id}/status", order.HandleAdvance(cfg.DB, cfg.Background, cfg.Mailer), admin)
	a.Handle(http.MethodGet, "/orders/{id}", order.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodGet, "/orders", order.HandleList(cfg.DB), authen)

	a.Handle(http.MethodGet, "/payments/callback", order.HandleGatewayCallback(cfg.DB, cfg.GatewayCfg, cfg.Log))

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
