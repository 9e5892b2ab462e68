package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/edushop/edushop/core/activation"
	"github.com/edushop/edushop/core/cart"
	"github.com/edushop/edushop/core/coupon"
	"github.com/edushop/edushop/core/course"
	"github.com/edushop/edushop/core/order"
	"github.com/edushop/edushop/core/payment"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type orderTest struct {
	*TestEnv
}

type checkoutOut struct {
	Order  order.Order `json:"order"`
	PayURL string      `json:"payUrl"`
}

type orderShow struct {
	order.Order
	Items []order.Item      `json:"items"`
	Codes []activation.Code `json:"activationCodes"`
}

// callback replays a gateway notification against the webhook endpoint,
// signing params with the given secret, and returns the acknowledgment.
func (ot *orderTest) callback(t *testing.T, secret string, params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		v.Set(k, val)
	}
	v.Set(payment.SigParam, payment.Sign(secret, v))

	w, err := http.Get(ot.URL + "/payments/callback?" + v.Encode())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("gateway callback: status code %s", w.Status)
	}

	var ack struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("decoding callback ack: %v", err)
	}
	return ack.Code
}

func (ot *orderTest) checkoutOK(t *testing.T, method string, couponCode string) checkoutOut {
	if err := Login(ot.TestEnv, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.TestEnv)

	in := map[string]string{}
	if couponCode != "" {
		in["couponCode"] = couponCode
	}

	var out checkoutOut
	if err := ot.postJSON(http.MethodPost, "/orders/"+method, in, &out, http.StatusCreated); err != nil {
		t.Fatalf("checking out via %s: %v", method, err)
	}
	return out
}

func (ot *orderTest) codCheckoutOK(t *testing.T) order.Order {
	if err := Login(ot.TestEnv, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.TestEnv)

	var ord order.Order
	if err := ot.postJSON(http.MethodPost, "/orders/cod", map[string]string{}, &ord, http.StatusCreated); err != nil {
		t.Fatalf("checking out via cod: %v", err)
	}
	return ord
}

func (ot *orderTest) showOrderOK(t *testing.T, orderID string) orderShow {
	if err := Login(ot.TestEnv, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.TestEnv)

	var out orderShow
	if err := ot.postJSON(http.MethodGet, "/orders/"+orderID, nil, &out, http.StatusOK); err != nil {
		t.Fatalf("showing order: %v", err)
	}
	return out
}

func TestGatewaySettlement(t *testing.T) {
	env, err := NewTestEnv(t, "gateway_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	ot := &orderTest{env}
	ct := &courseTest{env}
	bt := &bookTest{env}
	rt := &cartTest{env}
	pt := &couponTest{env}

	c1 := ct.createCourseOK(t)
	b1 := bt.createBookOK(t)
	bt.mintCodesOK(t, b1.ID, 5, activation.TypeSingle, 0)

	cpn := pt.createCouponOK(t, percentageCoupon("SAVE20", 20, 0, 1))

	rt.addItemOK(t, cart.TypeCourse, c1.ID, 1)
	rt.addItemOK(t, cart.TypeBook, b1.ID, 2)

	subtotal := c1.Price + 2*b1.Price
	discount := subtotal * 20 / 100

	// The preview endpoint evaluates against the live cart without
	// touching the coupon's usage budget.
	if err := Login(env, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	var preview struct {
		Subtotal int `json:"subtotal"`
		Discount int `json:"discount"`
		Final    int `json:"finalAmount"`
	}
	in := map[string]string{"code": "SAVE20"}
	if err := env.postJSON(http.MethodPost, "/coupons/validate", in, &preview, http.StatusOK); err != nil {
		t.Fatalf("validating coupon: %v", err)
	}
	if preview.Subtotal != subtotal || preview.Discount != discount || preview.Final != subtotal-discount {
		t.Fatalf("preview = %+v, want subtotal %d discount %d", preview, subtotal, discount)
	}

	// A catalog price edit after the item went into the cart must show up
	// in the preview, since checkout reprices from the catalog too.
	bumped := c1.Price + 10000
	if _, err := env.DB.Exec("UPDATE courses SET price = $1 WHERE course_id = $2", bumped, c1.ID); err != nil {
		t.Fatalf("updating course price: %v", err)
	}
	var repriced struct {
		Subtotal int `json:"subtotal"`
		Discount int `json:"discount"`
		Final    int `json:"finalAmount"`
	}
	if err := env.postJSON(http.MethodPost, "/coupons/validate", in, &repriced, http.StatusOK); err != nil {
		t.Fatalf("validating coupon after price edit: %v", err)
	}
	wantSub := bumped + 2*b1.Price
	wantDisc := wantSub * 20 / 100
	if repriced.Subtotal != wantSub || repriced.Discount != wantDisc || repriced.Final != wantSub-wantDisc {
		t.Fatalf("repriced preview = %+v, want subtotal %d discount %d", repriced, wantSub, wantDisc)
	}
	if _, err := env.DB.Exec("UPDATE courses SET price = $1 WHERE course_id = $2", c1.Price, c1.ID); err != nil {
		t.Fatalf("restoring course price: %v", err)
	}
	Logout(env)

	cur0, err := coupon.Fetch(context.Background(), env.DB, cpn.ID)
	if err != nil {
		t.Fatalf("fetching coupon: %v", err)
	}
	if cur0.UsedCount != 0 {
		t.Fatalf("preview consumed the coupon: used count %d", cur0.UsedCount)
	}

	out := ot.checkoutOK(t, "gateway", "SAVE20")
	ord := out.Order

	if ord.Status != order.Pending {
		t.Fatalf("fresh order status = %s, want pending", ord.Status)
	}
	if ord.TotalAmount != subtotal {
		t.Errorf("order total = %d, want %d", ord.TotalAmount, subtotal)
	}
	if ord.DiscountAmount != discount {
		t.Errorf("order discount = %d, want %d", ord.DiscountAmount, discount)
	}
	if ord.FinalAmount != subtotal-discount {
		t.Errorf("order final amount = %d, want %d", ord.FinalAmount, subtotal-discount)
	}

	// The redirect must verify against the shared secret.
	pu, err := url.Parse(out.PayURL)
	if err != nil {
		t.Fatalf("parsing pay url: %v", err)
	}
	if err := payment.Verify(env.GatewaySecret, pu.Query()); err != nil {
		t.Fatalf("pay url does not verify: %v", err)
	}
	if got := pu.Query().Get("amount"); got != strconv.Itoa(ord.FinalAmount) {
		t.Errorf("pay url amount = %s, want %d", got, ord.FinalAmount)
	}

	// A tampered callback is rejected wholesale and settles nothing.
	forged := map[string]string{
		"code":   ord.Code,
		"amount": strconv.Itoa(ord.FinalAmount),
		"txn":    "TXN-FORGED",
		"status": payment.StatusSuccess,
	}
	if got := ot.callback(t, "wrong-secret", forged); got != "97" {
		t.Fatalf("forged callback ack = %s, want 97", got)
	}
	if st := ot.showOrderOK(t, ord.ID); st.Status != order.Pending {
		t.Fatalf("order status after forged callback = %s, want pending", st.Status)
	}

	// A verified callback for a code that matches nothing is acknowledged
	// as unknown; nothing is created for it.
	unknown := map[string]string{
		"code":   "EDNOSUCHORDER1",
		"txn":    "TXN-1",
		"status": payment.StatusSuccess,
	}
	if got := ot.callback(t, env.GatewaySecret, unknown); got != "01" {
		t.Fatalf("unknown-order callback ack = %s, want 01", got)
	}

	// The genuine success callback settles the order and grants
	// everything in one shot.
	success := map[string]string{
		"code":   ord.Code,
		"amount": strconv.Itoa(ord.FinalAmount),
		"txn":    "TXN-1",
		"status": payment.StatusSuccess,
	}
	if got := ot.callback(t, env.GatewaySecret, success); got != "00" {
		t.Fatalf("success callback ack = %s, want 00", got)
	}

	st := ot.showOrderOK(t, ord.ID)
	if st.Status != order.Paid {
		t.Fatalf("settled order status = %s, want paid", st.Status)
	}
	if st.TransactionID != "TXN-1" {
		t.Errorf("transaction id = %s, want TXN-1", st.TransactionID)
	}
	if len(st.Codes) != 2 {
		t.Fatalf("settled order carries %d activation codes, want 2", len(st.Codes))
	}

	ct.listCoursesOwnedOK(t, []course.Course{c1})

	cur, err := coupon.Fetch(context.Background(), env.DB, cpn.ID)
	if err != nil {
		t.Fatalf("fetching coupon: %v", err)
	}
	if cur.UsedCount != 1 {
		t.Fatalf("coupon used count = %d, want 1", cur.UsedCount)
	}

	// Redelivery of the same callback is an acknowledged no-op: no second
	// grant, no second coupon use.
	if got := ot.callback(t, env.GatewaySecret, success); got != "00" {
		t.Fatalf("replayed callback ack = %s, want 00", got)
	}

	st = ot.showOrderOK(t, ord.ID)
	if len(st.Codes) != 2 {
		t.Fatalf("after replay order carries %d activation codes, want 2", len(st.Codes))
	}
	cur, err = coupon.Fetch(context.Background(), env.DB, cpn.ID)
	if err != nil {
		t.Fatalf("fetching coupon: %v", err)
	}
	if cur.UsedCount != 1 {
		t.Fatalf("coupon used count after replay = %d, want 1", cur.UsedCount)
	}
	ct.listCoursesOwnedOK(t, []course.Course{c1})

	// A failure callback cancels a fresh pending order; a success arriving
	// afterwards must not resurrect it.
	c2 := ct.createCourseOK(t)
	rt.addItemOK(t, cart.TypeCourse, c2.ID, 1)

	out2 := ot.checkoutOK(t, "gateway", "")
	failed := map[string]string{
		"code":   out2.Order.Code,
		"txn":    "TXN-2",
		"status": payment.StatusFailed,
	}
	if got := ot.callback(t, env.GatewaySecret, failed); got != "00" {
		t.Fatalf("failure callback ack = %s, want 00", got)
	}
	if st := ot.showOrderOK(t, out2.Order.ID); st.Status != order.Cancelled {
		t.Fatalf("order status after failure callback = %s, want cancelled", st.Status)
	}

	late := map[string]string{
		"code":   out2.Order.Code,
		"txn":    "TXN-2",
		"status": payment.StatusSuccess,
	}
	if got := ot.callback(t, env.GatewaySecret, late); got != "00" {
		t.Fatalf("late success callback ack = %s, want 00", got)
	}
	if st := ot.showOrderOK(t, out2.Order.ID); st.Status != order.Cancelled {
		t.Fatalf("order resurrected by late callback: status = %s", st.Status)
	}
	ct.listCoursesOwnedOK(t, []course.Course{c1})
}

func TestCOD(t *testing.T) {
	env, err := NewTestEnv(t, "cod_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	ot := &orderTest{env}
	ct := &courseTest{env}
	rt := &cartTest{env}

	c1 := ct.createCourseOK(t)

	// A pending COD order can be cancelled by its owner.
	rt.addItemOK(t, cart.TypeCourse, c1.ID, 1)
	ord := ot.codCheckoutOK(t)

	if err := Login(env, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	if err := env.postJSON(http.MethodPost, "/orders/"+ord.ID+"/cancel", nil, nil, http.StatusNoContent); err != nil {
		t.Fatalf("cancelling order: %v", err)
	}
	Logout(env)

	if st := ot.showOrderOK(t, ord.ID); st.Status != order.Cancelled {
		t.Fatalf("order status after cancel = %s, want cancelled", st.Status)
	}
	ct.listCoursesOwnedOK(t, []course.Course{})

	// Approval settles a fresh COD order through the same guarded path as
	// the gateway; the order then moves along its fulfillment legs.
	rt.addItemOK(t, cart.TypeCourse, c1.ID, 1)
	ord = ot.codCheckoutOK(t)

	if err := Login(env, env.AdminEmail, env.AdminPass); err != nil {
		t.Fatal(err)
	}
	if err := env.postJSON(http.MethodPost, "/orders/"+ord.ID+"/approve", nil, nil, http.StatusNoContent); err != nil {
		t.Fatalf("approving order: %v", err)
	}

	var adv order.Order
	in := map[string]string{"status": "processing"}
	if err := env.postJSON(http.MethodPut, "/orders/"+ord.ID+"/status", in, &adv, http.StatusOK); err != nil {
		t.Fatalf("advancing order to processing: %v", err)
	}
	if adv.Status != order.Processing {
		t.Fatalf("advanced order status = %s, want processing", adv.Status)
	}

	// Skipping a leg is refused.
	var rej struct {
		Reason string `json:"reason"`
	}
	in = map[string]string{"status": "processing"}
	if err := env.postJSON(http.MethodPut, "/orders/"+ord.ID+"/status", in, &rej, http.StatusUnprocessableEntity); err != nil {
		t.Fatalf("re-advancing order: %v", err)
	}
	if rej.Reason != "INVALID_TRANSITION" {
		t.Fatalf("re-advance reason = %s, want INVALID_TRANSITION", rej.Reason)
	}

	in = map[string]string{"status": "completed"}
	if err := env.postJSON(http.MethodPut, "/orders/"+ord.ID+"/status", in, &adv, http.StatusOK); err != nil {
		t.Fatalf("completing order: %v", err)
	}
	if adv.Status != order.Completed {
		t.Fatalf("completed order status = %s", adv.Status)
	}
	Logout(env)

	// A settled order can no longer be cancelled.
	if err := Login(env, env.UserEmail, env.UserPass); err != nil {
		t.Fatal(err)
	}
	var rej2 struct {
		Reason string `json:"reason"`
	}
	if err := env.postJSON(http.MethodPost, "/orders/"+ord.ID+"/cancel", nil, &rej2, http.StatusUnprocessableEntity); err != nil {
		t.Fatalf("cancelling settled order: %v", err)
	}
	if rej2.Reason != "NOT_CANCELLABLE" {
		t.Fatalf("cancel reason = %s, want NOT_CANCELLABLE", rej2.Reason)
	}
	Logout(env)

	ct.listCoursesOwnedOK(t, []course.Course{c1})
}

func TestProviders(t *testing.T) {
	env, err := NewTestEnv(t, "providers_test")
	if err != nil {
		t.Fatalf("initializing test env: %v", err)
	}

	ot := &orderTest{env}
	ct := &courseTest{env}
	rt := &cartTest{env}

	c1 := ct.createCourseOK(t)
	c2 := ct.createCourseOK(t)
	c3 := ct.createCourseOK(t)
	c4 := ct.createCourseOK(t)

	ct.listCoursesOwnedOK(t, []course.Course{})

	rt.addItemOK(t, cart.TypeCourse, c1.ID, 1)
	rt.addItemOK(t, cart.TypeCourse, c2.ID, 1)

	env.Paypal.expectedTotal = c1.Price + c2.Price
	env.Paypal.expectedItems = 2
	ot.testPaypal(t)

	ct.listCoursesOwnedOK(t, []course.Course{c1, c2})

	rt.addItemOK(t, cart.TypeCourse, c3.ID, 1)
	rt.addItemOK(t, cart.TypeCourse, c4.ID, 1)

	env.Stripe.expectedTotal = c3.Price + c4.Price
	env.Stripe.expectedItems = 2
	ot.testStripe(t)

	ct.listCoursesOwnedOK(t, []course.Course{c1, c2, c3, c4})
}

func (ot *orderTest) testPaypal(t *testing.T) {
	if err := Login(ot.TestEnv, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.TestEnv)

	r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/paypal", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't create paypal order: status code %s", w.Status)
	}

	var ord paypal.Order
	if err := json.NewDecoder(w.Body).Decode(&ord); err != nil {
		t.Fatalf("cannot unmarshal paypal order: %v", err)
	}

	r, err = http.NewRequest(http.MethodPost, ot.URL+"/orders/paypal/"+ord.ID+"/capture", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err = ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't capture paypal order: status code %s", w.Status)
	}
}

func (ot *orderTest) testStripe(t *testing.T) {
	if err := Login(ot.TestEnv, ot.UserEmail, ot.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ot.TestEnv)

	r, err := http.NewRequest(http.MethodPost, ot.URL+"/orders/stripe", nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("can't create stripe order: status code %s", w.Status)
	}

	urlBytes, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}

	var sessURL string
	if err := json.Unmarshal(urlBytes, &sessURL); err != nil {
		t.Fatal(err)
	}

	obj := map[string]any{
		"id":   path.Base(sessURL),
		"mode": stripe.CheckoutSessionModePayment,
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}

	evt := stripe.Event{
		APIVersion: "2022-11-15",
		Type:       "checkout.session.completed",
		Data: &stripe.EventData{
			Raw: json.RawMessage(raw),
		},
	}

	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   b,
		Secret:    ot.WebhookSecret,
		Timestamp: time.Now(),
	})

	r, err = http.NewRequest(http.MethodPost, ot.URL+"/orders/stripe/capture", bytes.NewBuffer(b))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Stripe-Signature", signed.Header)

	w, err = ot.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		t.Fatalf("can't trigger stripe webhook: status code %s", w.Status)
	}
}
