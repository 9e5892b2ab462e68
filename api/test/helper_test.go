package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/edushop/edushop/core/activation"
	"github.com/edushop/edushop/core/book"
	"github.com/edushop/edushop/core/cart"
	"github.com/edushop/edushop/core/coupon"
	"github.com/edushop/edushop/core/course"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// postJSON runs a request with the env's cookie-holding client and decodes
// the response body into out when out is non-nil.
func (e *TestEnv) postJSON(method string, path string, in any, out any, wantStatus int) error {
	body := &bytes.Buffer{}
	if in != nil {
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	}

	r, err := http.NewRequest(method, e.URL+path, body)
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")

	w, err := e.Client().Do(r)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != wantStatus {
		return fmt.Errorf("%s %s: status code %s, want %d", method, path, w.Status, wantStatus)
	}

	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}

	return nil
}

type courseTest struct {
	*TestEnv
}

var courseSeq int

func (ct *courseTest) createCourseOK(t *testing.T) course.Course {
	if err := Login(ct.TestEnv, ct.AdminEmail, ct.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ct.TestEnv)

	courseSeq++
	in := course.CourseNew{
		Name:  fmt.Sprintf("Course %d", courseSeq),
		Price: 100000 + courseSeq*1000,
	}

	var c course.Course
	if err := ct.postJSON(http.MethodPost, "/courses", in, &c, http.StatusCreated); err != nil {
		t.Fatalf("creating course: %v", err)
	}
	return c
}

func (ct *courseTest) listCoursesOwnedOK(t *testing.T, want []course.Course) {
	if err := Login(ct.TestEnv, ct.UserEmail, ct.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(ct.TestEnv)

	var got []course.Course
	if err := ct.postJSON(http.MethodGet, "/courses/owned", nil, &got, http.StatusOK); err != nil {
		t.Fatalf("listing owned courses: %v", err)
	}

	wantIDs := make([]string, 0, len(want))
	for _, c := range want {
		wantIDs = append(wantIDs, c.ID)
	}
	gotIDs := make([]string, 0, len(got))
	for _, c := range got {
		gotIDs = append(gotIDs, c.ID)
	}
	sort.Strings(wantIDs)
	sort.Strings(gotIDs)

	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Fatalf("wrong owned courses. Diff: \n%s", diff)
	}
}

type bookTest struct {
	*TestEnv
}

var bookSeq int

func (bt *bookTest) createBookOK(t *testing.T) book.Book {
	if err := Login(bt.TestEnv, bt.AdminEmail, bt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(bt.TestEnv)

	bookSeq++
	in := book.BookNew{
		Title:  fmt.Sprintf("Book %d", bookSeq),
		Author: "Test Author",
		Price:  50000 + bookSeq*1000,
	}

	var b book.Book
	if err := bt.postJSON(http.MethodPost, "/books", in, &b, http.StatusCreated); err != nil {
		t.Fatalf("creating book: %v", err)
	}
	return b
}

func (bt *bookTest) mintCodesOK(t *testing.T, bookID string, count int, typ activation.Type, maxActivations int) []activation.Code {
	if err := Login(bt.TestEnv, bt.AdminEmail, bt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(bt.TestEnv)

	in := map[string]any{
		"count":          count,
		"type":           typ,
		"maxActivations": maxActivations,
	}

	var codes []activation.Code
	if err := bt.postJSON(http.MethodPost, "/books/"+bookID+"/codes", in, &codes, http.StatusCreated); err != nil {
		t.Fatalf("minting codes: %v", err)
	}
	if len(codes) != count {
		t.Fatalf("minted %d codes, want %d", len(codes), count)
	}
	return codes
}

func (bt *bookTest) listBooksOwnedOK(t *testing.T, wantIDs []string) {
	if err := Login(bt.TestEnv, bt.UserEmail, bt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(bt.TestEnv)

	var got []book.Book
	if err := bt.postJSON(http.MethodGet, "/books/owned", nil, &got, http.StatusOK); err != nil {
		t.Fatalf("listing owned books: %v", err)
	}

	if len(got) != len(wantIDs) {
		t.Fatalf("own %d books, want %d", len(got), len(wantIDs))
	}

	ids := make(map[string]bool, len(wantIDs))
	for _, id := range wantIDs {
		ids[id] = true
	}
	for _, b := range got {
		if !ids[b.ID] {
			t.Fatalf("unexpected owned book %s", b.ID)
		}
	}
}

type cartTest struct {
	*TestEnv
}

func (rt *cartTest) addItemOK(t *testing.T, itemType cart.ItemType, itemID string, quantity int) {
	if err := Login(rt.TestEnv, rt.UserEmail, rt.UserPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(rt.TestEnv)

	in := cart.ItemNew{
		ItemType: itemType,
		ItemID:   itemID,
		Quantity: quantity,
	}

	if err := rt.postJSON(http.MethodPut, "/cart/items", in, nil, http.StatusOK); err != nil {
		t.Fatalf("adding cart item: %v", err)
	}
}

type couponTest struct {
	*TestEnv
}

func (pt *couponTest) createCouponOK(t *testing.T, in coupon.CouponNew) coupon.Coupon {
	if err := Login(pt.TestEnv, pt.AdminEmail, pt.AdminPass); err != nil {
		t.Fatal(err)
	}
	defer Logout(pt.TestEnv)

	var c coupon.Coupon
	if err := pt.postJSON(http.MethodPost, "/coupons", in, &c, http.StatusCreated); err != nil {
		t.Fatalf("creating coupon: %v", err)
	}
	return c
}

// percentageCoupon is the shape most tests want: active now, no minimum.
func percentageCoupon(code string, value int, maxDiscount int, usageLimit int) coupon.CouponNew {
	now := time.Now().UTC()
	return coupon.CouponNew{
		Code:         code,
		DiscountType: coupon.Percentage,
		Value:        decimal.NewFromInt(int64(value)),
		MaxDiscount:  maxDiscount,
		UsageLimit:   usageLimit,
		ValidFrom:    now.Add(-time.Hour),
		ValidUntil:   now.Add(24 * time.Hour),
	}
}
