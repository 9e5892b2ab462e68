package payment

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/edushop/edushop/config"
	"github.com/google/go-cmp/cmp"
)

const secret = "test-secret"

func TestSignVerify(t *testing.T) {
	v := url.Values{}
	v.Set("code", "ED4F7K2M9QX1LB")
	v.Set("amount", "450000")
	v.Set("status", StatusSuccess)
	v.Set("txn", "TXN-001")

	v.Set(SigParam, Sign(secret, v))

	if err := Verify(secret, v); err != nil {
		t.Fatalf("Verify() on freshly signed params: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	base := url.Values{}
	base.Set("code", "ED4F7K2M9QX1LB")
	base.Set("amount", "450000")
	base.Set("status", StatusFailed)
	base.Set(SigParam, Sign(secret, base))

	tests := []struct {
		name   string
		mutate func(url.Values)
	}{
		{"changed value", func(v url.Values) { v.Set("status", StatusSuccess) }},
		{"added param", func(v url.Values) { v.Set("extra", "1") }},
		{"removed param", func(v url.Values) { v.Del("amount") }},
		{"wrong secret", func(v url.Values) { v.Set(SigParam, Sign("other-secret", base)) }},
		{"missing signature", func(v url.Values) { v.Del(SigParam) }},
		{"garbage signature", func(v url.Values) { v.Set(SigParam, "deadbeef") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := url.Values{}
			for k := range base {
				v.Set(k, base.Get(k))
			}
			tt.mutate(v)

			if err := Verify(secret, v); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("Verify() error = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	v := url.Values{}
	v.Set("b", "two words")
	v.Set("a", "1")
	v.Set("c", "x&y=z")
	v.Set(SigParam, "excluded")

	want := "a=1&b=two+words&c=x%26y%3Dz"
	if got := canonical(v); got != want {
		t.Errorf("canonical() = %q, want %q", got, want)
	}
}

func TestBuildPayURL(t *testing.T) {
	cfg := config.Gateway{
		Endpoint:  "https://sandbox.gateway.local/pay",
		ReturnURL: "http://localhost:3000/checkout/return",
		Secret:    secret,
	}

	raw, err := BuildPayURL(cfg, "EDABCDEF123456", 125000, "10.0.0.7")
	if err != nil {
		t.Fatalf("BuildPayURL(): %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing pay url: %v", err)
	}
	if !strings.HasPrefix(raw, cfg.Endpoint+"?") {
		t.Errorf("pay url %q does not target the configured endpoint", raw)
	}

	q := u.Query()
	if got := q.Get("code"); got != "EDABCDEF123456" {
		t.Errorf("code = %q", got)
	}
	if got := q.Get("amount"); got != "125000" {
		t.Errorf("amount = %q", got)
	}
	if got := q.Get("return"); got != cfg.ReturnURL {
		t.Errorf("return = %q", got)
	}
	if got := q.Get("client_ip"); got != "10.0.0.7" {
		t.Errorf("client_ip = %q", got)
	}

	// The outbound query must verify against the same secret.
	if err := Verify(cfg.Secret, q); err != nil {
		t.Errorf("Verify() on outbound query: %v", err)
	}
}

func TestVerifyCallback(t *testing.T) {
	cfg := config.Gateway{Secret: secret}

	v := url.Values{}
	v.Set("code", "EDABCDEF123456")
	v.Set("amount", "125000")
	v.Set("txn", "TXN-42")
	v.Set("status", StatusSuccess)
	v.Set(SigParam, Sign(secret, v))

	got, err := VerifyCallback(cfg, v)
	if err != nil {
		t.Fatalf("VerifyCallback(): %v", err)
	}

	want := Result{
		OrderCode:     "EDABCDEF123456",
		TransactionID: "TXN-42",
		Status:        StatusSuccess,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong result. Diff: \n%s", diff)
	}
}

func TestVerifyCallbackRejectsUnsigned(t *testing.T) {
	cfg := config.Gateway{Secret: secret}

	v := url.Values{}
	v.Set("code", "EDABCDEF123456")
	v.Set("status", StatusSuccess)

	if _, err := VerifyCallback(cfg, v); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("VerifyCallback() error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyCallbackRequiresOrderCode(t *testing.T) {
	cfg := config.Gateway{Secret: secret}

	v := url.Values{}
	v.Set("status", StatusSuccess)
	v.Set(SigParam, Sign(secret, v))

	if _, err := VerifyCallback(cfg, v); err == nil {
		t.Fatal("VerifyCallback() accepted a callback without an order code")
	}
}
