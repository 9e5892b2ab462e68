package payment

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/edushop/edushop/config"
)

// Gateway statuses as reported in the callback.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result is the trusted output of a verified callback. Settlement keys off
// OrderCode only; raw payload fields never leave this package.
type Result struct {
	OrderCode     string
	TransactionID string
	Status        string
}

// BuildPayURL constructs the signed redirect to the gateway-hosted payment
// page for a pending order.
func BuildPayURL(cfg config.Gateway, orderCode string, amount int, clientIP string) (string, error) {
	v := url.Values{}
	v.Set("code", orderCode)
	v.Set("amount", strconv.Itoa(amount))
	v.Set("return", cfg.ReturnURL)
	if clientIP != "" {
		v.Set("client_ip", clientIP)
	}
	v.Set(SigParam, Sign(cfg.Secret, v))

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing gateway endpoint: %w", err)
	}
	u.RawQuery = v.Encode()

	return u.String(), nil
}

// VerifyCallback authenticates an inbound callback and extracts the fields
// settlement needs. On signature mismatch no field of the payload may be
// used.
func VerifyCallback(cfg config.Gateway, v url.Values) (Result, error) {
	if err := Verify(cfg.Secret, v); err != nil {
		return Result{}, err
	}

	res := Result{
		OrderCode:     v.Get("code"),
		TransactionID: v.Get("txn"),
		Status:        v.Get("status"),
	}

	if res.OrderCode == "" {
		return Result{}, fmt.Errorf("verified callback carries no order code")
	}

	return res, nil
}
