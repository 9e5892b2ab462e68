// Package payment translates between orders and the external payment
// providers. It holds no state besides configured secrets and performs no
// database access: signing happens before any row is touched, verification
// before any guarded transition runs.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// SigParam carries the request signature. It is excluded from the signed
// payload itself.
const SigParam = "sig"

var ErrInvalidSignature = errors.New("invalid gateway signature")

// canonical serializes params the way the gateway mandates: keys sorted
// bytewise, values percent-encoded, pairs joined by '&'. The signature is
// sensitive to byte-exact input, so this must not drift from the gateway's
// own encoding rules.
func canonical(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == SigParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v.Get(k)))
	}

	return b.String()
}

// Sign computes the hex HMAC-SHA256 of the canonical parameter string.
func Sign(secret string, v url.Values) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical(v)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature carried by v. Constant-time comparison; any
// mismatch means the payload cannot be trusted in any field.
func Verify(secret string, v url.Values) error {
	got := v.Get(SigParam)
	if got == "" {
		return ErrInvalidSignature
	}

	want := Sign(secret, v)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrInvalidSignature
	}

	return nil
}
