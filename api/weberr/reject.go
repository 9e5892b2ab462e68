package weberr

import "net/http"

// RejectionResponse is the body returned for expected business-rule
// rejections. Reason is a stable machine-readable code the UI translates
// into a localized message.
type RejectionResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Rejection wraps an expected business-rule outcome (expired coupon, used
// activation code, non-cancellable order). These are frequent conditions,
// not server faults, so they carry their own reason code and status.
func Rejection(err error, msg string, reason string, opts ...Opt) error {
	e := &RequestError{Err: err}
	opts = append(opts, WithResponse(
		&RejectionResponse{Error: msg, Reason: reason},
		http.StatusUnprocessableEntity,
	))

	return Wrap(e, opts...)
}
