// Package weberr decorates errors with the HTTP response they should
// produce. Handlers return plain errors; the errors middleware unwraps the
// decoration. An undecorated error always surfaces as a 500.
package weberr

type Opt func(error) error

func Wrap(err error, opts ...Opt) error {
	for _, opt := range opts {
		err = opt(err)
	}
	return err
}

// WithResponse attaches the body and status the client should see instead
// of the generic 500.
func WithResponse(body interface{}, status int) Opt {
	return func(err error) error {
		return &responseError{error: err, body: body, status: status}
	}
}

// WithFields attaches structured context for the error log line only; it
// never reaches the client.
func WithFields(fields map[string]interface{}) Opt {
	return func(err error) error {
		return &fieldsError{error: err, fields: fields}
	}
}
