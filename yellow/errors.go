package yellow

import (
	"errors"
	"fmt"
)

var ErrMissingInvoiceID = errors.New("invoice id is required")

// RequestError means the request never produced an HTTP response the client
// could use: DNS, connection, TLS, timeout or a cancelled context. The
// underlying cause is available through errors.Unwrap.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("yellow: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// APIError means the server answered with a non-2xx status. Message holds the
// raw response body, which may be plain text or a JSON map of field errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d:%s", e.StatusCode, e.Message)
}
