package yellow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Invoice is the server's invoice record. Its shape is owned by the server and
// is not validated here; numbers are decoded as json.Number.
type Invoice map[string]any

// Field returns the value under key rendered as a string, or "" when the key
// is absent or null.
func (inv Invoice) Field(key string) string {
	switch v := inv[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ID returns the invoice id assigned by the server.
func (inv Invoice) ID() string {
	return inv.Field("id")
}

// Status returns the invoice status, e.g. "new" or "paid".
func (inv Invoice) Status() string {
	return inv.Field("status")
}

// handleResponse turns any 2xx into a decoded Invoice and everything else into
// an *APIError carrying the raw body.
func handleResponse(resp *http.Response) (Invoice, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestErr(resp, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	inv := Invoice{}
	if len(bytes.TrimSpace(body)) == 0 {
		return inv, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&inv); err != nil {
		return nil, requestErr(resp, fmt.Errorf("failed to decode response: %w", err))
	}
	return inv, nil
}

func requestErr(resp *http.Response, err error) *RequestError {
	re := &RequestError{Err: err}
	if resp.Request != nil {
		re.Method = resp.Request.Method
		if resp.Request.URL != nil {
			re.URL = resp.Request.URL.String()
		}
	}
	return re
}
