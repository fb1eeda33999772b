package yellow

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxIPNBodySize bounds how much of a notification body ParseIPN reads.
const MaxIPNBodySize = 1 << 20

var ErrMissingIPNHeaders = errors.New("missing API-Nonce or API-Sign header")

// VerifyIPN reports whether an inbound payment notification was signed by the
// holder of secret. hostURL is the callback URL registered on the invoice,
// exactly as it was sent to the API. The caller decides what to do with a
// false result; typically the webhook is rejected.
func VerifyIPN(secret, hostURL, nonce, signature, body string) bool {
	return VerifySignature(secret, hostURL, nonce, signature, body)
}

// IPN is an inbound notification as it came off the wire.
type IPN struct {
	Nonce     string
	Signature string
	Body      []byte
}

// ParseIPN reads the signing headers and raw body from a notification request.
// It does not verify anything.
func ParseIPN(r *http.Request) (*IPN, error) {
	nonce := r.Header.Get(HeaderNonce)
	signature := r.Header.Get(HeaderSign)
	if nonce == "" || signature == "" {
		return nil, ErrMissingIPNHeaders
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxIPNBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > MaxIPNBodySize {
		return nil, fmt.Errorf("notification body exceeds %d bytes", MaxIPNBodySize)
	}

	return &IPN{
		Nonce:     nonce,
		Signature: signature,
		Body:      body,
	}, nil
}

// Verify checks the notification against secret and the registered callback URL.
func (n *IPN) Verify(secret, hostURL string) bool {
	return VerifyIPN(secret, hostURL, n.Nonce, n.Signature, string(n.Body))
}
