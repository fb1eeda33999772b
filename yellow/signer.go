package yellow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// ComputeSignature returns the hex HMAC-SHA256 of nonce+url+body keyed by secret.
// body must be the exact bytes sent on the wire, or "" when there is none.
func ComputeSignature(url, body string, nonce int64, secret string) string {
	return SignMessage(url, body, strconv.FormatInt(nonce, 10), secret)
}

// SignMessage is ComputeSignature for a nonce that is already in its decimal
// form, as it arrives in an API-Nonce header.
func SignMessage(url, body, nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	mac.Write([]byte(url))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the one computed for
// (url, nonce, body) under secret. The comparison runs in constant time.
func VerifySignature(secret, url, nonce, signature, body string) bool {
	expected := SignMessage(url, body, nonce, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
