package yellow

import "time"

// NonceAt returns the nonce for t: milliseconds since the Unix epoch.
//
// The server rejects a nonce that is not greater than the last one it accepted
// for the same key. Callers that fire requests in parallel under one key are
// responsible for keeping them ordered.
func NonceAt(t time.Time) int64 {
	return t.UnixMilli()
}
