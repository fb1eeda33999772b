// Package yellow is a client for the Yellow invoicing API.
//
// Every request is authenticated with three headers: API-Key carries the
// public key, API-Nonce a millisecond timestamp and API-Sign the lowercase hex
// HMAC-SHA256 of nonce+url+body keyed by the API secret. The secret itself is
// never sent. Inbound payment notifications (IPNs) are signed the same way and
// can be checked with VerifyIPN.
package yellow
