// Package paddle verifies and simulates Paddle billing webhooks.
//
// The signature header format is "ts={unix};h1={hex hmac}" where the hmac is
// HMAC-SHA256 over "{ts}:{raw body}". Verification must match this scheme
// bit-for-bit; anything else is rejected.
package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrMalformedHeader  = errors.New("malformed signature header")
	ErrBadSignature     = errors.New("signature mismatch")
)

// Sign computes the signature header value for a timestamp and raw body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(":"))
	mac.Write(body)
	return fmt.Sprintf("ts=%s;h1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature header against the raw request body.
func Verify(secret, header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	var ts, h1 string
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return ErrMalformedHeader
		}
		switch k {
		case "ts":
			ts = v
		case "h1":
			h1 = v
		}
	}
	if ts == "" || h1 == "" {
		return ErrMalformedHeader
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(h1), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}
