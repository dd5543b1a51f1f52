// Package webhook verifies, parses, and routes inbound provider events.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader is the request header carrying the provider's HMAC
// signature, formatted as "hmac-sha256-hex=<hex digest>".
const SignatureHeader = "X-Hmac-Signature"

const signaturePrefix = "hmac-sha256-hex="

// ErrBadSignature indicates the payload signature did not validate.
var ErrBadSignature = errors.New("webhook signature mismatch")

// VerifySignature checks the provider's HMAC-SHA256 signature over the raw
// request body against the shared webhook secret.
func VerifySignature(secret string, body []byte, header string) error {
	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrBadSignature
	}
	supplied, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(supplied, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}
