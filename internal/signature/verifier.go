// Package signature verifies provider webhook signatures. Verification runs
// over the exact raw request bytes: re-serializing a parsed body would
// change whitespace and break the HMAC.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/nimblepay/webhook-service/internal/domain"
)

// hex-encoded SHA-256 digest length
const signatureHexLen = 64

type Verifier struct {
	secret       string
	minSecretLen int
}

func NewVerifier(secret string, minSecretLen int) *Verifier {
	return &Verifier{secret: secret, minSecretLen: minSecretLen}
}

// Verify checks sig (hex HMAC-SHA256 of body under the shared secret) in
// constant time. It fails closed: a missing or too-short secret rejects
// every request rather than accepting unsigned ones. Callers must not
// surface which check failed; all rejections are a generic 401.
func (v *Verifier) Verify(body []byte, sig string) error {
	if len(v.secret) < v.minSecretLen {
		return domain.ErrSecretMisconfigured
	}
	if len(body) == 0 {
		return domain.ErrSignatureInvalid
	}
	if len(sig) != signatureHexLen {
		return domain.ErrSignatureInvalid
	}
	received, err := hex.DecodeString(sig)
	if err != nil {
		return domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), received) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret. Used by the mock
// provider and tests; the service itself only verifies.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
