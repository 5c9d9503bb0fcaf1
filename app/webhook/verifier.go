package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Tap-Signature"

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

// Verify reports whether signature is the hex HMAC-SHA256 of body under the
// configured secret. A missing signature or an unconfigured secret never verifies.
func (v *Verifier) Verify(body []byte, signature string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	expected := hex.EncodeToString(v.digest(body))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (v *Verifier) digest(body []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

// Sign returns the signature a gateway would send for body under secret.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(NewVerifier(secret).digest(body))
}
