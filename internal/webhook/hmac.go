package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

var errVerification = errors.New("webhook verification failed")

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	return signaturePrefix + hex.EncodeToString(computeMAC(body, secret))
}

// Verify checks a signature produced by Sign. Both "sha256=<hex>" and bare
// hex are accepted. Errors are deliberately generic.
func Verify(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}
	actual, err := parseSignature(signature)
	if err != nil {
		return errVerification
	}
	if subtle.ConstantTimeCompare(computeMAC(body, secret), actual) != 1 {
		return errVerification
	}
	return nil
}

func parseSignature(signature string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
}

func computeMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
