package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretBytes is the smallest secret accepted at startup.
	MinSecretBytes = 16

	// PurposePasetoLocal labels the HKDF expansion for PASETO v4.local keys.
	PurposePasetoLocal = "excuses/session/paseto-v4-local"

	fingerprintLabel = "excuses/session/fingerprint"
)

// CheckSecret trims the secret and enforces a minimum byte length.
// If the secret is blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func CheckSecret(secret string, minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(secret)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}

// DeriveKey expands secret into n bytes of key material bound to purpose (HKDF-SHA256, no salt).
func DeriveKey(secret []byte, purpose string, n int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	if n <= 0 || n > 255*sha256.Size {
		return nil, ErrKeySize
	}

	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	key := make([]byte, n)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Fingerprint returns a short, log-safe identifier for the secret.
// Operators can compare fingerprints across instances without seeing the secret.
func Fingerprint(secret []byte) string {
	if len(secret) == 0 {
		return ""
	}
	return HashHMACSHA256Hex(fingerprintLabel, secret)[:12]
}
