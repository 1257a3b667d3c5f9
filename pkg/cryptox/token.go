package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenSize128 is 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 is 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// recoveryAlphabet is Crockford base32 without the easily confused I, L, O, U.
const recoveryAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// GenerateToken returns size random bytes encoded as unpadded base64url.
func GenerateToken(size int) (string, error) {
	buf, err := randomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateHex returns size random bytes as lowercase hex. Hex output never
// contains '_' which makes it safe as a suffix in underscore-delimited values.
func GenerateHex(size int) (string, error) {
	buf, err := randomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// FingerprintToken returns the SHA-256 of token as base64url. Only
// fingerprints of invitation tokens and recovery codes are persisted.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateRecoveryCode returns a 50-bit code formatted as XXXXX-XXXXX.
func GenerateRecoveryCode() (string, error) {
	buf, err := randomBytes(10)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, v := range buf {
		if i == 5 {
			b.WriteByte('-')
		}
		b.WriteByte(recoveryAlphabet[int(v)%len(recoveryAlphabet)])
	}
	return b.String(), nil
}

// NormalizeRecoveryCode upper-cases the code and strips separators and
// whitespace so "abcde-12345" and "ABCDE 12345" fingerprint identically.
func NormalizeRecoveryCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FingerprintRecoveryCode normalises then fingerprints a recovery code.
func FingerprintRecoveryCode(code string) string {
	return FingerprintToken(NormalizeRecoveryCode(code))
}

func randomBytes(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("token size must be positive, got %d", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random token: %w", err)
	}
	return buf, nil
}
