package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentHash is the hex SHA-256 of plaintext. It is used for per-user
// deduplication and is never keyed.
func ContentHash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// RecoveryCodeCount is how many one-time codes an EndToEnd account gets.
const RecoveryCodeCount = 10

// GenerateRecoveryCodes returns n codes shaped XXXX-XXXX-XXXX-XXXX (upper hex).
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	raw := make([]byte, 8)
	for range n {
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("recovery code generation: %w", err)
		}
		h := strings.ToUpper(hex.EncodeToString(raw))
		codes = append(codes, h[0:4]+"-"+h[4:8]+"-"+h[8:12]+"-"+h[12:16])
	}
	return codes, nil
}

// HashRecoveryCode is the form stored server-side. Input is normalized to
// upper case so codes typed in lower case still match.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}
