package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifiers as they appear in envelopes.
const (
	AlgChaCha20Poly1305 = "chacha20-poly1305"
	AlgAES256GCM        = "aes-256-gcm"

	// DefaultAlgorithm is used for everything sealed by this build.
	DefaultAlgorithm = AlgChaCha20Poly1305
)

// NonceSize is 96 bits for every registered algorithm.
const NonceSize = 12

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

var algorithms = map[string]func(key []byte) (cipher.AEAD, error){
	AlgChaCha20Poly1305: chacha20poly1305.New,
	AlgAES256GCM: func(key []byte) (cipher.AEAD, error) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	},
}

// SupportedAlgorithm reports whether alg can be opened by this build.
func SupportedAlgorithm(alg string) bool {
	_, ok := algorithms[alg]
	return ok
}

// NewAEAD returns the AEAD registered under alg, keyed with key.
func NewAEAD(alg string, key []byte) (cipher.AEAD, error) {
	ctor, ok := algorithms[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	return ctor(key)
}

// Seal encrypts plaintext with a fresh random nonce.
func Seal(alg string, key, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce generation: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// Open decrypts and authenticates ciphertext. Any authentication failure is
// reported as common.ErrDecryptionFailed and no plaintext is returned.
func Open(alg string, key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := NewAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes", common.ErrDecryptionFailed, len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}
