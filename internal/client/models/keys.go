package models

import "github.com/dmitrijs2005/journalkeeper/internal/cryptox"

// KeyMaterial is what the key store persists for the encryption service.
// Every secret in it is wrapped by a key derived from the user's password.
type KeyMaterial struct {
	Tier Tier              `json:"tier"`
	KDF  cryptox.KDFParams `json:"kdf"`
	Salt []byte            `json:"salt"`

	// WrappedKey is a serialized envelope: the X25519 private key for
	// TierEndToEnd, the master key for TierUserControlled.
	WrappedKey string `json:"wrapped_key"`

	// PublicKey is set for TierEndToEnd only.
	PublicKey []byte `json:"public_key,omitempty"`
	// RecoveryHashes are the hashed one-time recovery codes (TierEndToEnd).
	RecoveryHashes []string `json:"recovery_hashes,omitempty"`
}

// PublicMaterial is the part of KeyMaterial that may be sent to the server.
type PublicMaterial struct {
	Tier           Tier              `json:"tier"`
	PublicKey      []byte            `json:"public_key,omitempty"`
	RecoveryHashes []string          `json:"recovery_hashes,omitempty"`
	WrappedKey     string            `json:"wrapped_key,omitempty"`
	Salt           []byte            `json:"salt,omitempty"`
	KDF            cryptox.KDFParams `json:"kdf"`
}
