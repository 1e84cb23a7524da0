// Package encryption implements the tiered encryption service. One Service
// handle is created per authenticated session and passed to whoever needs to
// seal or open journal content; ClearKeys ends its usefulness until the next
// Initialize.
//
// Both tiers expose the same surface and differ only in where the content key
// comes from:
//
//   - TierEndToEnd: an X25519 private key is wrapped with a password-derived
//     key and kept on the device. The content key is HKDF-SHA256 of the
//     private key, so importing the private key is enough to read old entries.
//   - TierUserControlled: a random master key is the content key. It is
//     wrapped with a password-derived key and the wrapped form may be uploaded.
//
// Changing the password rewraps only the small wrapped key.
package encryption
