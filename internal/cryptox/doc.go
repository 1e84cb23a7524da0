// Package cryptox holds the cryptographic primitives shared by the client
// encryption service and the server: Argon2id key derivation, AEAD sealing
// over a small registry of algorithms, chunked streaming encryption for media,
// content hashing and recovery codes.
//
// Nothing in this package logs or persists secrets. Callers own the returned
// key slices and should release them with Wipe.
package cryptox
