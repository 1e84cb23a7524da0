// Package models defines the sync server's persisted records.
package models

import (
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
)

// User is an account. Salt, Verifier and KDF let a client re-derive its
// login key; Material is the tier-specific key material without recovery
// hashes, which live in their own table.
type User struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	KDF       cryptox.KDFParams
	Tier      string
	Material  api.KeyMaterial
	CreatedAt time.Time
}
