package metadata

import (
	"context"
)

// Well-known keys of the local metadata table.
const (
	KeySyncCheckpoint = "sync_checkpoint"
	KeyKeyMaterial    = "key_material"
	KeyUsername       = "username"
	KeyOwnerID        = "owner_id"
	KeyAuthSalt       = "auth_salt"
	KeyVerifier       = "verifier"
	KeyAuthKDF        = "auth_kdf"
	KeyDeviceID       = "device_id"
)

// DeletedEntryKey maps the local id of a purged entry to its server id so the
// entry can still be restored after its delete reached the server.
func DeletedEntryKey(localID string) string {
	return "deleted_entry:" + localID
}

// Repository is a small key/value store kept next to the journal tables.
// Get returns common.ErrorNotFound for absent keys.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMany(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error

	// Int64 reads a counter such as the sync checkpoint; absent keys read as 0.
	Int64(ctx context.Context, key string) (int64, error)
	SetInt64(ctx context.Context, key string, v int64) error
}
