// Package api holds the JSON contract shared by the sync server and the
// client's HTTP transport. Envelopes travel as their serialized string form
// so a single unreadable entry never breaks decoding of a whole page.
package api

import (
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
)

const BasePath = "/api/v1"

// Route paths below BasePath.
const (
	PathRegister     = "/auth/register"
	PathSalt         = "/auth/salt"
	PathLogin        = "/auth/login"
	PathRefresh      = "/auth/refresh"
	PathKeys         = "/auth/keys"
	PathRecover      = "/auth/recover"
	PathEntries      = "/entries"
	PathSync         = "/sync"
	PathMedia        = "/media"
	PathPing         = "/ping"
	DefaultSyncLimit = 100
	MaxSyncLimit     = 500
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// KeyMaterial is the tier-specific public material kept by the server:
// the public key and recovery hashes for "e2e", the wrapped master key with
// its salt for "uce".
type KeyMaterial struct {
	Tier           string            `json:"tier"`
	PublicKey      []byte            `json:"public_key,omitempty"`
	RecoveryHashes []string          `json:"recovery_hashes,omitempty"`
	WrappedKey     string            `json:"wrapped_key,omitempty"`
	Salt           []byte            `json:"salt,omitempty"`
	KDF            cryptox.KDFParams `json:"kdf"`
}

type RegisterRequest struct {
	Username string            `json:"username"`
	Salt     []byte            `json:"salt"`
	Verifier []byte            `json:"verifier"`
	KDF      cryptox.KDFParams `json:"kdf"`
	Material KeyMaterial       `json:"material"`
}

// UpdateKeysRequest replaces the key material together with the login
// credentials after a password change. Tier cannot change.
type UpdateKeysRequest struct {
	Salt     []byte            `json:"salt"`
	Verifier []byte            `json:"verifier"`
	KDF      cryptox.KDFParams `json:"kdf"`
	Material KeyMaterial       `json:"material"`
}

type SaltRequest struct {
	Username string `json:"username"`
}

type SaltResponse struct {
	Salt []byte            `json:"salt"`
	KDF  cryptox.KDFParams `json:"kdf"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Verifier []byte `json:"verifier"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RecoverRequest redeems one recovery code. A code can be used once.
type RecoverRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// Entry is the wire form of a journal entry. ID is the server id; ClientID
// is the id the creating device chose and makes creates idempotent.
type Entry struct {
	ID          string     `json:"id,omitempty"`
	ClientID    string     `json:"client_id"`
	Title       string     `json:"title,omitempty"`
	Content     string     `json:"content"`
	ContentHash string     `json:"content_hash"`
	Tags        []string   `json:"tags"`
	MediaIDs    []string   `json:"media_ids"`
	Source      string     `json:"source"`
	ExternalID  string     `json:"external_id,omitempty"`
	Mood        string     `json:"mood,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	SyncedAt    int64      `json:"synced_at,omitempty"`
}

// ConflictResponse accompanies 409 on update: the stored entry is newer.
type ConflictResponse struct {
	Error string `json:"error"`
	Entry Entry  `json:"entry"`
}

type SyncRequest struct {
	Since   int64   `json:"since"`
	Limit   int     `json:"limit,omitempty"`
	Entries []Entry `json:"entries,omitempty"`
}

type SyncResponse struct {
	Entries    []Entry  `json:"entries"`
	DeletedIDs []string `json:"deleted_ids"`
	HasMore    bool     `json:"has_more"`
	Checkpoint int64    `json:"checkpoint"`
}

type MediaRegisterRequest struct {
	ClientID string   `json:"client_id"`
	EntryID  string   `json:"entry_id"`
	MimeType string   `json:"mime_type"`
	Size     int64    `json:"size"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

type MediaRegisterResponse struct {
	ID        string `json:"id"`
	ObjectKey string `json:"object_key"`
	UploadURL string `json:"upload_url"`
}

type URLResponse struct {
	URL string `json:"url"`
}
