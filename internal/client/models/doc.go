// Package models defines the client-side data model: journal entries, media,
// queued sync operations and the key material owned by the encryption service.
//
// Timestamps are always UTC and truncated to milliseconds (see Now) so that
// values survive the JSON wire and the server's timestamptz columns without
// drifting; last-write-wins comparisons depend on this.
package models
