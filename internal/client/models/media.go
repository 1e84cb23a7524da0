package models

import (
	"errors"
	"time"
)

var ErrMediaWithoutPayload = errors.New("media has neither local blob nor remote url")

// Media is an attachment of an entry. Blob is the encrypted stream produced by
// the encryption service; RemoteURL points at the uploaded object.
type Media struct {
	ID       string
	EntryID  string
	RemoteID string

	Blob      []byte
	RemoteURL string

	MimeType string
	Size     int64
	Width    *int
	Height   *int
	Duration *float64

	CreatedAt  time.Time
	SyncStatus SyncStatus
}

// Validate enforces that at least one of Blob and RemoteURL is present.
func (m *Media) Validate() error {
	if len(m.Blob) == 0 && m.RemoteURL == "" {
		return ErrMediaWithoutPayload
	}
	return nil
}
