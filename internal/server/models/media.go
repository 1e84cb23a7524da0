package models

import "time"

const (
	MediaStatusPending   = "pending"
	MediaStatusCompleted = "completed"
)

// Media describes an encrypted attachment. The ciphertext itself lives in
// object storage under ObjectKey.
type Media struct {
	ID        string
	UserID    string
	EntryID   string
	ObjectKey string
	MimeType  string
	Size      int64
	Width     *int
	Height    *int
	Duration  *float64
	Status    string
	CreatedAt time.Time
}
