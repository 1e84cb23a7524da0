package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
)

// SyncStatus tracks a row's relationship with the server copy.
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusFailed   SyncStatus = "failed"
	SyncStatusConflict SyncStatus = "conflict"
)

// Source says where an entry came from.
type Source string

const (
	SourceDiary     Source = "diary"
	SourceFacebook  Source = "facebook"
	SourceInstagram Source = "instagram"
	SourceTwitter   Source = "twitter"
)

var ErrInvalidSource = errors.New("invalid entry source")

// ParseSource validates s; an empty string means SourceDiary.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "":
		return SourceDiary, nil
	case SourceDiary, SourceFacebook, SourceInstagram, SourceTwitter:
		return Source(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
}

// Mood is an optional plaintext tag of how the writer felt.
type Mood string

const (
	MoodNone     Mood = ""
	MoodHappy    Mood = "happy"
	MoodSad      Mood = "sad"
	MoodNeutral  Mood = "neutral"
	MoodExcited  Mood = "excited"
	MoodAnxious  Mood = "anxious"
	MoodGrateful Mood = "grateful"
)

var ErrInvalidMood = errors.New("invalid entry mood")

// Moods lists the accepted values in display order.
var Moods = []Mood{MoodHappy, MoodSad, MoodNeutral, MoodExcited, MoodAnxious, MoodGrateful}

// ParseMood validates s. An empty string means no mood.
func ParseMood(s string) (Mood, error) {
	m := Mood(strings.ToLower(strings.TrimSpace(s)))
	if m == MoodNone {
		return MoodNone, nil
	}
	for _, known := range Moods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMood, s)
}

// Entry is a journal entry as persisted on the device. Title and Content are
// ciphertext; tags, source, mood and timestamps are deliberately plaintext so they
// can be queried without keys.
type Entry struct {
	ID       string
	OwnerID  string
	RemoteID string

	Title       *envelope.Envelope
	Content     envelope.Envelope
	ContentHash string

	Tags     []string
	MediaIDs []string

	Source     Source
	ExternalID string
	Mood       Mood

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	SyncStatus SyncStatus
}

// SetContent replaces the encrypted body together with its hash. Content and
// ContentHash must never be written separately.
func (e *Entry) SetContent(content envelope.Envelope, hash string) {
	e.Content = content
	e.ContentHash = hash
}

// IsDeleted reports whether e carries a tombstone.
func (e *Entry) IsDeleted() bool {
	return e.DeletedAt != nil
}

// NormalizeTags lowercases and trims tags, drops empties and removes
// duplicates while keeping the first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// EntryFilter selects entries by their plaintext metadata. Zero fields are
// ignored.
type EntryFilter struct {
	OwnerID string
	From    time.Time
	To      time.Time
	Tag     string
	Source  Source
	Mood    Mood
}
