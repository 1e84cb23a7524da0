package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
)

// Entry is the server copy of a journal entry. Title and Content are
// serialized envelopes the server never opens. SyncedAt is the per-user
// change clock that /sync pages over.
type Entry struct {
	ID          string
	UserID      string
	ClientID    string
	Title       string
	Content     string
	ContentHash string
	Tags        []string
	MediaIDs    []string
	Source      string
	ExternalID  string
	Mood        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	SyncedAt    int64
}

func (e *Entry) IsDeleted() bool { return e.DeletedAt != nil }

// EntryFromAPI copies the client-supplied fields of a.
func EntryFromAPI(a api.Entry) *Entry {
	return &Entry{
		ID:          a.ID,
		ClientID:    a.ClientID,
		Title:       a.Title,
		Content:     a.Content,
		ContentHash: a.ContentHash,
		Tags:        nonNil(a.Tags),
		MediaIDs:    nonNil(a.MediaIDs),
		Source:      a.Source,
		ExternalID:  a.ExternalID,
		Mood:        a.Mood,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func (e *Entry) ToAPI() api.Entry {
	out := api.Entry{
		ID:          e.ID,
		ClientID:    e.ClientID,
		Title:       e.Title,
		Content:     e.Content,
		ContentHash: e.ContentHash,
		Tags:        nonNil(e.Tags),
		MediaIDs:    nonNil(e.MediaIDs),
		Source:      e.Source,
		ExternalID:  e.ExternalID,
		Mood:        e.Mood,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		SyncedAt:    e.SyncedAt,
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var knownSources = map[string]bool{
	"diary": true, "facebook": true, "instagram": true, "twitter": true,
}

// knownMoods includes "" for entries without a mood.
var knownMoods = map[string]bool{
	"": true, "happy": true, "sad": true, "neutral": true, "excited": true, "anxious": true, "grateful": true,
}

// Validate checks what the server can see of an entry. Title and Content
// are opaque, so only their presence is checked.
func (e *Entry) Validate() error {
	switch {
	case e.ClientID == "":
		return fmt.Errorf("%w: client_id is required", common.ErrorValidation)
	case e.Content == "":
		return fmt.Errorf("%w: content is required", common.ErrorValidation)
	case !knownSources[e.Source]:
		return fmt.Errorf("%w: unknown source %q", common.ErrorValidation, e.Source)
	case !knownMoods[e.Mood]:
		return fmt.Errorf("%w: unknown mood %q", common.ErrorValidation, e.Mood)
	case e.CreatedAt.IsZero() || e.UpdatedAt.IsZero():
		return fmt.Errorf("%w: timestamps are required", common.ErrorValidation)
	}
	return nil
}
