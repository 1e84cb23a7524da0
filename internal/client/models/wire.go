package models

import (
	"fmt"
	"slices"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
)

// ToAPI converts e to its wire form. The local ID travels as client_id.
func (e *Entry) ToAPI() (api.Entry, error) {
	content, err := envelope.Serialize(e.Content.Ciphertext, e.Content.Nonce, e.Content.Algorithm, e.Content.Version)
	if err != nil {
		return api.Entry{}, fmt.Errorf("entry %s content: %w", e.ID, err)
	}
	var title string
	if e.Title != nil {
		title, err = envelope.Serialize(e.Title.Ciphertext, e.Title.Nonce, e.Title.Algorithm, e.Title.Version)
		if err != nil {
			return api.Entry{}, fmt.Errorf("entry %s title: %w", e.ID, err)
		}
	}
	out := api.Entry{
		ID:          e.RemoteID,
		ClientID:    e.ID,
		Title:       title,
		Content:     content,
		ContentHash: e.ContentHash,
		Tags:        nonNil(e.Tags),
		MediaIDs:    nonNil(e.MediaIDs),
		Source:      string(e.Source),
		ExternalID:  e.ExternalID,
		Mood:        string(e.Mood),
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		out.DeletedAt = &t
	}
	return out, nil
}

// EntryFromAPI builds a local entry from a server entry. Envelope format
// errors are returned unchanged so callers can tell them apart.
func EntryFromAPI(a api.Entry, localID, ownerID string) (*Entry, error) {
	content, err := envelope.Deserialize(a.Content)
	if err != nil {
		return nil, err
	}
	e := &Entry{
		ID:         localID,
		OwnerID:    ownerID,
		RemoteID:   a.ID,
		Tags:       NormalizeTags(a.Tags),
		MediaIDs:   nonNil(a.MediaIDs),
		ExternalID: a.ExternalID,
		CreatedAt:  Normalize(a.CreatedAt),
		UpdatedAt:  Normalize(a.UpdatedAt),
		SyncStatus: SyncStatusSynced,
	}
	e.SetContent(content, a.ContentHash)
	if a.Title != "" {
		title, err := envelope.Deserialize(a.Title)
		if err != nil {
			return nil, err
		}
		e.Title = &title
	}
	if e.Source, err = ParseSource(a.Source); err != nil {
		return nil, err
	}
	if e.Mood, err = ParseMood(a.Mood); err != nil {
		return nil, err
	}
	if a.DeletedAt != nil {
		t := Normalize(*a.DeletedAt)
		e.DeletedAt = &t
	}
	return e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
