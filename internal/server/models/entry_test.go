package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryFromAPI_RoundTrip(t *testing.T) {
	loc := time.FixedZone("x", 3600)
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, loc)
	e := EntryFromAPI(api.Entry{ClientID: "c1", Content: "env", Source: "diary", Mood: "sad", CreatedAt: at, UpdatedAt: at})

	assert.Equal(t, time.UTC, e.CreatedAt.Location())
	assert.Equal(t, []string{}, e.Tags)
	assert.NoError(t, e.Validate())

	deleted := at.UTC()
	e.DeletedAt = &deleted
	out := e.ToAPI()
	require.NotNil(t, out.DeletedAt)
	assert.True(t, e.IsDeleted())
	assert.Equal(t, []string{}, out.MediaIDs)
	assert.Equal(t, "sad", out.Mood)
}

func TestEntry_Validate(t *testing.T) {
	at := time.Now()
	base := func() *Entry {
		return &Entry{ClientID: "c1", Content: "env", Source: "instagram", CreatedAt: at, UpdatedAt: at}
	}

	tests := []struct {
		name string
		mod  func(e *Entry)
	}{
		{"no client id", func(e *Entry) { e.ClientID = "" }},
		{"no content", func(e *Entry) { e.Content = "" }},
		{"bad source", func(e *Entry) { e.Source = "myspace" }},
		{"bad mood", func(e *Entry) { e.Mood = "grumpy" }},
		{"no timestamps", func(e *Entry) { e.UpdatedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mod(e)
			require.ErrorIs(t, e.Validate(), common.ErrorValidation)
		})
	}
}
