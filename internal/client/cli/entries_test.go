package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/services"
	"github.com/dmitrijs2005/journalkeeper/internal/client/syncengine"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntry(t *testing.T) {
	ta := newTestApp(t, "Lisbon", "Tram 28 all the way up.", "", "second paragraph", ".", "travel, Food", "Happy")
	ta.login(t)

	require.NoError(t, ta.AddEntry(context.Background(), nil))

	assert.Equal(t, services.EntryInput{
		Title:   "Lisbon",
		Content: "Tram 28 all the way up.\n\nsecond paragraph",
		Tags:    []string{"travel", "Food"},
		Mood:    models.MoodHappy,
	}, ta.es.created)
	assert.Contains(t, ta.out.String(), "Entry new-id saved")
}

func TestEditEntry_EmptyAnswersKeepValues(t *testing.T) {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	ta := newTestApp(t, "", "new body", ".", "", "")
	ta.login(t)
	ta.es.entry = &services.EntryView{
		ID: "e1", Title: "Old", Content: "old body", Tags: []string{"a"},
		Source: models.SourceInstagram, ExternalID: "ig-1", Mood: models.MoodGrateful, CreatedAt: created,
	}

	require.NoError(t, ta.EditEntry(context.Background(), []string{"e1"}))

	assert.Equal(t, services.EntryInput{
		Title: "Old", Content: "new body", Tags: []string{"a"},
		Source: models.SourceInstagram, ExternalID: "ig-1", Mood: models.MoodGrateful, CreatedAt: created,
	}, ta.es.updated)
}

func TestAddEntry_UnknownMood(t *testing.T) {
	ta := newTestApp(t, "Title", "body", ".", "", "grumpy")
	ta.login(t)

	err := ta.AddEntry(context.Background(), nil)
	require.ErrorIs(t, err, models.ErrInvalidMood)
	assert.Equal(t, services.EntryInput{}, ta.es.created)
}

func TestEditEntry_NotFound(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.Error(t, ta.EditEntry(context.Background(), []string{"missing"}))
	assert.Contains(t, ta.out.String(), "not found")
}

func TestDeleteEntry_PromptsForID(t *testing.T) {
	ta := newTestApp(t, "e7")
	ta.login(t)

	require.NoError(t, ta.DeleteEntry(context.Background(), nil))
	assert.Equal(t, "e7", ta.es.deleted)
}

func TestRestoreEntry(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.NoError(t, ta.RestoreEntry(context.Background(), []string{"e7"}))
	assert.Equal(t, "e7", ta.es.restored)
	assert.Contains(t, ta.out.String(), "Entry e7 restored")

	ta.es.err = common.ErrorValidation
	require.ErrorIs(t, ta.RestoreEntry(context.Background(), []string{"e8"}), common.ErrorValidation)
}

func TestListAndShow(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	ta.es.list = []*services.EntryView{
		{ID: "e1", Title: "Morning", Tags: []string{"run"}, CreatedAt: at, SyncStatus: models.SyncStatusSynced},
		{ID: "e2", Content: "untitled\nbody", CreatedAt: at, SyncStatus: models.SyncStatusConflict},
	}
	ta.es.entry = &services.EntryView{ID: "e1", Title: "Morning", Content: "5k along the river",
		Tags: []string{"run"}, MediaIDs: []string{"m-1"}, Source: models.SourceDiary, Mood: models.MoodExcited,
		CreatedAt: at, UpdatedAt: at,
		SyncStatus: models.SyncStatusPending}

	require.NoError(t, ta.List(context.Background(), nil))
	out := ta.out.String()
	assert.Contains(t, out, "Morning")
	assert.Contains(t, out, "untitled body")
	assert.Contains(t, out, "conflict")

	ta.out.Reset()
	require.NoError(t, ta.Show(context.Background(), []string{"e1"}))
	out = ta.out.String()
	assert.Contains(t, out, "5k along the river")
	assert.Contains(t, out, "Tags: run")
	assert.Contains(t, out, "Mood: excited")
	assert.Contains(t, out, "Media: m-1")
	assert.Contains(t, out, "Sync: pending")
}

func TestList_Empty(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.NoError(t, ta.List(context.Background(), nil))
	assert.Contains(t, ta.out.String(), "No entries")
}

func TestList_ShowsReadableEntriesBeforeError(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	ta.es.list = []*services.EntryView{{ID: "e1", Title: "Readable", SyncStatus: models.SyncStatusSynced}}
	ta.es.err = fmt.Errorf("entry e2: %w", common.ErrDecryptionFailed)

	err := ta.List(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrDecryptionFailed)
	out := ta.out.String()
	assert.Contains(t, out, "Readable")
	assert.Contains(t, out, "entry e2")
	assert.NotContains(t, out, "No entries")
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter([]string{"tag=travel", "source=instagram", "mood=Happy", "from=2024-01-01", "to=2024-01-31"})
	require.NoError(t, err)
	assert.Equal(t, "travel", f.Tag)
	assert.Equal(t, models.SourceInstagram, f.Source)
	assert.Equal(t, models.MoodHappy, f.Mood)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), f.From)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC), f.To)

	_, err = parseFilter([]string{"travel"})
	require.ErrorIs(t, err, errUsage)

	_, err = parseFilter([]string{"source=myspace"})
	require.Error(t, err)

	_, err = parseFilter([]string{"from=yesterday"})
	require.Error(t, err)

	_, err = parseFilter([]string{"mood=grumpy"})
	require.ErrorIs(t, err, models.ErrInvalidMood)

	_, err = parseFilter([]string{"mood="})
	require.ErrorIs(t, err, errUsage)

	_, err = parseFilter([]string{"weather=sunny"})
	require.Error(t, err)
}

func TestQuery_PassesFilter(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.NoError(t, ta.Query(context.Background(), []string{"tag=work"}))
	assert.Equal(t, "work", ta.es.filter.Tag)
}

func TestAttachAndSaveMedia(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	require.NoError(t, ta.Attach(context.Background(), []string{"e1", src}))
	assert.Equal(t, []byte("hello"), ta.es.mediaIn)
	assert.Contains(t, ta.out.String(), "text/plain")

	ta.es.mediaOut = []byte("decrypted")
	dst := filepath.Join(dir, "out.bin")
	require.NoError(t, ta.Media(context.Background(), []string{"save", "m-1", dst}))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("decrypted"), got)
}

func TestAttach_Usage(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.ErrorIs(t, ta.Attach(context.Background(), []string{"e1"}), errUsage)
	require.ErrorIs(t, ta.Media(context.Background(), nil), errUsage)
}

func TestMedia_Lists(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	ta.es.media = []*models.Media{{ID: "m-1", MimeType: "image/jpeg", Size: 2048, SyncStatus: models.SyncStatusSynced}}

	require.NoError(t, ta.Media(context.Background(), []string{"e1"}))
	assert.Contains(t, ta.out.String(), "image/jpeg")
}

func TestSync_Variants(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	ta.es.report = syncengine.Report{Uploaded: 2, Downloaded: 3, Conflicts: 1, Failed: 1}

	require.NoError(t, ta.Sync(context.Background(), nil))
	assert.Equal(t, "incremental", ta.es.syncKind)
	out := ta.out.String()
	assert.Contains(t, out, "2 uploaded, 3 downloaded")
	assert.Contains(t, out, "1 conflict(s)")
	assert.Contains(t, out, "failed permanently")

	require.NoError(t, ta.Sync(context.Background(), []string{"full"}))
	assert.Equal(t, "full", ta.es.syncKind)

	require.NoError(t, ta.Sync(context.Background(), []string{"e1"}))
	assert.Equal(t, "entry e1", ta.es.syncKind)
}

func TestSync_AlreadyRunningAndError(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	ta.es.report = syncengine.Report{AlreadyRunning: true}
	require.NoError(t, ta.Sync(context.Background(), nil))
	assert.Contains(t, ta.out.String(), "already running")

	ta.es.err = errors.New("server unavailable")
	require.Error(t, ta.Sync(context.Background(), nil))
}

func TestStatus(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	ta.es.state = syncengine.State{PendingCount: 4, LastError: "1 operation(s) failed permanently"}
	ta.es.failed = []*models.SyncOperation{{Kind: models.OperationUpdate, EntityType: models.EntityEntry,
		EntityID: "e1", RetryCount: 3, LastError: "status 500"}}

	require.NoError(t, ta.Status(context.Background(), nil))
	out := ta.out.String()
	assert.Contains(t, out, "Pending: 4")
	assert.Contains(t, out, "Last sync: never")
	assert.Contains(t, out, "Mode: online")
	assert.Contains(t, out, "e1 failed after 3 attempt(s): status 500")
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", shorten("short", 10))
	assert.Equal(t, "a b", shorten("a\nb", 10))
	assert.Equal(t, "abcd…", shorten("abcdefgh", 5))
}
