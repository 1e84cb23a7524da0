package entries

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Run(context.Background(), db))
	return db
}

func testEnvelope(b byte) envelope.Envelope {
	return envelope.New([]byte{b, b, b}, bytes.Repeat([]byte{b}, cryptox.NonceSize), cryptox.DefaultAlgorithm)
}

func newEntry(id string, created time.Time, tags ...string) *models.Entry {
	e := &models.Entry{
		ID:         id,
		OwnerID:    "owner",
		Tags:       tags,
		MediaIDs:   []string{},
		Source:     models.SourceDiary,
		CreatedAt:  created,
		UpdatedAt:  created,
		SyncStatus: models.SyncStatusPending,
	}
	e.SetContent(testEnvelope(1), "hash-"+id)
	return e
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateOrUpdate_InsertAndUpdate(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	e := newEntry("id1", t0, "travel", "food")
	title := testEnvelope(9)
	e.Title = &title
	e.ExternalID = "ig-42"
	e.Mood = models.MoodGrateful
	require.NoError(t, r.CreateOrUpdate(ctx, e))

	got, err := r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	e.Tags = []string{"food"}
	e.SetContent(testEnvelope(2), "hash-2")
	e.RemoteID = "srv-1"
	e.UpdatedAt = t0.Add(time.Minute)
	require.NoError(t, r.CreateOrUpdate(ctx, e))

	got, err = r.GetByRemoteID(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"food"}, got.Tags)
	assert.Equal(t, "hash-2", got.ContentHash)
	assert.Equal(t, testEnvelope(2), got.Content)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
}

func TestGetByID_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	_, err := r.GetByID(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = r.GetByRemoteID(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetAll_SkipsTombstonesAndOtherOwners(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("a", t0)))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("b", t0.Add(time.Hour))))
	c := newEntry("c", t0)
	c.OwnerID = "someone-else"
	require.NoError(t, r.CreateOrUpdate(ctx, c))
	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("d", t0)))
	require.NoError(t, r.MarkDeleted(ctx, "d", t0.Add(2*time.Hour)))

	got, err := r.GetAll(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID) // newest first
	assert.Equal(t, "a", got[1].ID)

	// tombstoned row is still reachable by id for the sync engine
	d, err := r.GetByID(ctx, "d")
	require.NoError(t, err)
	require.True(t, d.IsDeleted())
	assert.Equal(t, models.SyncStatusPending, d.SyncStatus)
}

func TestMarkDeleted_Twice(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("x", t0)))
	require.NoError(t, r.MarkDeleted(ctx, "x", t0))
	require.ErrorIs(t, r.MarkDeleted(ctx, "x", t0), common.ErrorNotFound)
}

func TestRestore(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("x", t0, "kept")))
	require.ErrorIs(t, r.Restore(ctx, "x", t0), common.ErrorNotFound)

	require.NoError(t, r.MarkDeleted(ctx, "x", t0.Add(time.Minute)))
	require.NoError(t, r.SetSyncStatus(ctx, "x", models.SyncStatusSynced))
	require.NoError(t, r.Restore(ctx, "x", t0.Add(2*time.Minute)))

	got, err := r.GetByID(ctx, "x")
	require.NoError(t, err)
	assert.False(t, got.IsDeleted())
	assert.Equal(t, t0.Add(2*time.Minute), got.UpdatedAt)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)
	assert.Equal(t, []string{"kept"}, got.Tags)

	require.ErrorIs(t, r.Restore(ctx, "missing", t0), common.ErrorNotFound)
}

func TestPurge(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("x", t0, "tag")))
	require.NoError(t, r.Purge(ctx, "x"))
	require.NoError(t, r.Purge(ctx, "x"))

	_, err := r.GetByID(ctx, "x")
	require.ErrorIs(t, err, common.ErrorNotFound)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM entry_tags`).Scan(&n))
	assert.Zero(t, n)
}

func TestQuery_Filters(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	a := newEntry("a", t0, "travel")
	b := newEntry("b", t0.Add(24*time.Hour), "work", "travel")
	c := newEntry("c", t0.Add(48*time.Hour), "work")
	c.Source = models.SourceInstagram
	b.Mood = models.MoodHappy
	for _, e := range []*models.Entry{a, b, c} {
		require.NoError(t, r.CreateOrUpdate(ctx, e))
	}

	ids := func(list []*models.Entry) []string {
		out := []string{}
		for _, e := range list {
			out = append(out, e.ID)
		}
		return out
	}

	got, err := r.Query(ctx, models.EntryFilter{OwnerID: "owner", Tag: " Travel "})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(got))
	assert.Equal(t, []string{"work", "travel"}, got[0].Tags)

	got, err = r.Query(ctx, models.EntryFilter{From: t0.Add(time.Hour), To: t0.Add(30 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))

	got, err = r.Query(ctx, models.EntryFilter{Source: models.SourceInstagram})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))

	got, err = r.Query(ctx, models.EntryFilter{Mood: models.MoodHappy})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
	assert.Equal(t, models.MoodHappy, got[0].Mood)
}

func TestSetSyncStatus(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, newEntry("x", t0)))
	require.NoError(t, r.SetSyncStatus(ctx, "x", models.SyncStatusConflict))

	got, err := r.GetByID(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusConflict, got.SyncStatus)
}

func TestCreateOrUpdate_DBErrorWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	err := r.CreateOrUpdate(context.Background(), newEntry("x", t0))
	require.ErrorContains(t, err, "failed to upsert entry")
}
