package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, owner_id, remote_id, title, content, content_hash, media_ids,
	source, external_id, mood, created_at, updated_at, deleted_at, sync_status`

// CreateOrUpdate upserts an entry by id and rewrites its tags.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, e *models.Entry) error {
	var title sql.NullString
	if e.Title != nil {
		s, err := envelope.Serialize(e.Title.Ciphertext, e.Title.Nonce, e.Title.Algorithm, e.Title.Version)
		if err != nil {
			return fmt.Errorf("failed to serialize title: %w", err)
		}
		title = sql.NullString{String: s, Valid: true}
	}
	content, err := envelope.Serialize(e.Content.Ciphertext, e.Content.Nonce, e.Content.Algorithm, e.Content.Version)
	if err != nil {
		return fmt.Errorf("failed to serialize content: %w", err)
	}
	mediaIDs, err := json.Marshal(nonNil(e.MediaIDs))
	if err != nil {
		return err
	}

	query := `INSERT INTO entries (id, owner_id, remote_id, title, content, content_hash, media_ids,
			source, external_id, mood, created_at, updated_at, deleted_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			remote_id = excluded.remote_id,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			media_ids = excluded.media_ids,
			source = excluded.source,
			external_id = excluded.external_id,
			mood = excluded.mood,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			sync_status = excluded.sync_status`

	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.OwnerID, nullString(e.RemoteID), title, content, e.ContentHash, string(mediaIDs),
		string(e.Source), nullString(e.ExternalID), string(e.Mood), toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
		nullMillis(e.DeletedAt), string(e.SyncStatus))
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	for i, tag := range e.Tags {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO entry_tags (entry_id, position, tag) VALUES (?, ?, ?)`, e.ID, i, tag); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return nil
}

// GetByID returns a single entry including tombstoned ones.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM entries WHERE id = ?`, id)
}

// GetByRemoteID returns the entry that carries the given server id.
func (r *SQLiteRepository) GetByRemoteID(ctx context.Context, remoteID string) (*models.Entry, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM entries WHERE remote_id = ?`, remoteID)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*models.Entry, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	if err := r.loadTags(ctx, []*models.Entry{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// GetAll lists live entries of an owner, newest first.
func (r *SQLiteRepository) GetAll(ctx context.Context, ownerID string) ([]*models.Entry, error) {
	return r.Query(ctx, models.EntryFilter{OwnerID: ownerID})
}

// Query filters live entries by owner, creation date range, tag, source and mood.
func (r *SQLiteRepository) Query(ctx context.Context, f models.EntryFilter) ([]*models.Entry, error) {
	var (
		where = []string{"deleted_at IS NULL"}
		args  []any
	)
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, toMillis(f.To))
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.Mood != "" {
		where = append(where, "mood = ?")
		args = append(args, string(f.Mood))
	}
	if f.Tag != "" {
		where = append(where, "id IN (SELECT entry_id FROM entry_tags WHERE tag = ?)")
		args = append(args, strings.ToLower(strings.TrimSpace(f.Tag)))
	}

	query := `SELECT ` + selectColumns + ` FROM entries WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := r.loadTags(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkDeleted tombstones a live entry. It expects exactly one row to be affected.
func (r *SQLiteRepository) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET deleted_at = ?, updated_at = ?, sync_status = ? WHERE id = ? AND deleted_at IS NULL`,
		toMillis(at), toMillis(at), string(models.SyncStatusPending), id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// Restore clears the tombstone of a deleted entry and stamps at as its
// update time. It expects exactly one row to be affected.
func (r *SQLiteRepository) Restore(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries SET deleted_at = NULL, updated_at = ?, sync_status = ? WHERE id = ? AND deleted_at IS NOT NULL`,
		toMillis(at), string(models.SyncStatusPending), id)
	if err != nil {
		return fmt.Errorf("failed to restore entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// Purge removes the entry row and its tags. Missing rows are not an error.
func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge tags: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge entry: %w", err)
	}
	return nil
}

// SetSyncStatus updates the status of one entry.
func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, id string, status models.SyncStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE entries SET sync_status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) loadTags(ctx context.Context, list []*models.Entry) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*models.Entry, len(list))
	placeholders := make([]string, 0, len(list))
	args := make([]any, 0, len(list))
	for _, e := range list {
		e.Tags = []string{}
		byID[e.ID] = e
		placeholders = append(placeholders, "?")
		args = append(args, e.ID)
	}

	query := `SELECT entry_id, tag FROM entry_tags WHERE entry_id IN (` + strings.Join(placeholders, ",") +
		`) ORDER BY entry_id, position`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to select tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return err
		}
		if e, ok := byID[id]; ok {
			e.Tags = append(e.Tags, tag)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.Entry, error) {
	var (
		e          models.Entry
		remoteID   sql.NullString
		title      sql.NullString
		content    string
		mediaIDs   string
		source     string
		externalID sql.NullString
		mood       string
		createdAt  int64
		updatedAt  int64
		deletedAt  sql.NullInt64
		status     string
	)
	if err := s.Scan(&e.ID, &e.OwnerID, &remoteID, &title, &content, &e.ContentHash, &mediaIDs,
		&source, &externalID, &mood, &createdAt, &updatedAt, &deletedAt, &status); err != nil {
		return nil, err
	}

	env, err := envelope.Deserialize(content)
	if err != nil {
		return nil, fmt.Errorf("entry %s content: %w", e.ID, err)
	}
	e.Content = env
	if title.Valid {
		t, err := envelope.Deserialize(title.String)
		if err != nil {
			return nil, fmt.Errorf("entry %s title: %w", e.ID, err)
		}
		e.Title = &t
	}
	if err := json.Unmarshal([]byte(mediaIDs), &e.MediaIDs); err != nil {
		return nil, fmt.Errorf("entry %s media ids: %w", e.ID, err)
	}

	e.RemoteID = remoteID.String
	e.ExternalID = externalID.String
	e.Source = models.Source(source)
	e.Mood = models.Mood(mood)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	if deletedAt.Valid {
		t := fromMillis(deletedAt.Int64)
		e.DeletedAt = &t
	}
	e.SyncStatus = models.SyncStatus(status)
	return &e, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
