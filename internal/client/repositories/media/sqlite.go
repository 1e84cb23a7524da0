package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, entry_id, remote_id, blob, remote_url, mime_type, size,
	width, height, duration, created_at, sync_status`

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, m *models.Media) error {
	if err := m.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO media (id, entry_id, remote_id, blob, remote_url, mime_type, size,
			width, height, duration, created_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entry_id = excluded.entry_id,
			remote_id = excluded.remote_id,
			blob = excluded.blob,
			remote_url = excluded.remote_url,
			mime_type = excluded.mime_type,
			size = excluded.size,
			width = excluded.width,
			height = excluded.height,
			duration = excluded.duration,
			sync_status = excluded.sync_status`

	var blob any
	if len(m.Blob) > 0 {
		blob = m.Blob
	}

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.EntryID, nullString(m.RemoteID), blob, nullString(m.RemoteURL), m.MimeType, m.Size,
		nullInt(m.Width), nullInt(m.Height), nullFloat(m.Duration), m.CreatedAt.UnixMilli(), string(m.SyncStatus))
	if err != nil {
		return fmt.Errorf("failed to upsert media: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListByEntryID(ctx context.Context, entryID string) ([]*models.Media, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM media WHERE entry_id = ? ORDER BY created_at, id`, entryID)
	if err != nil {
		return nil, fmt.Errorf("error selecting media: %w", err)
	}
	defer rows.Close()

	var result []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id, remoteID, remoteURL string) error {
	if remoteURL == "" {
		return models.ErrMediaWithoutPayload
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE media SET remote_id = ?, remote_url = ?, blob = NULL, sync_status = ? WHERE id = ?`,
		remoteID, remoteURL, string(models.SyncStatusSynced), id)
	if err != nil {
		return fmt.Errorf("failed to mark media uploaded: %w", err)
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

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByEntryID(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to delete media of entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(s scanner) (*models.Media, error) {
	var (
		m         models.Media
		remoteID  sql.NullString
		remoteURL sql.NullString
		width     sql.NullInt64
		height    sql.NullInt64
		duration  sql.NullFloat64
		createdAt int64
		status    string
	)
	if err := s.Scan(&m.ID, &m.EntryID, &remoteID, &m.Blob, &remoteURL, &m.MimeType, &m.Size,
		&width, &height, &duration, &createdAt, &status); err != nil {
		return nil, err
	}
	m.RemoteID = remoteID.String
	m.RemoteURL = remoteURL.String
	if width.Valid {
		w := int(width.Int64)
		m.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		m.Height = &h
	}
	if duration.Valid {
		d := duration.Float64
		m.Duration = &d
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.SyncStatus = models.SyncStatus(status)
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
