// Package entries provides PostgreSQL-backed repositories for server-side
// entry persistence and sync queries.
package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

// PostgresRepository implements entry storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, user_id, client_id, title, content, content_hash, tags, media_ids, source, external_id, mood,
		created_at, updated_at, deleted_at, synced_at`

func (r *PostgresRepository) Create(ctx context.Context, entry *models.Entry) error {
	tags, mediaIDs, err := encodeLists(entry)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO entries (user_id, client_id, title, content, content_hash, tags, media_ids, source, external_id,
			mood, created_at, updated_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, client_id) DO NOTHING
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		entry.UserID, entry.ClientID, entry.Title, entry.Content, entry.ContentHash, tags, mediaIDs,
		entry.Source, entry.ExternalID, entry.Mood, entry.CreatedAt, entry.UpdatedAt, entry.SyncedAt,
	).Scan(&entry.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE user_id = $1 AND id = $2
	`
	return scanEntry(r.db.QueryRowContext(ctx, query, userID, id))
}

func (r *PostgresRepository) GetByClientID(ctx context.Context, userID, clientID string) (*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE user_id = $1 AND client_id = $2
	`
	return scanEntry(r.db.QueryRowContext(ctx, query, userID, clientID))
}

func (r *PostgresRepository) Update(ctx context.Context, entry *models.Entry) error {
	tags, mediaIDs, err := encodeLists(entry)
	if err != nil {
		return err
	}
	query := `
		UPDATE entries SET
			title = $3,
			content = $4,
			content_hash = $5,
			tags = $6,
			media_ids = $7,
			source = $8,
			external_id = $9,
			mood = $10,
			created_at = $11,
			updated_at = $12,
			synced_at = $13
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.UserID, entry.ID, entry.Title, entry.Content, entry.ContentHash, tags, mediaIDs,
		entry.Source, entry.ExternalID, entry.Mood, entry.CreatedAt, entry.UpdatedAt, entry.SyncedAt,
	)
	return expectOne(res, err)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, userID, id string, at time.Time, syncedAt int64) error {
	query := `
		UPDATE entries SET deleted_at = $3, synced_at = $4
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, id, at, syncedAt)
	return expectOne(res, err)
}

func (r *PostgresRepository) Restore(ctx context.Context, userID, id string, at time.Time, syncedAt int64) error {
	query := `
		UPDATE entries SET deleted_at = NULL, updated_at = $3, synced_at = $4
		WHERE user_id = $1 AND id = $2 AND deleted_at IS NOT NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, id, at, syncedAt)
	return expectOne(res, err)
}

func (r *PostgresRepository) ListChanged(ctx context.Context, userID string, since int64, limit int) ([]*models.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE user_id = $1 AND synced_at > $2
		ORDER BY synced_at, id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.Entry, error) {
	var (
		e              models.Entry
		tags, mediaIDs []byte
		deletedAt      sql.NullTime
	)
	err := s.Scan(&e.ID, &e.UserID, &e.ClientID, &e.Title, &e.Content, &e.ContentHash, &tags, &mediaIDs,
		&e.Source, &e.ExternalID, &e.Mood, &e.CreatedAt, &e.UpdatedAt, &deletedAt, &e.SyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(tags, &e.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(mediaIDs, &e.MediaIDs); err != nil {
		return nil, fmt.Errorf("decode media ids of %s: %w", e.ID, err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

func encodeLists(e *models.Entry) (string, string, error) {
	tags, err := json.Marshal(nonNil(e.Tags))
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	mediaIDs, err := json.Marshal(nonNil(e.MediaIDs))
	if err != nil {
		return "", "", fmt.Errorf("encode media ids: %w", err)
	}
	return string(tags), string(mediaIDs), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
