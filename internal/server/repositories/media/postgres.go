// Package media provides the PostgreSQL repository for attachment metadata.
package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

// PostgresRepository implements media storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const mediaColumns = `id, user_id, entry_id, object_key, mime_type, size, width, height, duration, status, created_at`

func (r *PostgresRepository) Create(ctx context.Context, m *models.Media) error {
	query := `
		INSERT INTO media (id, user_id, entry_id, object_key, mime_type, size, width, height, duration, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.UserID, m.EntryID, m.ObjectKey, m.MimeType, m.Size, m.Width, m.Height, m.Duration, m.Status,
	).Scan(&m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		WHERE id = $1
	`
	return scanMedia(r.db.QueryRowContext(ctx, query, id))
}

// MarkUploaded marks the media as uploaded. Exactly one row must be affected.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, userID, id string) error {
	query := `UPDATE media SET status = 'completed' WHERE user_id = $1 AND id = $2`
	result, err := r.db.ExecContext(ctx, query, userID, id)
	if err != nil {
		return fmt.Errorf("failed to mark uploaded: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch ra {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
}

func (r *PostgresRepository) ListByEntry(ctx context.Context, userID, entryID string) ([]*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		WHERE user_id = $1 AND entry_id = $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select media: %w", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(s scanner) (*models.Media, error) {
	var (
		m             models.Media
		width, height sql.NullInt32
		duration      sql.NullFloat64
	)
	err := s.Scan(&m.ID, &m.UserID, &m.EntryID, &m.ObjectKey, &m.MimeType, &m.Size,
		&width, &height, &duration, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if width.Valid {
		w := int(width.Int32)
		m.Width = &w
	}
	if height.Valid {
		h := int(height.Int32)
		m.Height = &h
	}
	if duration.Valid {
		d := duration.Float64
		m.Duration = &d
	}
	return &m, nil
}
