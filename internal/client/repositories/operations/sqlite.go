package operations

import (
	"context"
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

const selectColumns = `seq, id, kind, entity_type, entity_id, payload, created_at,
	retry_count, last_error, state, next_attempt_at`

func (r *SQLiteRepository) Enqueue(ctx context.Context, op *models.SyncOperation) error {
	if op.State == "" {
		op.State = models.OperationPending
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_operations (id, kind, entity_type, entity_id, payload, created_at,
			retry_count, last_error, state, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, string(op.Kind), string(op.EntityType), op.EntityID, op.Payload, op.CreatedAt.UnixMilli(),
		op.RetryCount, op.LastError, string(op.State), op.NextAttemptAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation seq: %w", err)
	}
	op.Seq = seq
	return nil
}

func (r *SQLiteRepository) Ready(ctx context.Context, now time.Time) ([]*models.SyncOperation, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM sync_operations
		WHERE state != ? AND next_attempt_at <= ? ORDER BY seq`,
		string(models.OperationFailed), now.UnixMilli())
}

func (r *SQLiteRepository) ForEntity(ctx context.Context, entityID string) ([]*models.SyncOperation, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM sync_operations WHERE entity_id = ? ORDER BY seq`, entityID)
}

func (r *SQLiteRepository) Failed(ctx context.Context) ([]*models.SyncOperation, error) {
	return r.list(ctx, `SELECT `+selectColumns+` FROM sync_operations WHERE state = ? ORDER BY seq`,
		string(models.OperationFailed))
}

func (r *SQLiteRepository) Update(ctx context.Context, op *models.SyncOperation) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_operations SET kind = ?, payload = ?, retry_count = ?, last_error = ?,
			state = ?, next_attempt_at = ? WHERE id = ?`,
		string(op.Kind), op.Payload, op.RetryCount, op.LastError, string(op.State),
		op.NextAttemptAt.UnixMilli(), op.ID)
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
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

func (r *SQLiteRepository) Complete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DropForEntity(ctx context.Context, entityID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_operations WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("failed to drop operations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_operations WHERE state != ?`,
		string(models.OperationFailed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.SyncOperation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select operations: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncOperation
	for rows.Next() {
		var (
			op        models.SyncOperation
			kind      string
			entity    string
			state     string
			createdAt int64
			nextAt    int64
		)
		if err := rows.Scan(&op.Seq, &op.ID, &kind, &entity, &op.EntityID, &op.Payload, &createdAt,
			&op.RetryCount, &op.LastError, &state, &nextAt); err != nil {
			return nil, err
		}
		op.Kind = models.OperationKind(kind)
		op.EntityType = models.EntityType(entity)
		op.State = models.OperationState(state)
		op.CreatedAt = time.UnixMilli(createdAt).UTC()
		op.NextAttemptAt = time.UnixMilli(nextAt).UTC()
		result = append(result, &op)
	}
	return result, rows.Err()
}
