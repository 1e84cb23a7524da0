package recoverycodes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Replace should run inside a transaction so a failed insert keeps the old
// codes.
func (r *PostgresRepository) Replace(ctx context.Context, userID string, hashes []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	query := `
		INSERT INTO recovery_codes (user_id, code_hash)
		VALUES ($1, $2)
		ON CONFLICT (user_id, code_hash) DO NOTHING
	`
	for _, h := range hashes {
		if _, err := r.db.ExecContext(ctx, query, userID, h); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Redeem(ctx context.Context, userID, hash string) error {
	query := `
		UPDATE recovery_codes SET used_at = now()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Remaining(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT count(*) FROM recovery_codes
		WHERE user_id = $1 AND used_at IS NULL
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
