// Package users provides the PostgreSQL repository for accounts.
package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	kdf, material, err := encodeKeys(user.KDF, user.Material)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO users (username, salt, verifier, kdf, tier, material)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		user.UserName, user.Salt, user.Verifier, kdf, user.Tier, material).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const selectUser = `SELECT id, username, salt, verifier, kdf, tier, material, created_at FROM users`

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectUser+`
		 WHERE username = $1
		 `, userName))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectUser+`
		 WHERE id = $1
		 `, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	var kdf, material []byte
	user := &models.User{}
	err := row.Scan(&user.ID, &user.UserName, &user.Salt, &user.Verifier, &kdf, &user.Tier, &material, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(kdf, &user.KDF); err != nil {
		return nil, fmt.Errorf("decode kdf params: %w", err)
	}
	if err := json.Unmarshal(material, &user.Material); err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id string, salt, verifier []byte, kdf cryptox.KDFParams, material api.KeyMaterial) error {
	kdfJSON, materialJSON, err := encodeKeys(kdf, material)
	if err != nil {
		return err
	}

	query :=
		`UPDATE users SET salt = $2, verifier = $3, kdf = $4, material = $5
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, salt, verifier, kdfJSON, materialJSON)
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

// NextSyncClock moves the clock to the current time in milliseconds, or one
// past its previous value when the wall clock has not advanced.
func (r *PostgresRepository) NextSyncClock(ctx context.Context, userID string) (int64, error) {
	query :=
		`UPDATE users SET sync_clock = GREATEST((extract(epoch from clock_timestamp()) * 1000)::bigint, sync_clock + 1)
		 WHERE id = $1
		 RETURNING sync_clock
		 `

	var clock int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&clock)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return clock, nil
}

func encodeKeys(kdf cryptox.KDFParams, material api.KeyMaterial) (string, string, error) {
	k, err := json.Marshal(kdf)
	if err != nil {
		return "", "", fmt.Errorf("encode kdf params: %w", err)
	}
	m, err := json.Marshal(material)
	if err != nil {
		return "", "", fmt.Errorf("encode key material: %w", err)
	}
	return string(k), string(m), nil
}
