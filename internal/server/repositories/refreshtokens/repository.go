// Package refreshtokens stores the server's rotating refresh tokens. Only a
// digest of each token is persisted.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

type Repository interface {
	// Create stores token for userID until expiresAt.
	Create(ctx context.Context, userID, token string, expiresAt time.Time) error

	// Consume deletes token and returns the row it belonged to, expired or
	// not. An unknown or already used token yields common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// RevokeUser deletes every token of userID and reports how many.
	RevokeUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
