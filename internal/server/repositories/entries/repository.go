package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts entry and fills its ID. When the user already has an
	// entry with the same client id, nothing is written and
	// common.ErrorAlreadyExists is returned.
	Create(ctx context.Context, entry *models.Entry) error
	GetByID(ctx context.Context, userID, id string) (*models.Entry, error)
	GetByClientID(ctx context.Context, userID, clientID string) (*models.Entry, error)
	// Update overwrites the client-owned fields and SyncedAt of a live entry.
	Update(ctx context.Context, entry *models.Entry) error
	// SoftDelete sets deleted_at and bumps synced_at so the delete is
	// visible to /sync.
	SoftDelete(ctx context.Context, userID, id string, at time.Time, syncedAt int64) error
	// Restore clears deleted_at of a deleted entry, stamps at as its update
	// time and bumps synced_at.
	Restore(ctx context.Context, userID, id string, at time.Time, syncedAt int64) error
	// ListChanged returns up to limit entries with synced_at > since, oldest
	// change first. Deleted entries are included.
	ListChanged(ctx context.Context, userID string, since int64, limit int) ([]*models.Entry, error)
}
