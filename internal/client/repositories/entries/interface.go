package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
)

// Repository describes persistence operations for Entry rows.
type Repository interface {
	// CreateOrUpdate upserts an entry by ID and replaces its tag set.
	CreateOrUpdate(ctx context.Context, entry *models.Entry) error

	// GetByID returns an entry, tombstoned or not. common.ErrorNotFound if absent.
	GetByID(ctx context.Context, id string) (*models.Entry, error)

	// GetByRemoteID looks an entry up by its server identifier.
	GetByRemoteID(ctx context.Context, remoteID string) (*models.Entry, error)

	// GetAll lists live (non-tombstoned) entries of an owner, newest first.
	GetAll(ctx context.Context, ownerID string) ([]*models.Entry, error)

	// Query filters live entries by plaintext metadata.
	Query(ctx context.Context, f models.EntryFilter) ([]*models.Entry, error)

	// MarkDeleted sets the tombstone timestamp.
	MarkDeleted(ctx context.Context, id string, at time.Time) error

	// Restore clears the tombstone of a deleted entry.
	Restore(ctx context.Context, id string, at time.Time) error

	// Purge physically removes the entry and its tags.
	Purge(ctx context.Context, id string) error

	// SetSyncStatus updates only the sync status column.
	SetSyncStatus(ctx context.Context, id string, status models.SyncStatus) error
}
