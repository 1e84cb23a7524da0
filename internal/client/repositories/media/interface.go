package media

import (
	"context"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
)

// Repository describes CRUD and upload bookkeeping for Media rows.
type Repository interface {
	// CreateOrUpdate upserts a media row by ID.
	CreateOrUpdate(ctx context.Context, m *models.Media) error

	// GetByID returns one media row or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.Media, error)

	// ListByEntryID returns the attachments of an entry in creation order.
	ListByEntryID(ctx context.Context, entryID string) ([]*models.Media, error)

	// MarkUploaded stores the remote location and drops the local blob.
	MarkUploaded(ctx context.Context, id, remoteID, remoteURL string) error

	// Delete removes one media row.
	Delete(ctx context.Context, id string) error

	// DeleteByEntryID removes every attachment of an entry.
	DeleteByEntryID(ctx context.Context, entryID string) error
}
