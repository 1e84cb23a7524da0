package media

import (
	"context"

	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts m. An existing row with the same id yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, m *models.Media) error
	GetByID(ctx context.Context, id string) (*models.Media, error)
	// MarkUploaded flips a media row of userID to completed.
	MarkUploaded(ctx context.Context, userID, id string) error
	ListByEntry(ctx context.Context, userID, entryID string) ([]*models.Media, error)
}
