package users

import (
	"context"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills its ID. A taken username yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	// UpdateCredentials replaces the login credentials and key material.
	UpdateCredentials(ctx context.Context, id string, salt, verifier []byte, kdf cryptox.KDFParams, material api.KeyMaterial) error
	// NextSyncClock advances the user's change clock and returns the new
	// value. The row stays locked until the surrounding transaction ends.
	NextSyncClock(ctx context.Context, userID string) (int64, error)
}
