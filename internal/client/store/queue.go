package store

import (
	"context"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
)

func (s *Store) Enqueue(ctx context.Context, op *models.SyncOperation) error {
	return s.repos.Operations.Enqueue(ctx, op)
}

func (s *Store) ReadyOperations(ctx context.Context, now time.Time) ([]*models.SyncOperation, error) {
	return s.repos.Operations.Ready(ctx, now)
}

func (s *Store) OperationsFor(ctx context.Context, entityID string) ([]*models.SyncOperation, error) {
	return s.repos.Operations.ForEntity(ctx, entityID)
}

func (s *Store) FailedOperations(ctx context.Context) ([]*models.SyncOperation, error) {
	return s.repos.Operations.Failed(ctx)
}

func (s *Store) UpdateOperation(ctx context.Context, op *models.SyncOperation) error {
	return s.repos.Operations.Update(ctx, op)
}

func (s *Store) CompleteOperation(ctx context.Context, id string) error {
	return s.repos.Operations.Complete(ctx, id)
}

func (s *Store) DropOperationsFor(ctx context.Context, entityID string) error {
	return s.repos.Operations.DropForEntity(ctx, entityID)
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	return s.repos.Operations.PendingCount(ctx)
}
