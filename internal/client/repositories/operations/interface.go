// Package operations stores the FIFO queue of local mutations awaiting
// upload. Rows are ordered by an autoincrement sequence and removed only once
// the server acknowledged them.
package operations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
)

type Repository interface {
	// Enqueue appends op and fills op.Seq.
	Enqueue(ctx context.Context, op *models.SyncOperation) error

	// Ready returns non-failed operations whose next attempt is due, in
	// sequence order.
	Ready(ctx context.Context, now time.Time) ([]*models.SyncOperation, error)

	// ForEntity returns all operations of one entity in sequence order.
	ForEntity(ctx context.Context, entityID string) ([]*models.SyncOperation, error)

	// Update persists kind, payload and retry bookkeeping of op.
	Update(ctx context.Context, op *models.SyncOperation) error

	// Complete removes an acknowledged operation.
	Complete(ctx context.Context, id string) error

	// DropForEntity removes every queued operation of an entity.
	DropForEntity(ctx context.Context, entityID string) error

	// PendingCount counts operations that are not failed.
	PendingCount(ctx context.Context) (int, error)

	// Failed lists operations that exhausted their attempts.
	Failed(ctx context.Context) ([]*models.SyncOperation, error)
}
