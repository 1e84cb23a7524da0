package models

import "time"

// OperationKind is the mutation a queued operation replays remotely.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// EntityType is the kind of row an operation targets.
type EntityType string

const (
	EntityEntry EntityType = "entry"
	EntityMedia EntityType = "media"
)

// OperationState is the retry state machine of a queued operation:
//
//	pending -> retrying(n) -> {acknowledged (row removed) | failed}
type OperationState string

const (
	OperationPending  OperationState = "pending"
	OperationRetrying OperationState = "retrying"
	OperationFailed   OperationState = "failed"
)

// SyncOperation is one queued local mutation. Seq orders operations FIFO;
// the row is deleted only after the server acknowledged it.
type SyncOperation struct {
	ID            string
	Seq           int64
	Kind          OperationKind
	EntityType    EntityType
	EntityID      string
	Payload       []byte
	CreatedAt     time.Time
	RetryCount    int
	LastError     string
	State         OperationState
	NextAttemptAt time.Time
}
