package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
)

var (
	ErrUnavailable           = fmt.Errorf("server unavailable: %w", common.ErrSyncTransient)
	ErrUnauthorized          = errors.New("unauthorized")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
	ErrConflict              = errors.New("conflict: server copy is newer")
	ErrRejected              = errors.New("request rejected")
	ErrNotFound              = common.ErrorNotFound
)

// ConflictError carries the server's copy of an entry whose update lost.
type ConflictError struct {
	Remote api.Entry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v (entry %s)", ErrConflict, e.Remote.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
