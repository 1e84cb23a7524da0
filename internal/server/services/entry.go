package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/repomanager"
)

var (
	entryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journalkeeper_entry_writes_total",
		Help: "Entry writes by operation and outcome.",
	}, []string{"op", "result"})

	syncPageEntries = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journalkeeper_sync_page_entries",
		Help:    "Changes returned per /sync page.",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500},
	})
)

// ConflictError is returned by Update when the stored copy is newer than
// the incoming one. Entry is the stored copy.
type ConflictError struct {
	Entry *models.Entry
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry %s has a newer version", e.Entry.ID)
}

func (e *ConflictError) Unwrap() error { return common.ErrVersionConflict }

// SyncPage is one page of changes after a checkpoint.
type SyncPage struct {
	Entries    []*models.Entry
	DeletedIDs []string
	HasMore    bool
	Checkpoint int64
}

type EntryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewEntryService(db *sql.DB, m repomanager.RepositoryManager) *EntryService {
	return &EntryService{db: db, repomanager: m, now: time.Now}
}

func outcome(err error) string {
	var conflict *ConflictError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	case errors.Is(err, common.ErrorValidation):
		return "invalid"
	default:
		return "error"
	}
}

// Create stores a new entry. A repeated create with the same client id
// returns the entry stored the first time and created=false.
func (s *EntryService) Create(ctx context.Context, userID string, in api.Entry) (entry *models.Entry, created bool, err error) {
	defer func() { entryWrites.WithLabelValues("create", outcome(err)).Inc() }()

	e := models.EntryFromAPI(in)
	e.UserID = userID
	if err := e.Validate(); err != nil {
		return nil, false, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, created, err = s.create(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

func (s *EntryService) create(ctx context.Context, tx dbx.DBTX, e *models.Entry) (*models.Entry, bool, error) {
	clock, err := s.repomanager.Users(tx).NextSyncClock(ctx, e.UserID)
	if err != nil {
		return nil, false, err
	}

	e.ID = ""
	e.DeletedAt = nil
	e.SyncedAt = clock
	repo := s.repomanager.Entries(tx)
	err = repo.Create(ctx, e)
	if errors.Is(err, common.ErrorAlreadyExists) {
		existing, err := repo.GetByClientID(ctx, e.UserID, e.ClientID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Update overwrites entry id with in unless the stored copy was updated
// later, in which case a *ConflictError carrying the stored copy is
// returned. Equal timestamps let the write through so retries succeed.
func (s *EntryService) Update(ctx context.Context, userID, id string, in api.Entry) (entry *models.Entry, err error) {
	defer func() { entryWrites.WithLabelValues("update", outcome(err)).Inc() }()

	e := models.EntryFromAPI(in)
	e.UserID = userID
	e.ID = id

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err = s.update(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *EntryService) update(ctx context.Context, tx dbx.DBTX, e *models.Entry) (*models.Entry, error) {
	// the clock row lock serializes writers of this user
	clock, err := s.repomanager.Users(tx).NextSyncClock(ctx, e.UserID)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Entries(tx)
	stored, err := repo.GetByID(ctx, e.UserID, e.ID)
	if err != nil {
		return nil, err
	}
	if stored.IsDeleted() {
		return nil, common.ErrorNotFound
	}

	e.ClientID = stored.ClientID
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if stored.UpdatedAt.After(e.UpdatedAt) {
		return nil, &ConflictError{Entry: stored}
	}

	e.CreatedAt = stored.CreatedAt
	e.DeletedAt = nil
	e.SyncedAt = clock
	if err := repo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete soft-deletes entry id so other devices learn about it from /sync.
func (s *EntryService) Delete(ctx context.Context, userID, id string) (err error) {
	defer func() { entryWrites.WithLabelValues("delete", outcome(err)).Inc() }()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		clock, err := s.repomanager.Users(tx).NextSyncClock(ctx, userID)
		if err != nil {
			return err
		}
		repo := s.repomanager.Entries(tx)
		stored, err := repo.GetByID(ctx, userID, id)
		if err != nil {
			return err
		}
		if stored.IsDeleted() {
			return common.ErrorNotFound
		}
		return repo.SoftDelete(ctx, userID, id, s.now().UTC(), clock)
	})
}

// Restore undeletes entry id and stamps it with the current time, so devices
// that still hold the tombstone take the restored copy on their next sync.
// An entry that is not deleted is a validation error.
func (s *EntryService) Restore(ctx context.Context, userID, id string) (entry *models.Entry, err error) {
	defer func() { entryWrites.WithLabelValues("restore", outcome(err)).Inc() }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		clock, err := s.repomanager.Users(tx).NextSyncClock(ctx, userID)
		if err != nil {
			return err
		}
		repo := s.repomanager.Entries(tx)
		stored, err := repo.GetByID(ctx, userID, id)
		if err != nil {
			return err
		}
		if !stored.IsDeleted() {
			return fmt.Errorf("%w: entry is not deleted", common.ErrorValidation)
		}

		at := s.now().UTC().Truncate(time.Millisecond)
		if !at.After(stored.UpdatedAt) {
			at = stored.UpdatedAt.Add(time.Millisecond)
		}
		if err := repo.Restore(ctx, userID, id, at, clock); err != nil {
			return err
		}
		stored.DeletedAt = nil
		stored.UpdatedAt = at
		stored.SyncedAt = clock
		entry = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return api.DefaultSyncLimit
	case limit > api.MaxSyncLimit:
		return api.MaxSyncLimit
	}
	return limit
}

// Sync applies the pushed entries, then returns the changes after since.
// Pushed entries without an id are created, the rest updated; one that
// loses to a newer stored copy is dropped and the stored copy stays.
func (s *EntryService) Sync(ctx context.Context, userID string, since int64, limit int, pushed []api.Entry) (*SyncPage, error) {
	if len(pushed) > 0 {
		err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			for _, in := range pushed {
				if err := s.applyPushed(ctx, tx, userID, in); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	limit = clampLimit(limit)
	changed, err := s.repomanager.Entries(s.db).ListChanged(ctx, userID, since, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}

	page := &SyncPage{Entries: []*models.Entry{}, DeletedIDs: []string{}, Checkpoint: since}
	if len(changed) > limit {
		page.HasMore = true
		changed = changed[:limit]
	}
	for _, e := range changed {
		if e.IsDeleted() {
			page.DeletedIDs = append(page.DeletedIDs, e.ID)
		} else {
			page.Entries = append(page.Entries, e)
		}
		page.Checkpoint = e.SyncedAt
	}
	syncPageEntries.Observe(float64(len(changed)))
	return page, nil
}

func (s *EntryService) applyPushed(ctx context.Context, tx dbx.DBTX, userID string, in api.Entry) error {
	e := models.EntryFromAPI(in)
	e.UserID = userID

	if e.ID == "" {
		err := e.Validate()
		if err == nil {
			_, _, err = s.create(ctx, tx, e)
		}
		entryWrites.WithLabelValues("sync_create", outcome(err)).Inc()
		return err
	}

	_, err := s.update(ctx, tx, e)
	entryWrites.WithLabelValues("sync_update", outcome(err)).Inc()
	var conflict *ConflictError
	if errors.As(err, &conflict) || errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}
