package store

import (
	"context"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
)

func (s *Store) SaveEntry(ctx context.Context, e *models.Entry) error {
	return s.repos.Entries.CreateOrUpdate(ctx, e)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	return s.repos.Entries.GetByID(ctx, id)
}

func (s *Store) GetEntryByRemoteID(ctx context.Context, remoteID string) (*models.Entry, error) {
	return s.repos.Entries.GetByRemoteID(ctx, remoteID)
}

func (s *Store) GetAllEntries(ctx context.Context, ownerID string) ([]*models.Entry, error) {
	return s.repos.Entries.GetAll(ctx, ownerID)
}

func (s *Store) QueryEntries(ctx context.Context, f models.EntryFilter) ([]*models.Entry, error) {
	return s.repos.Entries.Query(ctx, f)
}

// DeleteEntry tombstones the entry. The row stays until PurgeEntry.
func (s *Store) DeleteEntry(ctx context.Context, id string, at time.Time) error {
	return s.repos.Entries.MarkDeleted(ctx, id, at)
}

// PurgeEntry physically removes the entry with its tags and media.
func (s *Store) PurgeEntry(ctx context.Context, id string) error {
	return s.InTx(ctx, func(ctx context.Context, r Repositories) error {
		if err := r.Media.DeleteByEntryID(ctx, id); err != nil {
			return err
		}
		return r.Entries.Purge(ctx, id)
	})
}

func (s *Store) SaveMedia(ctx context.Context, m *models.Media) error {
	return s.repos.Media.CreateOrUpdate(ctx, m)
}

func (s *Store) GetMedia(ctx context.Context, id string) (*models.Media, error) {
	return s.repos.Media.GetByID(ctx, id)
}

func (s *Store) ListMedia(ctx context.Context, entryID string) ([]*models.Media, error) {
	return s.repos.Media.ListByEntryID(ctx, entryID)
}

func (s *Store) DeleteMedia(ctx context.Context, id string) error {
	return s.repos.Media.Delete(ctx, id)
}
