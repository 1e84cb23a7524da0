package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/store"
	"github.com/dmitrijs2005/journalkeeper/internal/client/syncengine"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/google/uuid"
)

// Crypto is the part of the encryption service entries need.
type Crypto interface {
	EncryptContent(plaintext string) (envelope.Envelope, error)
	DecryptContent(env envelope.Envelope) (string, error)
	GenerateContentHash(plaintext string) string
	EncryptMedia(data []byte) ([]byte, error)
	DecryptMedia(data []byte) ([]byte, error)
}

// Syncer is implemented by *syncengine.Engine.
type Syncer interface {
	SyncFull(ctx context.Context) (syncengine.Report, error)
	SyncIncremental(ctx context.Context) (syncengine.Report, error)
	UploadEntry(ctx context.Context, entryID string) (syncengine.Report, error)
	RestoreEntry(ctx context.Context, entryID string) error
	State() syncengine.State
	RefreshPending(ctx context.Context)
}

// MediaFetcher downloads media whose local copy was dropped after upload.
type MediaFetcher interface {
	MediaDownloadURL(ctx context.Context, id string) (string, error)
	DownloadBlob(ctx context.Context, url string) ([]byte, error)
}

// EntryInput is what the user writes. Zero CreatedAt means now; empty
// Source means diary; empty Mood means none.
type EntryInput struct {
	Title      string
	Content    string
	Tags       []string
	Source     models.Source
	ExternalID string
	Mood       models.Mood
	CreatedAt  time.Time
}

// EntryView is a decrypted entry.
type EntryView struct {
	ID         string
	RemoteID   string
	Title      string
	Content    string
	Tags       []string
	MediaIDs   []string
	Source     models.Source
	ExternalID string
	Mood       models.Mood
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SyncStatus models.SyncStatus
}

// MediaMeta carries the optional attributes of an attachment.
type MediaMeta struct {
	MimeType string
	Width    *int
	Height   *int
	Duration *float64
}

// EntryService is the application-facing journal API. Every write goes to the
// local store first and is queued for upload; reads never touch the network
// except to fetch media that only exists remotely.
type EntryService interface {
	CreateEntry(ctx context.Context, in EntryInput) (*EntryView, error)
	UpdateEntry(ctx context.Context, id string, in EntryInput) (*EntryView, error)
	DeleteEntry(ctx context.Context, id string) error
	RestoreEntry(ctx context.Context, id string) (*EntryView, error)
	GetEntry(ctx context.Context, id string) (*EntryView, error)
	// GetAllEntries and QueryEntries return the entries they could decrypt
	// together with the joined errors of those they could not.
	GetAllEntries(ctx context.Context) ([]*EntryView, error)
	QueryEntries(ctx context.Context, f models.EntryFilter) ([]*EntryView, error)

	AddMedia(ctx context.Context, entryID string, data []byte, meta MediaMeta) (*models.Media, error)
	GetMedia(ctx context.Context, id string) (*models.Media, []byte, error)
	ListMedia(ctx context.Context, entryID string) ([]*models.Media, error)

	SyncFull(ctx context.Context) (syncengine.Report, error)
	SyncIncremental(ctx context.Context) (syncengine.Report, error)
	UploadEntry(ctx context.Context, id string) (syncengine.Report, error)
	FailedOperations(ctx context.Context) ([]*models.SyncOperation, error)
	State() syncengine.State
}

type entryService struct {
	store   *store.Store
	crypto  Crypto
	syncer  Syncer
	fetcher MediaFetcher
	ownerID string
	log     logging.Logger
	now     func() time.Time
}

// NewEntryService builds the service for one signed-in owner. syncer and
// fetcher may be nil when running without a server.
func NewEntryService(st *store.Store, c Crypto, syncer Syncer, fetcher MediaFetcher, ownerID string, log logging.Logger) EntryService {
	if log == nil {
		log = logging.Nop{}
	}
	return &entryService{
		store:   st,
		crypto:  c,
		syncer:  syncer,
		fetcher: fetcher,
		ownerID: ownerID,
		log:     log,
		now:     models.Now,
	}
}

func (s *entryService) CreateEntry(ctx context.Context, in EntryInput) (*EntryView, error) {
	source, mood, err := parseLabels(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	created := now
	if !in.CreatedAt.IsZero() {
		created = models.Normalize(in.CreatedAt)
	}
	e := &models.Entry{
		ID:         uuid.NewString(),
		OwnerID:    s.ownerID,
		Tags:       models.NormalizeTags(in.Tags),
		MediaIDs:   []string{},
		Source:     source,
		ExternalID: in.ExternalID,
		Mood:       mood,
		CreatedAt:  created,
		UpdatedAt:  now,
		SyncStatus: models.SyncStatusPending,
	}
	if err := s.seal(e, in); err != nil {
		return nil, err
	}

	unlock := s.store.Lock(e.ID)
	defer unlock()
	err = s.store.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		if err := r.Entries.CreateOrUpdate(ctx, e); err != nil {
			return err
		}
		return r.Operations.Enqueue(ctx, s.newOp(models.OperationCreate, models.EntityEntry, e.ID, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}
	s.refresh(ctx)
	return s.view(e, in.Title, in.Content), nil
}

func (s *entryService) UpdateEntry(ctx context.Context, id string, in EntryInput) (*EntryView, error) {
	source, mood, err := parseLabels(in)
	if err != nil {
		return nil, err
	}

	unlock := s.store.Lock(id)
	defer unlock()

	var saved *models.Entry
	err = s.store.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		e, err := r.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.IsDeleted() {
			return common.ErrorNotFound
		}
		if e.OwnerID != s.ownerID {
			return common.ErrorNotFound
		}

		if err := s.seal(e, in); err != nil {
			return err
		}
		e.Tags = models.NormalizeTags(in.Tags)
		e.Source = source
		e.ExternalID = in.ExternalID
		e.Mood = mood
		if !in.CreatedAt.IsZero() {
			e.CreatedAt = models.Normalize(in.CreatedAt)
		}
		e.UpdatedAt = s.after(e.UpdatedAt)
		e.SyncStatus = models.SyncStatusPending

		if err := r.Entries.CreateOrUpdate(ctx, e); err != nil {
			return err
		}
		saved = e
		return r.Operations.Enqueue(ctx, s.newOp(models.OperationUpdate, models.EntityEntry, e.ID, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("update entry %s: %w", id, err)
	}
	s.refresh(ctx)
	return s.view(saved, in.Title, in.Content), nil
}

// DeleteEntry tombstones the entry. The queued operation carries a snapshot
// so the server copy can still be addressed after the row is purged.
func (s *entryService) DeleteEntry(ctx context.Context, id string) error {
	unlock := s.store.Lock(id)
	defer unlock()

	err := s.store.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		e, err := r.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.IsDeleted() || e.OwnerID != s.ownerID {
			return common.ErrorNotFound
		}

		snap, err := e.ToAPI()
		if err != nil {
			return err
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			return err
		}

		if err := r.Entries.MarkDeleted(ctx, id, s.after(e.UpdatedAt)); err != nil {
			return err
		}
		media, err := r.Media.ListByEntryID(ctx, id)
		if err != nil {
			return err
		}
		for _, m := range media {
			if err := r.Operations.DropForEntity(ctx, m.ID); err != nil {
				return err
			}
		}
		return r.Operations.Enqueue(ctx, s.newOp(models.OperationDelete, models.EntityEntry, id, payload))
	})
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	s.refresh(ctx)
	return nil
}

// RestoreEntry undoes DeleteEntry. While the delete is still queued it is
// dropped and the entry revived locally, with an upload queued so the server
// ends up with the restored copy. Once the delete reached the server and the
// row was purged, the server copy is restored and downloaded again.
func (s *entryService) RestoreEntry(ctx context.Context, id string) (*EntryView, error) {
	_, err := s.store.GetEntry(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return s.restoreRemote(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	unlock := s.store.Lock(id)
	defer unlock()

	var restored *models.Entry
	err = s.store.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		e, err := r.Entries.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e.OwnerID != s.ownerID {
			return common.ErrorNotFound
		}
		if !e.IsDeleted() {
			return fmt.Errorf("%w: entry is not deleted", common.ErrorValidation)
		}

		ops, err := r.Operations.ForEntity(ctx, id)
		if err != nil {
			return err
		}
		queued := false
		for _, op := range ops {
			if op.Kind == models.OperationDelete {
				if err := r.Operations.Complete(ctx, op.ID); err != nil {
					return err
				}
				continue
			}
			if op.State != models.OperationFailed {
				queued = true
			}
		}

		at := s.after(e.UpdatedAt)
		if err := r.Entries.Restore(ctx, id, at); err != nil {
			return err
		}
		e.DeletedAt = nil
		e.UpdatedAt = at
		e.SyncStatus = models.SyncStatusPending
		restored = e
		if queued {
			return nil
		}
		kind := models.OperationUpdate
		if e.RemoteID == "" {
			kind = models.OperationCreate
		}
		return r.Operations.Enqueue(ctx, s.newOp(kind, models.EntityEntry, id, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("restore entry %s: %w", id, err)
	}
	s.refresh(ctx)
	return s.open(restored)
}

func (s *entryService) restoreRemote(ctx context.Context, id string) (*EntryView, error) {
	if s.syncer == nil {
		return nil, fmt.Errorf("restore entry %s: %w", id, errOffline)
	}
	if err := s.syncer.RestoreEntry(ctx, id); err != nil {
		return nil, fmt.Errorf("restore entry %s: %w", id, err)
	}
	s.refresh(ctx)
	return s.GetEntry(ctx, id)
}

func (s *entryService) GetEntry(ctx context.Context, id string) (*EntryView, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.IsDeleted() || e.OwnerID != s.ownerID {
		return nil, common.ErrorNotFound
	}
	return s.open(e)
}

func (s *entryService) GetAllEntries(ctx context.Context) ([]*EntryView, error) {
	list, err := s.store.GetAllEntries(ctx, s.ownerID)
	if err != nil {
		return nil, err
	}
	return s.openAll(list)
}

func (s *entryService) QueryEntries(ctx context.Context, f models.EntryFilter) ([]*EntryView, error) {
	f.OwnerID = s.ownerID
	list, err := s.store.QueryEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.openAll(list)
}

func (s *entryService) AddMedia(ctx context.Context, entryID string, data []byte, meta MediaMeta) (*models.Media, error) {
	sealed, err := s.crypto.EncryptMedia(data)
	if err != nil {
		return nil, fmt.Errorf("encrypt media: %w", err)
	}
	m := &models.Media{
		ID:         uuid.NewString(),
		EntryID:    entryID,
		Blob:       sealed,
		MimeType:   meta.MimeType,
		Size:       int64(len(data)),
		Width:      meta.Width,
		Height:     meta.Height,
		Duration:   meta.Duration,
		CreatedAt:  s.now(),
		SyncStatus: models.SyncStatusPending,
	}

	unlock := s.store.Lock(entryID)
	defer unlock()
	err = s.store.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		e, err := r.Entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		if e.IsDeleted() || e.OwnerID != s.ownerID {
			return common.ErrorNotFound
		}
		if err := r.Media.CreateOrUpdate(ctx, m); err != nil {
			return err
		}

		e.MediaIDs = append(e.MediaIDs, m.ID)
		e.UpdatedAt = s.after(e.UpdatedAt)
		e.SyncStatus = models.SyncStatusPending
		if err := r.Entries.CreateOrUpdate(ctx, e); err != nil {
			return err
		}
		if err := r.Operations.Enqueue(ctx, s.newOp(models.OperationUpdate, models.EntityEntry, e.ID, nil)); err != nil {
			return err
		}
		return r.Operations.Enqueue(ctx, s.newOp(models.OperationCreate, models.EntityMedia, m.ID, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("add media: %w", err)
	}
	s.refresh(ctx)
	return m, nil
}

// GetMedia returns the attachment and its decrypted bytes, downloading them
// when only the remote copy is left.
func (s *entryService) GetMedia(ctx context.Context, id string) (*models.Media, []byte, error) {
	m, err := s.store.GetMedia(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	sealed := m.Blob
	if len(sealed) == 0 {
		if s.fetcher == nil {
			return nil, nil, fmt.Errorf("media %s is only stored remotely", id)
		}
		url, err := s.fetcher.MediaDownloadURL(ctx, m.RemoteID)
		if err != nil {
			return nil, nil, fmt.Errorf("media download url: %w", err)
		}
		sealed, err = s.fetcher.DownloadBlob(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("media download: %w", err)
		}
	}

	data, err := s.crypto.DecryptMedia(sealed)
	if err != nil {
		return nil, nil, fmt.Errorf("media %s: %w", id, err)
	}
	return m, data, nil
}

func (s *entryService) ListMedia(ctx context.Context, entryID string) ([]*models.Media, error) {
	return s.store.ListMedia(ctx, entryID)
}

var errOffline = errors.New("sync is not available offline")

func (s *entryService) SyncFull(ctx context.Context) (syncengine.Report, error) {
	if s.syncer == nil {
		return syncengine.Report{}, errOffline
	}
	return s.syncer.SyncFull(ctx)
}

func (s *entryService) SyncIncremental(ctx context.Context) (syncengine.Report, error) {
	if s.syncer == nil {
		return syncengine.Report{}, errOffline
	}
	return s.syncer.SyncIncremental(ctx)
}

func (s *entryService) UploadEntry(ctx context.Context, id string) (syncengine.Report, error) {
	if s.syncer == nil {
		return syncengine.Report{}, errOffline
	}
	return s.syncer.UploadEntry(ctx, id)
}

func (s *entryService) FailedOperations(ctx context.Context) ([]*models.SyncOperation, error) {
	return s.store.FailedOperations(ctx)
}

func (s *entryService) State() syncengine.State {
	if s.syncer == nil {
		return syncengine.State{}
	}
	return s.syncer.State()
}

func parseLabels(in EntryInput) (models.Source, models.Mood, error) {
	source, err := models.ParseSource(string(in.Source))
	if err != nil {
		return "", "", err
	}
	mood, err := models.ParseMood(string(in.Mood))
	if err != nil {
		return "", "", err
	}
	return source, mood, nil
}

// seal encrypts title and content of in into e.
func (s *entryService) seal(e *models.Entry, in EntryInput) error {
	content, err := s.crypto.EncryptContent(in.Content)
	if err != nil {
		return fmt.Errorf("encrypt content: %w", err)
	}
	e.SetContent(content, s.crypto.GenerateContentHash(in.Content))

	e.Title = nil
	if in.Title != "" {
		title, err := s.crypto.EncryptContent(in.Title)
		if err != nil {
			return fmt.Errorf("encrypt title: %w", err)
		}
		e.Title = &title
	}
	return nil
}

func (s *entryService) open(e *models.Entry) (*EntryView, error) {
	content, err := s.crypto.DecryptContent(e.Content)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	var title string
	if e.Title != nil {
		title, err = s.crypto.DecryptContent(*e.Title)
		if err != nil {
			return nil, fmt.Errorf("entry %s title: %w", e.ID, err)
		}
	}
	return s.view(e, title, content), nil
}

// openAll decrypts what it can. Entries that fail are left out and their
// errors joined, so one damaged row does not hide the rest.
func (s *entryService) openAll(list []*models.Entry) ([]*EntryView, error) {
	out := make([]*EntryView, 0, len(list))
	var errs []error
	for _, e := range list {
		v, err := s.open(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}

func (s *entryService) view(e *models.Entry, title, content string) *EntryView {
	return &EntryView{
		ID:         e.ID,
		RemoteID:   e.RemoteID,
		Title:      title,
		Content:    content,
		Tags:       e.Tags,
		MediaIDs:   e.MediaIDs,
		Source:     e.Source,
		ExternalID: e.ExternalID,
		Mood:       e.Mood,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
		SyncStatus: e.SyncStatus,
	}
}

func (s *entryService) newOp(kind models.OperationKind, et models.EntityType, id string, payload []byte) *models.SyncOperation {
	now := s.now()
	return &models.SyncOperation{
		ID:            uuid.NewString(),
		Kind:          kind,
		EntityType:    et,
		EntityID:      id,
		Payload:       payload,
		CreatedAt:     now,
		State:         models.OperationPending,
		NextAttemptAt: now,
	}
}

// after returns now, or prev+1ms when the clock has not moved past prev, so
// every local edit is strictly newer than the one before it.
func (s *entryService) after(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

func (s *entryService) refresh(ctx context.Context) {
	if s.syncer != nil {
		s.syncer.RefreshPending(ctx)
	}
}
