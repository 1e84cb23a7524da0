package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/server/config"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/journalkeeper/internal/server/storage"
)

// MediaService records attachments and hands out presigned URLs. Blobs go
// straight between the client and object storage.
type MediaService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	presigner   storage.Presigner
	maxSize     int64
	now         func() time.Time
}

func NewMediaService(db *sql.DB, m repomanager.RepositoryManager, p storage.Presigner, cfg *config.Config) *MediaService {
	return &MediaService{
		db:          db,
		repomanager: m,
		presigner:   p,
		maxSize:     cfg.MaxMediaSize,
		now:         time.Now,
	}
}

// Registration is a stored media row plus a URL to upload its blob to.
type Registration struct {
	Media     *models.Media
	UploadURL string
}

// Register records a pending attachment of a live entry. The client's media
// id becomes the server id, so registering the same id again re-issues the
// upload URL.
func (s *MediaService) Register(ctx context.Context, userID string, req api.MediaRegisterRequest) (*Registration, error) {
	switch {
	case req.ClientID == "":
		return nil, validationError("client_id is required")
	case req.EntryID == "":
		return nil, validationError("entry_id is required")
	case strings.TrimSpace(req.MimeType) == "":
		return nil, validationError("mime_type is required")
	case req.Size <= 0:
		return nil, validationError("size must be positive")
	case s.maxSize > 0 && req.Size > s.maxSize:
		return nil, validationError("size %d exceeds limit of %d bytes", req.Size, s.maxSize)
	}

	entry, err := s.repomanager.Entries(s.db).GetByID(ctx, userID, req.EntryID)
	if err != nil {
		return nil, err
	}
	if entry.IsDeleted() {
		return nil, common.ErrorNotFound
	}

	repo := s.repomanager.Media(s.db)
	m, err := repo.GetByID(ctx, req.ClientID)
	switch {
	case err == nil:
		if m.UserID != userID || m.EntryID != req.EntryID {
			return nil, common.ErrorAlreadyExists
		}
	case errors.Is(err, common.ErrorNotFound):
		m = &models.Media{
			ID:        req.ClientID,
			UserID:    userID,
			EntryID:   req.EntryID,
			ObjectKey: storage.ObjectKey(userID, req.ClientID, s.now()),
			MimeType:  req.MimeType,
			Size:      req.Size,
			Width:     req.Width,
			Height:    req.Height,
			Duration:  req.Duration,
			Status:    models.MediaStatusPending,
		}
		if err := repo.Create(ctx, m); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	url, err := s.presigner.PutURL(ctx, m.ObjectKey, m.Size)
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}
	return &Registration{Media: m, UploadURL: url}, nil
}

// Complete marks the blob of media id as uploaded.
func (s *MediaService) Complete(ctx context.Context, userID, id string) error {
	return s.repomanager.Media(s.db).MarkUploaded(ctx, userID, id)
}

// DownloadURL presigns a GET for an uploaded blob. Pending media and media
// of other users are not found.
func (s *MediaService) DownloadURL(ctx context.Context, userID, id string) (string, error) {
	m, err := s.repomanager.Media(s.db).GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if m.UserID != userID || m.Status != models.MediaStatusCompleted {
		return "", common.ErrorNotFound
	}

	url, err := s.presigner.GetURL(ctx, m.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}
