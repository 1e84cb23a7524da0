package client

import (
	"context"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error

	Register(ctx context.Context, req api.RegisterRequest) error
	GetSalt(ctx context.Context, username string) (api.SaltResponse, error)
	Login(ctx context.Context, username string, verifier []byte) (api.TokenResponse, error)
	Recover(ctx context.Context, username, code string) (api.TokenResponse, error)
	GetKeys(ctx context.Context) (api.KeyMaterial, error)
	PutKeys(ctx context.Context, req api.UpdateKeysRequest) error

	CreateEntry(ctx context.Context, e api.Entry) (api.Entry, error)
	UpdateEntry(ctx context.Context, e api.Entry) (api.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	Sync(ctx context.Context, req api.SyncRequest) (api.SyncResponse, error)

	RegisterMedia(ctx context.Context, req api.MediaRegisterRequest) (api.MediaRegisterResponse, error)
	CompleteMedia(ctx context.Context, id string) error
	MediaDownloadURL(ctx context.Context, id string) (string, error)
	UploadBlob(ctx context.Context, url string, data []byte) error
	DownloadBlob(ctx context.Context, url string) ([]byte, error)
}
