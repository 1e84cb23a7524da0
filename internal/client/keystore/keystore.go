// Package keystore persists the password-wrapped key material of the
// encryption service. Everything stored here is already sealed; the key store
// never sees a plaintext key.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
)

// KeyStore loads and saves wrapped key material. Load returns
// common.ErrorNotFound when nothing has been stored yet.
type KeyStore interface {
	Load(ctx context.Context) (*models.KeyMaterial, error)
	Save(ctx context.Context, m *models.KeyMaterial) error
	Clear(ctx context.Context) error
}

// MetadataKeyStore keeps the material as JSON in the local metadata table.
type MetadataKeyStore struct {
	repo metadata.Repository
}

func NewMetadataKeyStore(repo metadata.Repository) *MetadataKeyStore {
	return &MetadataKeyStore{repo: repo}
}

func (s *MetadataKeyStore) Load(ctx context.Context) (*models.KeyMaterial, error) {
	raw, err := s.repo.Get(ctx, metadata.KeyKeyMaterial)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrKeyStoreUnavailable, err)
	}
	var m models.KeyMaterial
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: stored key material is corrupt: %v", common.ErrKeyStoreUnavailable, err)
	}
	return &m, nil
}

func (s *MetadataKeyStore) Save(ctx context.Context, m *models.KeyMaterial) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := s.repo.Set(ctx, metadata.KeyKeyMaterial, raw); err != nil {
		return fmt.Errorf("%w: %v", common.ErrKeyStoreUnavailable, err)
	}
	return nil
}

func (s *MetadataKeyStore) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx, metadata.KeyKeyMaterial); err != nil {
		return fmt.Errorf("%w: %v", common.ErrKeyStoreUnavailable, err)
	}
	return nil
}

// MemoryKeyStore is a process-local KeyStore. Err, when set, is returned by
// every call to simulate a denied store.
type MemoryKeyStore struct {
	mu  sync.Mutex
	m   *models.KeyMaterial
	Err error
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

func (s *MemoryKeyStore) Load(context.Context) (*models.KeyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.m == nil {
		return nil, common.ErrorNotFound
	}
	cp := *s.m
	return &cp, nil
}

func (s *MemoryKeyStore) Save(_ context.Context, m *models.KeyMaterial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cp := *m
	s.m = &cp
	return nil
}

func (s *MemoryKeyStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.m = nil
	return nil
}
