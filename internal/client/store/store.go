// Package store is the local entry store: the on-device source of truth for
// entries, media, the outbound operation queue and sync metadata. It only
// ever sees ciphertext.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/journalkeeper/internal/client/migrations"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/entries"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/media"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/operations"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"

	_ "modernc.org/sqlite"
)

// Repositories is one consistent view over the local tables, bound either to
// the database or to a running transaction.
type Repositories struct {
	Entries    entries.Repository
	Media      media.Repository
	Operations operations.Repository
	Metadata   metadata.Repository
}

func newRepositories(db dbx.DBTX) Repositories {
	return Repositories{
		Entries:    entries.NewSQLiteRepository(db),
		Media:      media.NewSQLiteRepository(db),
		Operations: operations.NewSQLiteRepository(db),
		Metadata:   metadata.NewSQLiteRepository(db),
	}
}

type Store struct {
	db    *sql.DB
	repos Repositories
	locks *keyedMutex
}

// Open opens (or creates) the SQLite database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection: SQLite serializes writers anyway and :memory: databases
	// are per connection
	db.SetMaxOpenConns(1)

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, repos: newRepositories(db), locks: newKeyedMutex()}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Repos returns repositories bound to the database, outside any transaction.
func (s *Store) Repos() Repositories {
	return s.repos
}

// InTx runs fn inside one transaction. Do not use the Store's own methods
// from fn; use the Repositories it receives.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, newRepositories(tx))
	})
}

// Lock serializes writers of one entity id. It returns the unlock func.
func (s *Store) Lock(id string) func() {
	return s.locks.lock(id)
}

// Checkpoint returns the server checkpoint of the last completed sync pass,
// or 0 before the first one.
func (s *Store) Checkpoint(ctx context.Context) (int64, error) {
	return s.repos.Metadata.Int64(ctx, metadata.KeySyncCheckpoint)
}

func (s *Store) SetCheckpoint(ctx context.Context, v int64) error {
	return s.repos.Metadata.SetInt64(ctx, metadata.KeySyncCheckpoint, v)
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
