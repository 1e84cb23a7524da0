package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/dbx"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/entries"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/media"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/recoverycodes"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/journalkeeper/internal/server/repositories/users"
)

// --- helpers ---

// newSQLMockDB returns a db whose transactions always begin and commit or
// roll back; the fakes below hold the data.
func newSQLMockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 32; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// --- users ---

type fakeUsersRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	clock   map[string]int64
	lookups int
	getErr  error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}, clock: map[string]int64{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.byID {
		if e.UserName == u.UserName {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *u
	cp.ID = "u" + string(rune('0'+len(f.byID)+1))
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if u.UserName == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) UpdateCredentials(ctx context.Context, id string, salt, verifier []byte, kdf cryptox.KDFParams, material api.KeyMaterial) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Salt, u.Verifier, u.KDF, u.Material = salt, verifier, kdf, material
	return nil
}

func (f *fakeUsersRepo) NextSyncClock(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock[userID]++
	return f.clock[userID], nil
}

// --- refresh tokens ---

type fakeRefreshRepo struct {
	mu        sync.Mutex
	tokens    map[string]*models.RefreshToken
	createErr error
	expired   int64
	revoked   []string
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, TokenHash: refreshtokens.HashToken(token), ExpiresAt: expiresAt}
	return nil
}

func (f *fakeRefreshRepo) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.tokens, token)
	return t, nil
}

func (f *fakeRefreshRepo) RevokeUser(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if t.UserID == userID {
			delete(f.tokens, k)
			n++
		}
	}
	f.revoked = append(f.revoked, userID)
	return n, nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return f.expired, nil
}

// --- recovery codes ---

type fakeRecoveryRepo struct {
	mu    sync.Mutex
	codes map[string]map[string]bool // user -> hash -> used
}

func newFakeRecoveryRepo() *fakeRecoveryRepo {
	return &fakeRecoveryRepo{codes: map[string]map[string]bool{}}
}

func (f *fakeRecoveryRepo) Replace(ctx context.Context, userID string, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := map[string]bool{}
	for _, h := range hashes {
		m[h] = false
	}
	f.codes[userID] = m
	return nil
}

func (f *fakeRecoveryRepo) Redeem(ctx context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	used, ok := f.codes[userID][hash]
	if !ok || used {
		return common.ErrorNotFound
	}
	f.codes[userID][hash] = true
	return nil
}

func (f *fakeRecoveryRepo) Remaining(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, used := range f.codes[userID] {
		if !used {
			n++
		}
	}
	return n, nil
}

// --- entries ---

type fakeEntriesRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.Entry
	nextID  int
	listErr error
}

func newFakeEntriesRepo() *fakeEntriesRepo {
	return &fakeEntriesRepo{byID: map[string]*models.Entry{}}
}

func (f *fakeEntriesRepo) Create(ctx context.Context, e *models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.UserID == e.UserID && x.ClientID == e.ClientID {
			return common.ErrorAlreadyExists
		}
	}
	f.nextID++
	e.ID = "srv-" + string(rune('0'+f.nextID))
	cp := *e
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeEntriesRepo) get(userID string, match func(*models.Entry) bool) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.byID {
		if x.UserID == userID && match(x) {
			cp := *x
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeEntriesRepo) GetByID(ctx context.Context, userID, id string) (*models.Entry, error) {
	return f.get(userID, func(e *models.Entry) bool { return e.ID == id })
}

func (f *fakeEntriesRepo) GetByClientID(ctx context.Context, userID, clientID string) (*models.Entry, error) {
	return f.get(userID, func(e *models.Entry) bool { return e.ClientID == clientID })
}

func (f *fakeEntriesRepo) Update(ctx context.Context, e *models.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.byID[e.ID]
	if !ok || x.UserID != e.UserID || x.DeletedAt != nil {
		return common.ErrorNotFound
	}
	cp := *e
	cp.ClientID = x.ClientID
	cp.CreatedAt = x.CreatedAt
	f.byID[e.ID] = &cp
	return nil
}

func (f *fakeEntriesRepo) SoftDelete(ctx context.Context, userID, id string, at time.Time, syncedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.byID[id]
	if !ok || x.UserID != userID || x.DeletedAt != nil {
		return common.ErrorNotFound
	}
	x.DeletedAt = &at
	x.SyncedAt = syncedAt
	return nil
}

func (f *fakeEntriesRepo) Restore(ctx context.Context, userID, id string, at time.Time, syncedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	x, ok := f.byID[id]
	if !ok || x.UserID != userID || x.DeletedAt == nil {
		return common.ErrorNotFound
	}
	x.DeletedAt = nil
	x.UpdatedAt = at
	x.SyncedAt = syncedAt
	return nil
}

func (f *fakeEntriesRepo) ListChanged(ctx context.Context, userID string, since int64, limit int) ([]*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Entry
	for _, x := range f.byID {
		if x.UserID == userID && x.SyncedAt > since {
			cp := *x
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SyncedAt != out[j].SyncedAt {
			return out[i].SyncedAt < out[j].SyncedAt
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- media ---

type fakeMediaRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Media
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{byID: map[string]*models.Media{}}
}

func (f *fakeMediaRepo) Create(ctx context.Context, m *models.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[m.ID]; ok {
		return common.ErrorAlreadyExists
	}
	m.CreatedAt = time.Now()
	cp := *m
	f.byID[m.ID] = &cp
	return nil
}

func (f *fakeMediaRepo) GetByID(ctx context.Context, id string) (*models.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMediaRepo) MarkUploaded(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.UserID != userID {
		return common.ErrorNotFound
	}
	m.Status = models.MediaStatusCompleted
	return nil
}

func (f *fakeMediaRepo) ListByEntry(ctx context.Context, userID, entryID string) ([]*models.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Media
	for _, m := range f.byID {
		if m.UserID == userID && m.EntryID == entryID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- manager ---

type fakeRepoManager struct {
	users    *fakeUsersRepo
	refresh  *fakeRefreshRepo
	recovery *fakeRecoveryRepo
	entries  *fakeEntriesRepo
	media    *fakeMediaRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:    newFakeUsersRepo(),
		refresh:  newFakeRefreshRepo(),
		recovery: newFakeRecoveryRepo(),
		entries:  newFakeEntriesRepo(),
		media:    newFakeMediaRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRepoManager) RecoveryCodes(db dbx.DBTX) recoverycodes.Repository { return m.recovery }
func (m *fakeRepoManager) Entries(db dbx.DBTX) entries.Repository             { return m.entries }
func (m *fakeRepoManager) Media(db dbx.DBTX) media.Repository                 { return m.media }
