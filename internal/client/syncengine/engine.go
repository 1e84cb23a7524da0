package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/client/client"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/journalkeeper/internal/client/store"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryBase   = 2 * time.Second
	DefaultRetryMax    = 5 * time.Minute
)

// farFuture makes every non-failed operation ready, ignoring backoff.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// errDeferred means a prerequisite (the parent entry's server id) is missing.
// The operation is left untouched and does not count as an attempt.
var errDeferred = errors.New("operation deferred")

// Remote is the part of the API client the engine uses.
type Remote interface {
	CreateEntry(ctx context.Context, e api.Entry) (api.Entry, error)
	UpdateEntry(ctx context.Context, e api.Entry) (api.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	RestoreEntry(ctx context.Context, id string) (api.Entry, error)
	Sync(ctx context.Context, req api.SyncRequest) (api.SyncResponse, error)
	RegisterMedia(ctx context.Context, req api.MediaRegisterRequest) (api.MediaRegisterResponse, error)
	UploadBlob(ctx context.Context, url string, data []byte) error
	CompleteMedia(ctx context.Context, id string) error
}

// Crypto validates downloaded entries before they are stored.
type Crypto interface {
	DecryptContent(env envelope.Envelope) (string, error)
	GenerateContentHash(plaintext string) string
}

type Config struct {
	// OwnerID is stamped on entries that arrive from the server.
	OwnerID     string
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration
	PageSize    int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.PageSize <= 0 {
		c.PageSize = api.DefaultSyncLimit
	}
	return c
}

type Engine struct {
	local  *store.Store
	remote Remote
	crypto Crypto
	cfg    Config
	log    logging.Logger
	now    func() time.Time

	running atomic.Bool

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

func New(local *store.Store, remote Remote, crypto Crypto, cfg Config, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop{}
	}
	return &Engine{
		local:  local,
		remote: remote,
		crypto: crypto,
		cfg:    cfg.withDefaults(),
		log:    log.With("component", "syncengine"),
		now:    models.Now,
	}
}

// pass carries the bookkeeping of one run.
type pass struct {
	rep        Report
	acked      map[string]struct{}
	conflicted []string
}

func newPass() *pass {
	return &pass{acked: make(map[string]struct{})}
}

// SyncFull uploads every queued operation regardless of backoff and
// downloads all remote changes from the beginning.
func (e *Engine) SyncFull(ctx context.Context) (Report, error) {
	return e.run(ctx, func(ctx context.Context, p *pass) error { return e.syncPass(ctx, p, true) })
}

// SyncIncremental uploads due operations and downloads changes since the
// last checkpoint.
func (e *Engine) SyncIncremental(ctx context.Context) (Report, error) {
	return e.run(ctx, func(ctx context.Context, p *pass) error { return e.syncPass(ctx, p, false) })
}

// UploadEntry uploads the queued operations of one entry now.
func (e *Engine) UploadEntry(ctx context.Context, entryID string) (Report, error) {
	return e.run(ctx, func(ctx context.Context, p *pass) error {
		ops, err := e.local.OperationsFor(ctx, entryID)
		if err != nil {
			return err
		}
		return e.upload(ctx, live(ops), p)
	})
}

func (e *Engine) run(ctx context.Context, fn func(context.Context, *pass) error) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{AlreadyRunning: true}, nil
	}
	defer e.running.Store(false)

	e.update(func(s *State) { s.IsSyncing = true })

	p := newPass()
	err := fn(ctx, p)
	e.finish(ctx, p.rep, err)
	return p.rep, err
}

func (e *Engine) syncPass(ctx context.Context, p *pass, full bool) error {
	readyAt := e.now()
	if full {
		readyAt = farFuture
	}
	ops, err := e.local.ReadyOperations(ctx, readyAt)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	if err := e.upload(ctx, ops, p); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := e.local.Checkpoint(ctx)
	if err != nil {
		return err
	}
	since := stored
	if full {
		since = 0
	}
	checkpoint, err := e.download(ctx, since, p)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.reconcile(ctx, p); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if checkpoint > stored {
		if err := e.local.SetCheckpoint(ctx, checkpoint); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return nil
}

// upload applies ops in order. Per-item failures are recorded on the
// operation and do not stop the loop; once an entity has a failing operation
// its later operations wait for the next pass.
func (e *Engine) upload(ctx context.Context, ops []*models.SyncOperation, p *pass) error {
	blocked := make(map[string]struct{})
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := p.acked[op.ID]; ok {
			continue
		}
		if _, ok := blocked[op.EntityID]; ok {
			continue
		}

		conflict, err := e.apply(ctx, op, p)
		switch {
		case err == nil:
			p.rep.Uploaded++
			if conflict {
				p.rep.Conflicts++
			}
		case errors.Is(err, errDeferred):
			blocked[op.EntityID] = struct{}{}
			p.rep.Skipped++
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, client.ErrUnauthorized):
			return err
		default:
			blocked[op.EntityID] = struct{}{}
			failed, rerr := e.recordFailure(ctx, op, err)
			if rerr != nil {
				return rerr
			}
			if failed {
				p.rep.Failed++
			}
			e.log.Warn(ctx, "upload failed", "op", op.ID, "kind", string(op.Kind),
				"entity", op.EntityID, "attempt", op.RetryCount, "state", string(op.State), "error", err)
		}
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, op *models.SyncOperation, p *pass) (bool, error) {
	switch op.EntityType {
	case models.EntityEntry:
		if op.Kind == models.OperationDelete {
			return false, e.pushDelete(ctx, op, p)
		}
		return e.pushEntry(ctx, op, p)
	case models.EntityMedia:
		return false, e.pushMedia(ctx, op, p)
	default:
		return false, fmt.Errorf("%w: unknown entity type %q", client.ErrRejected, op.EntityType)
	}
}

func (e *Engine) recordFailure(ctx context.Context, op *models.SyncOperation, cause error) (bool, error) {
	op.RetryCount++
	op.LastError = cause.Error()

	failed := !errors.Is(cause, common.ErrSyncTransient) || op.RetryCount >= e.cfg.MaxAttempts
	if failed {
		op.State = models.OperationFailed
	} else {
		op.State = models.OperationRetrying
		op.NextAttemptAt = e.now().Add(e.backoff(op.RetryCount))
	}

	unlock := e.local.Lock(op.EntityID)
	defer unlock()
	err := e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		if err := r.Operations.Update(ctx, op); err != nil {
			return err
		}
		if failed && op.EntityType == models.EntityEntry {
			return r.Entries.SetSyncStatus(ctx, op.EntityID, models.SyncStatusFailed)
		}
		return nil
	})
	return failed, err
}

// backoff is RetryBase * 2^(attempt-1), capped at RetryMax.
func (e *Engine) backoff(attempt int) time.Duration {
	d := e.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.cfg.RetryMax {
			return e.cfg.RetryMax
		}
	}
	return min(d, e.cfg.RetryMax)
}

func (e *Engine) pushEntry(ctx context.Context, op *models.SyncOperation, p *pass) (bool, error) {
	local, err := e.local.GetEntry(ctx, op.EntityID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, e.ack(ctx, op, p)
	}
	if err != nil {
		return false, err
	}
	if local.IsDeleted() {
		// the queued delete carries it from here
		return false, e.ack(ctx, op, p)
	}

	dto, err := local.ToAPI()
	if err != nil {
		return false, err
	}

	var saved api.Entry
	if local.RemoteID == "" {
		saved, err = e.remote.CreateEntry(ctx, dto)
	} else {
		saved, err = e.remote.UpdateEntry(ctx, dto)
	}

	var ce *client.ConflictError
	if errors.As(err, &ce) {
		e.log.Info(ctx, "sync conflict", "entry", local.ID, "local_updated_at", local.UpdatedAt,
			"remote_updated_at", ce.Remote.UpdatedAt, "resolution", "remote_wins")
		return true, e.acceptRemote(ctx, local, ce.Remote, p)
	}
	if err != nil {
		return false, err
	}

	unlock := e.local.Lock(local.ID)
	defer unlock()
	return false, e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		cur, err := r.Entries.GetByID(ctx, local.ID)
		if errors.Is(err, common.ErrorNotFound) {
			return e.ackTx(ctx, r, op, p)
		}
		if err != nil {
			return err
		}

		cur.RemoteID = saved.ID
		unchanged := cur.UpdatedAt.Equal(local.UpdatedAt) && !cur.IsDeleted()
		if unchanged {
			cur.SyncStatus = models.SyncStatusSynced
		}
		if err := r.Entries.CreateOrUpdate(ctx, cur); err != nil {
			return err
		}
		if !unchanged {
			return e.ackTx(ctx, r, op, p)
		}

		// the uploaded snapshot satisfies every queued create/update
		ops, err := r.Operations.ForEntity(ctx, local.ID)
		if err != nil {
			return err
		}
		for _, o := range ops {
			if o.Kind != models.OperationDelete {
				if err := e.ackTx(ctx, r, o, p); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// acceptRemote replaces the local entry with the server copy after the
// server rejected an update as older.
func (e *Engine) acceptRemote(ctx context.Context, local *models.Entry, remote api.Entry, p *pass) error {
	incoming, err := models.EntryFromAPI(remote, local.ID, local.OwnerID)
	if err != nil {
		return fmt.Errorf("%w: server copy: %v", client.ErrRejected, err)
	}
	if err := e.verify(incoming); err != nil {
		return fmt.Errorf("%w: server copy: %v", client.ErrRejected, err)
	}

	unlock := e.local.Lock(local.ID)
	defer unlock()
	return e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		if err := r.Entries.CreateOrUpdate(ctx, incoming); err != nil {
			return err
		}
		return e.dropTx(ctx, r, local.ID, p)
	})
}

func (e *Engine) pushDelete(ctx context.Context, op *models.SyncOperation, p *pass) error {
	var remoteID string
	local, err := e.local.GetEntry(ctx, op.EntityID)
	switch {
	case err == nil:
		remoteID = local.RemoteID
	case errors.Is(err, common.ErrorNotFound):
		remoteID = payloadRemoteID(op)
	default:
		return err
	}

	if remoteID != "" {
		if err := e.remote.DeleteEntry(ctx, remoteID); err != nil && !errors.Is(err, client.ErrNotFound) {
			return err
		}
	}

	unlock := e.local.Lock(op.EntityID)
	defer unlock()
	revived := false
	err = e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		cur, err := r.Entries.GetByID(ctx, op.EntityID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if cur != nil && !cur.IsDeleted() {
			// restored while the delete was in flight
			revived = true
			return e.ackTx(ctx, r, op, p)
		}
		if err := r.Media.DeleteByEntryID(ctx, op.EntityID); err != nil {
			return err
		}
		if err := r.Entries.Purge(ctx, op.EntityID); err != nil {
			return err
		}
		if err := e.rememberDeleted(ctx, r, op.EntityID, remoteID); err != nil {
			return err
		}
		return e.dropTx(ctx, r, op.EntityID, p)
	})
	if err != nil || !revived || remoteID == "" {
		return err
	}
	if _, err := e.remote.RestoreEntry(ctx, remoteID); err != nil && !errors.Is(err, client.ErrRejected) {
		return err
	}
	return nil
}

func (e *Engine) rememberDeleted(ctx context.Context, r store.Repositories, localID, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	return r.Metadata.Set(ctx, metadata.DeletedEntryKey(localID), []byte(remoteID))
}

// RestoreEntry undeletes an entry whose local row was purged after its
// delete reached the server: the server copy is restored and stored again
// under the same local id. common.ErrorNotFound means no server copy is known.
func (e *Engine) RestoreEntry(ctx context.Context, localID string) error {
	remoteID, err := e.local.Repos().Metadata.Get(ctx, metadata.DeletedEntryKey(localID))
	if err != nil {
		return err
	}
	re, err := e.remote.RestoreEntry(ctx, string(remoteID))
	if err != nil {
		return fmt.Errorf("restore %s: %w", localID, err)
	}
	if re.ClientID == "" {
		re.ClientID = localID
	}

	p := newPass()
	if err := e.merge(ctx, re, p); err != nil {
		return err
	}
	if p.rep.Skipped > 0 {
		return fmt.Errorf("%w: restored entry %s did not verify", common.ErrDecryptionFailed, localID)
	}
	e.log.Info(ctx, "entry restored", "entry", localID, "remote_id", re.ID)
	return nil
}

func (e *Engine) pushMedia(ctx context.Context, op *models.SyncOperation, p *pass) error {
	m, err := e.local.GetMedia(ctx, op.EntityID)
	if errors.Is(err, common.ErrorNotFound) {
		return e.ack(ctx, op, p)
	}
	if err != nil {
		return err
	}
	if op.Kind == models.OperationDelete || m.RemoteURL != "" {
		return e.ack(ctx, op, p)
	}

	owner, err := e.local.GetEntry(ctx, m.EntryID)
	if errors.Is(err, common.ErrorNotFound) {
		return e.ack(ctx, op, p)
	}
	if err != nil {
		return err
	}
	if owner.RemoteID == "" {
		return errDeferred
	}

	reg, err := e.remote.RegisterMedia(ctx, api.MediaRegisterRequest{
		ClientID: m.ID,
		EntryID:  owner.RemoteID,
		MimeType: m.MimeType,
		Size:     int64(len(m.Blob)),
		Width:    m.Width,
		Height:   m.Height,
		Duration: m.Duration,
	})
	if err != nil {
		return err
	}
	if err := e.remote.UploadBlob(ctx, reg.UploadURL, m.Blob); err != nil {
		return err
	}
	if err := e.remote.CompleteMedia(ctx, reg.ID); err != nil {
		return err
	}

	unlock := e.local.Lock(m.ID)
	defer unlock()
	return e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		if err := r.Media.MarkUploaded(ctx, m.ID, reg.ID, reg.ObjectKey); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return e.ackTx(ctx, r, op, p)
	})
}

func (e *Engine) download(ctx context.Context, since int64, p *pass) (int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return since, err
		}
		resp, err := e.remote.Sync(ctx, api.SyncRequest{Since: since, Limit: e.cfg.PageSize})
		if err != nil {
			return since, fmt.Errorf("download: %w", err)
		}

		for _, re := range resp.Entries {
			if err := ctx.Err(); err != nil {
				return since, err
			}
			if err := e.merge(ctx, re, p); err != nil {
				return since, err
			}
		}
		for _, id := range resp.DeletedIDs {
			if err := ctx.Err(); err != nil {
				return since, err
			}
			if err := e.applyRemoteDelete(ctx, id, p); err != nil {
				return since, err
			}
		}

		if !resp.HasMore {
			return max(since, resp.Checkpoint), nil
		}
		if resp.Checkpoint <= since {
			return since, fmt.Errorf("download: server did not advance checkpoint past %d", since)
		}
		since = resp.Checkpoint
	}
}

// merge applies one downloaded entry. Only local store failures and a locked
// encryption service are returned; anything wrong with the entry itself is
// logged and the entry skipped.
func (e *Engine) merge(ctx context.Context, re api.Entry, p *pass) error {
	localID := re.ClientID
	if localID == "" {
		localID = re.ID
	}
	if found, err := e.findLocal(ctx, re); err != nil {
		return err
	} else if found != nil {
		localID = found.ID
	}

	incoming, err := models.EntryFromAPI(re, localID, e.cfg.OwnerID)
	if err != nil {
		e.log.Error(ctx, "skipping malformed remote entry", "remote_id", re.ID, "error", err)
		p.rep.Skipped++
		return nil
	}
	if err := e.verify(incoming); err != nil {
		if errors.Is(err, common.ErrNotInitialized) {
			return err
		}
		e.log.Error(ctx, "skipping undecryptable remote entry", "remote_id", re.ID, "error", err)
		p.rep.Skipped++
		return nil
	}

	unlock := e.local.Lock(localID)
	defer unlock()

	local, err := e.findLocal(ctx, re)
	if err != nil {
		return err
	}

	decision := Resolve(local, incoming)
	return e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		switch decision {
		case Insert:
			p.rep.Downloaded++
			if err := r.Entries.CreateOrUpdate(ctx, incoming); err != nil {
				return err
			}
			return r.Metadata.Delete(ctx, metadata.DeletedEntryKey(incoming.ID))

		case ApplyRemote:
			incoming.OwnerID = local.OwnerID
			if err := r.Entries.CreateOrUpdate(ctx, incoming); err != nil {
				return err
			}
			p.rep.Downloaded++
			return e.dropTx(ctx, r, local.ID, p)

		default:
			if local.RemoteID == "" {
				local.RemoteID = re.ID
			}
			local.SyncStatus = models.SyncStatusConflict
			if err := r.Entries.CreateOrUpdate(ctx, local); err != nil {
				return err
			}
			if err := e.ensureReupload(ctx, r, local); err != nil {
				return err
			}
			p.rep.Conflicts++
			p.conflicted = append(p.conflicted, local.ID)
			e.log.Info(ctx, "sync conflict", "entry", local.ID, "local_updated_at", local.UpdatedAt,
				"remote_updated_at", incoming.UpdatedAt, "resolution", "local_wins")
			return nil
		}
	})
}

func (e *Engine) findLocal(ctx context.Context, re api.Entry) (*models.Entry, error) {
	if re.ID != "" {
		local, err := e.local.GetEntryByRemoteID(ctx, re.ID)
		if err == nil {
			return local, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}
	if re.ClientID != "" {
		local, err := e.local.GetEntry(ctx, re.ClientID)
		if err == nil {
			return local, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// ensureReupload makes sure a live upload operation exists for a conflict
// the local copy won.
func (e *Engine) ensureReupload(ctx context.Context, r store.Repositories, local *models.Entry) error {
	ops, err := r.Operations.ForEntity(ctx, local.ID)
	if err != nil {
		return err
	}
	kind := models.OperationUpdate
	if local.IsDeleted() {
		kind = models.OperationDelete
	}
	for _, op := range ops {
		if op.State != models.OperationFailed && op.Kind == kind {
			return nil
		}
	}
	now := e.now()
	return r.Operations.Enqueue(ctx, &models.SyncOperation{
		ID:            newID(),
		Kind:          kind,
		EntityType:    models.EntityEntry,
		EntityID:      local.ID,
		CreatedAt:     now,
		State:         models.OperationPending,
		NextAttemptAt: now,
	})
}

func (e *Engine) applyRemoteDelete(ctx context.Context, remoteID string, p *pass) error {
	local, err := e.local.GetEntryByRemoteID(ctx, remoteID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	unlock := e.local.Lock(local.ID)
	defer unlock()
	err = e.local.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		if err := r.Media.DeleteByEntryID(ctx, local.ID); err != nil {
			return err
		}
		if err := r.Entries.Purge(ctx, local.ID); err != nil {
			return err
		}
		if err := e.rememberDeleted(ctx, r, local.ID, remoteID); err != nil {
			return err
		}
		return e.dropTx(ctx, r, local.ID, p)
	})
	if err == nil {
		p.rep.Deleted++
	}
	return err
}

// reconcile uploads the entries the local side won during download.
func (e *Engine) reconcile(ctx context.Context, p *pass) error {
	if len(p.conflicted) == 0 {
		return nil
	}
	var ops []*models.SyncOperation
	for _, id := range p.conflicted {
		list, err := e.local.OperationsFor(ctx, id)
		if err != nil {
			return err
		}
		ops = append(ops, live(list)...)
	}
	return e.upload(ctx, ops, p)
}

// verify decrypts the entry and checks the content hash. The plaintext is
// discarded. Every entry carries content, so a missing hash is malformed.
func (e *Engine) verify(en *models.Entry) error {
	if en.ContentHash == "" {
		return fmt.Errorf("%w: entry %s has no content hash", common.ErrMalformedEnvelope, en.ID)
	}
	pt, err := e.crypto.DecryptContent(en.Content)
	if err != nil {
		return err
	}
	if e.crypto.GenerateContentHash(pt) != en.ContentHash {
		return fmt.Errorf("%w: content hash mismatch", common.ErrDecryptionFailed)
	}
	if en.Title != nil {
		if _, err := e.crypto.DecryptContent(*en.Title); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ack(ctx context.Context, op *models.SyncOperation, p *pass) error {
	if err := e.local.CompleteOperation(ctx, op.ID); err != nil {
		return err
	}
	p.acked[op.ID] = struct{}{}
	return nil
}

func (e *Engine) ackTx(ctx context.Context, r store.Repositories, op *models.SyncOperation, p *pass) error {
	if err := r.Operations.Complete(ctx, op.ID); err != nil {
		return err
	}
	p.acked[op.ID] = struct{}{}
	return nil
}

// dropTx removes every queued operation of an entity and remembers them as
// handled for the rest of the pass.
func (e *Engine) dropTx(ctx context.Context, r store.Repositories, entityID string, p *pass) error {
	ops, err := r.Operations.ForEntity(ctx, entityID)
	if err != nil {
		return err
	}
	for _, op := range ops {
		p.acked[op.ID] = struct{}{}
	}
	return r.Operations.DropForEntity(ctx, entityID)
}

func live(ops []*models.SyncOperation) []*models.SyncOperation {
	out := ops[:0:0]
	for _, op := range ops {
		if op.State != models.OperationFailed {
			out = append(out, op)
		}
	}
	return out
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn to be called after every state change. fn runs on
// the syncing goroutine and must not block.
func (e *Engine) Subscribe(fn func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// RefreshPending recounts the queue, e.g. after a local edit.
func (e *Engine) RefreshPending(ctx context.Context) {
	n, err := e.local.PendingCount(ctx)
	if err != nil {
		e.log.Warn(ctx, "pending count failed", "error", err)
		return
	}
	e.update(func(s *State) { s.PendingCount = n })
}

func (e *Engine) update(fn func(*State)) {
	e.mu.Lock()
	fn(&e.state)
	st := e.state
	listeners := append([]func(State){}, e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		l(st)
	}
}

func (e *Engine) finish(ctx context.Context, rep Report, err error) {
	// the pass context may be gone already
	pending, perr := e.local.PendingCount(context.WithoutCancel(ctx))
	if perr != nil {
		e.log.Warn(ctx, "pending count failed", "error", perr)
	}

	e.update(func(s *State) {
		s.IsSyncing = false
		if perr == nil {
			s.PendingCount = pending
		}
		switch {
		case err != nil:
			s.LastError = err.Error()
		case rep.Failed > 0:
			s.LastError = fmt.Sprintf("%d operation(s) failed permanently", rep.Failed)
			s.LastSyncAt = e.now()
		default:
			s.LastError = ""
			s.LastSyncAt = e.now()
		}
	})

	if err != nil {
		e.log.Error(ctx, "sync pass failed", "error", err)
		return
	}
	e.log.Info(ctx, "sync pass done", "uploaded", rep.Uploaded, "downloaded", rep.Downloaded,
		"deleted", rep.Deleted, "conflicts", rep.Conflicts, "skipped", rep.Skipped, "failed", rep.Failed)
}

// payloadRemoteID reads the server id from the snapshot stored with a delete
// operation, for entries already purged locally.
func payloadRemoteID(op *models.SyncOperation) string {
	if len(op.Payload) == 0 {
		return ""
	}
	var snap api.Entry
	if err := json.Unmarshal(op.Payload, &snap); err != nil {
		return ""
	}
	return snap.ID
}

func newID() string {
	return uuid.NewString()
}
