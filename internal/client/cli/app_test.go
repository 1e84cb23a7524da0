package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/client"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/services"
	"github.com/dmitrijs2005/journalkeeper/internal/client/syncengine"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	registerCodes []string
	registerTier  models.Tier
	registerErr   error

	onlineErr  error
	offlineErr error
	recoverErr error
	passwdErr  error
	serverDown atomic.Bool

	exported    []byte
	imported    []byte
	importPass  string
	logoutCalls int
	cleared     bool
}

func (f *fakeAuth) Register(_ context.Context, _, _ string, tier models.Tier) ([]string, error) {
	f.registerTier = tier
	return f.registerCodes, f.registerErr
}
func (f *fakeAuth) OnlineLogin(_ context.Context, u, _ string) (*services.Session, error) {
	if f.onlineErr != nil {
		return nil, f.onlineErr
	}
	return &services.Session{UserID: "u-1", Username: u, Tier: models.TierEndToEnd, Online: true}, nil
}
func (f *fakeAuth) OfflineLogin(_ context.Context, u, _ string) (*services.Session, error) {
	if f.offlineErr != nil {
		return nil, f.offlineErr
	}
	return &services.Session{UserID: "u-1", Username: u, Tier: models.TierEndToEnd}, nil
}
func (f *fakeAuth) Recover(_ context.Context, u, _ string) (*services.Session, error) {
	if f.recoverErr != nil {
		return nil, f.recoverErr
	}
	return &services.Session{UserID: "u-1", Username: u, Tier: models.TierEndToEnd, Online: true}, nil
}
func (f *fakeAuth) ChangePassword(context.Context, string, string) error { return f.passwdErr }
func (f *fakeAuth) ExportKeys(context.Context) ([]byte, error)           { return f.exported, nil }
func (f *fakeAuth) ImportKeys(_ context.Context, data []byte, pw string) error {
	f.imported, f.importPass = data, pw
	return nil
}
func (f *fakeAuth) Logout(context.Context) { f.logoutCalls++ }
func (f *fakeAuth) Ping(context.Context) error {
	if f.serverDown.Load() {
		return client.ErrUnavailable
	}
	return nil
}
func (f *fakeAuth) Close(context.Context) error            { return nil }
func (f *fakeAuth) ClearOfflineData(context.Context) error { f.cleared = true; return nil }

type fakeES struct {
	created  services.EntryInput
	updated  services.EntryInput
	deleted  string
	restored string
	entry    *services.EntryView
	list     []*services.EntryView
	filter   models.EntryFilter
	media    []*models.Media
	mediaIn  []byte
	mediaOut []byte
	report   syncengine.Report
	syncKind string
	state    syncengine.State
	failed   []*models.SyncOperation
	err      error
}

func (f *fakeES) CreateEntry(_ context.Context, in services.EntryInput) (*services.EntryView, error) {
	f.created = in
	return &services.EntryView{ID: "new-id"}, f.err
}
func (f *fakeES) UpdateEntry(_ context.Context, _ string, in services.EntryInput) (*services.EntryView, error) {
	f.updated = in
	return f.entry, f.err
}
func (f *fakeES) DeleteEntry(_ context.Context, id string) error { f.deleted = id; return f.err }
func (f *fakeES) RestoreEntry(_ context.Context, id string) (*services.EntryView, error) {
	f.restored = id
	return &services.EntryView{ID: id}, f.err
}
func (f *fakeES) GetEntry(context.Context, string) (*services.EntryView, error) {
	if f.entry == nil {
		return nil, common.ErrorNotFound
	}
	return f.entry, nil
}
func (f *fakeES) GetAllEntries(context.Context) ([]*services.EntryView, error) { return f.list, f.err }
func (f *fakeES) QueryEntries(_ context.Context, flt models.EntryFilter) ([]*services.EntryView, error) {
	f.filter = flt
	return f.list, f.err
}
func (f *fakeES) AddMedia(_ context.Context, entryID string, data []byte, meta services.MediaMeta) (*models.Media, error) {
	f.mediaIn = data
	return &models.Media{ID: "m-1", EntryID: entryID, MimeType: meta.MimeType, Size: int64(len(data))}, f.err
}
func (f *fakeES) GetMedia(context.Context, string) (*models.Media, []byte, error) {
	return &models.Media{ID: "m-1"}, f.mediaOut, f.err
}
func (f *fakeES) ListMedia(context.Context, string) ([]*models.Media, error) { return f.media, f.err }
func (f *fakeES) SyncFull(context.Context) (syncengine.Report, error) {
	f.syncKind = "full"
	return f.report, f.err
}
func (f *fakeES) SyncIncremental(context.Context) (syncengine.Report, error) {
	f.syncKind = "incremental"
	return f.report, f.err
}
func (f *fakeES) UploadEntry(_ context.Context, id string) (syncengine.Report, error) {
	f.syncKind = "entry " + id
	return f.report, f.err
}
func (f *fakeES) FailedOperations(context.Context) ([]*models.SyncOperation, error) {
	return f.failed, nil
}
func (f *fakeES) State() syncengine.State { return f.state }

type testApp struct {
	*App
	auth    *fakeAuth
	es      *fakeES
	out     *bytes.Buffer
	stopped int
	opened  []*services.Session
}

func newTestApp(t *testing.T, input ...string) *testApp {
	t.Helper()
	color.NoColor = true

	ta := &testApp{auth: &fakeAuth{}, es: &fakeES{}, out: &bytes.Buffer{}}
	ta.App = &App{
		log:    logging.Nop{},
		auth:   ta.auth,
		reader: rdr(strings.Join(input, "\n") + "\n"),
		out:    ta.out,
	}
	ta.App.open = func(_ context.Context, s *services.Session) (services.EntryService, func(), func()) {
		ta.opened = append(ta.opened, s)
		return ta.es, func() { ta.stopped++ }, nil
	}

	origText, origPw := getSimpleText, getPassword
	t.Cleanup(func() { getSimpleText, getPassword = origText, origPw })
	getPassword = func(string, io.Writer) (string, error) {
		return "pw", nil
	}
	return ta
}

func (ta *testApp) login(t *testing.T) {
	t.Helper()
	ta.startSession(context.Background(), &services.Session{UserID: "u-1", Username: "alice"}, ModeOnline)
}

func TestLogin_Online(t *testing.T) {
	ta := newTestApp(t, "alice")

	require.NoError(t, ta.Login(context.Background(), nil))

	assert.True(t, ta.isLoggedIn())
	assert.Equal(t, ModeOnline, ta.Mode())
	require.Len(t, ta.opened, 1)
	assert.Equal(t, "u-1", ta.opened[0].UserID)
	assert.Equal(t, "(alice online)", ta.getStatus())
	assert.Contains(t, ta.out.String(), "Logged in as alice")
}

func TestLogin_FallsBackToOffline(t *testing.T) {
	ta := newTestApp(t, "alice")
	ta.auth.onlineErr = client.ErrUnavailable

	require.NoError(t, ta.Login(context.Background(), nil))

	assert.True(t, ta.isLoggedIn())
	assert.Equal(t, ModeOffline, ta.Mode())
	assert.Contains(t, ta.out.String(), "Logged in offline as alice")
}

func TestLogin_OfflineFailsDisablesMode(t *testing.T) {
	ta := newTestApp(t, "alice")
	ta.auth.onlineErr = client.ErrUnavailable
	ta.auth.offlineErr = client.ErrLocalDataNotAvailable

	err := ta.Login(context.Background(), nil)
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)

	assert.False(t, ta.isLoggedIn())
	assert.Equal(t, ModeDisabled, ta.Mode())
}

func TestLogin_WrongPasswordDoesNotTryOffline(t *testing.T) {
	ta := newTestApp(t, "alice")
	ta.auth.onlineErr = client.ErrUnauthorized
	ta.auth.offlineErr = errors.New("must not be called")

	err := ta.Login(context.Background(), nil)
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Contains(t, ta.out.String(), "login unsuccessful")
	assert.Empty(t, ta.opened)
}

func TestLogin_KeysNotOnDevice(t *testing.T) {
	ta := newTestApp(t, "alice")
	ta.auth.onlineErr = services.ErrKeysNotOnDevice

	require.ErrorIs(t, ta.Login(context.Background(), nil), services.ErrKeysNotOnDevice)
	assert.Contains(t, ta.out.String(), "importkeys")
}

func TestRegister_PrintsRecoveryCodes(t *testing.T) {
	ta := newTestApp(t, "alice", "E2E")
	ta.auth.registerCodes = []string{"AAAA-BBBB-CCCC-DDDD"}

	require.NoError(t, ta.Register(context.Background(), nil))

	assert.Equal(t, models.TierEndToEnd, ta.auth.registerTier)
	assert.Contains(t, ta.out.String(), "AAAA-BBBB-CCCC-DDDD")
	assert.False(t, ta.isLoggedIn())
}

func TestRegister_BadTier(t *testing.T) {
	ta := newTestApp(t, "alice", "cloud")

	require.Error(t, ta.Register(context.Background(), nil))
	assert.Empty(t, ta.auth.registerTier)
}

func TestRecover_StartsSession(t *testing.T) {
	ta := newTestApp(t, "alice", "aaaa-bbbb-cccc-dddd")

	require.NoError(t, ta.Recover(context.Background(), nil))
	assert.True(t, ta.isLoggedIn())
	assert.Contains(t, ta.out.String(), "importkeys")
}

func TestChangePassword_Mismatch(t *testing.T) {
	ta := newTestApp(t)
	answers := []string{"old", "new", "other"}
	getPassword = func(string, io.Writer) (string, error) {
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}

	require.Error(t, ta.ChangePassword(context.Background(), nil))
	assert.Contains(t, ta.out.String(), "passwords do not match")
}

func TestExportImportKeys(t *testing.T) {
	ta := newTestApp(t)
	ta.auth.exported = []byte(`{"tier":"e2e"}`)
	path := filepath.Join(t.TempDir(), "keys.json")

	require.NoError(t, ta.ExportKeys(context.Background(), []string{path}))
	require.NoError(t, ta.ImportKeys(context.Background(), []string{path}))

	assert.Equal(t, ta.auth.exported, ta.auth.imported)
	assert.Equal(t, "pw", ta.auth.importPass)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestLogout(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)

	require.NoError(t, ta.Logout(context.Background(), []string{"forget"}))

	assert.False(t, ta.isLoggedIn())
	assert.Equal(t, 1, ta.auth.logoutCalls)
	assert.Equal(t, 1, ta.stopped)
	assert.True(t, ta.auth.cleared)
}

func TestSetMode_ChangesAndReportsOnce(t *testing.T) {
	ta := newTestApp(t)
	var triggered int
	ta.trigger = func() { triggered++ }

	ta.setMode(ModeOnline)
	assert.Equal(t, ModeOnline, ta.Mode())
	assert.Contains(t, ta.out.String(), "Switched to online mode")
	assert.Equal(t, 1, triggered)

	ta.out.Reset()
	ta.setMode(ModeOnline)
	assert.Empty(t, ta.out.String())
	assert.Equal(t, 1, triggered)

	ta.setMode(ModeOffline)
	assert.Contains(t, ta.out.String(), "Switched to offline mode")
	assert.Equal(t, 1, triggered)
}

func TestStartOnlineStatusWatcher(t *testing.T) {
	ta := newTestApp(t)
	ta.login(t)
	ta.auth.serverDown.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ta.StartOnlineStatusWatcher(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return ta.Mode() == ModeOffline }, time.Second, 5*time.Millisecond)

	ta.auth.serverDown.Store(false)
	require.Eventually(t, func() bool { return ta.Mode() == ModeOnline }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
