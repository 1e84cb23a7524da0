package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/client/client"
	"github.com/dmitrijs2005/journalkeeper/internal/client/encryption"
	"github.com/dmitrijs2005/journalkeeper/internal/client/keystore"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/journalkeeper/internal/client/store"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake server ----

type fakeUser struct {
	id       string
	salt     []byte
	verifier []byte
	kdf      cryptox.KDFParams
	material api.KeyMaterial
	used     map[string]bool
}

// fakeAuthServer keeps accounts in memory and checks verifiers the way the
// real server does.
type fakeAuthServer struct {
	users   map[string]*fakeUser
	current *fakeUser

	RegisterErr error
	PingErr     error
	CloseErr    error
	GetSaltErr  error
}

func newFakeAuthServer() *fakeAuthServer {
	return &fakeAuthServer{users: map[string]*fakeUser{}}
}

func (f *fakeAuthServer) Ping(context.Context) error { return f.PingErr }
func (f *fakeAuthServer) Close() error               { return f.CloseErr }

func (f *fakeAuthServer) Register(_ context.Context, req api.RegisterRequest) error {
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	if _, ok := f.users[req.Username]; ok {
		return client.ErrRejected
	}
	f.users[req.Username] = &fakeUser{
		id: "user-" + req.Username, salt: req.Salt, verifier: req.Verifier, kdf: req.KDF,
		material: req.Material, used: map[string]bool{},
	}
	return nil
}

func (f *fakeAuthServer) GetSalt(_ context.Context, username string) (api.SaltResponse, error) {
	if f.GetSaltErr != nil {
		return api.SaltResponse{}, f.GetSaltErr
	}
	u, ok := f.users[username]
	if !ok {
		return api.SaltResponse{Salt: bytes.Repeat([]byte{1}, cryptox.SaltSize), KDF: cryptox.MinKDFParams}, nil
	}
	return api.SaltResponse{Salt: u.salt, KDF: u.kdf}, nil
}

func (f *fakeAuthServer) Login(_ context.Context, username string, verifier []byte) (api.TokenResponse, error) {
	u, ok := f.users[username]
	if !ok || !bytes.Equal(u.verifier, verifier) {
		return api.TokenResponse{}, client.ErrUnauthorized
	}
	f.current = u
	return api.TokenResponse{UserID: u.id, AccessToken: "at", RefreshToken: "rt"}, nil
}

func (f *fakeAuthServer) Recover(_ context.Context, username, code string) (api.TokenResponse, error) {
	u, ok := f.users[username]
	if !ok {
		return api.TokenResponse{}, client.ErrUnauthorized
	}
	h := cryptox.HashRecoveryCode(code)
	for _, stored := range u.material.RecoveryHashes {
		if stored == h && !u.used[h] {
			u.used[h] = true
			f.current = u
			return api.TokenResponse{UserID: u.id, AccessToken: "at", RefreshToken: "rt"}, nil
		}
	}
	return api.TokenResponse{}, client.ErrUnauthorized
}

func (f *fakeAuthServer) GetKeys(context.Context) (api.KeyMaterial, error) {
	if f.current == nil {
		return api.KeyMaterial{}, client.ErrUnauthorized
	}
	return f.current.material, nil
}

func (f *fakeAuthServer) PutKeys(_ context.Context, req api.UpdateKeysRequest) error {
	if f.current == nil {
		return client.ErrUnauthorized
	}
	if req.Material.Tier != f.current.material.Tier {
		return client.ErrRejected
	}
	f.current.salt, f.current.verifier, f.current.kdf = req.Salt, req.Verifier, req.KDF
	f.current.material = req.Material
	return nil
}

// ---- helpers ----

type authDevice struct {
	store *store.Store
	keys  *encryption.Service
	auth  AuthService
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newAuthDevice(t *testing.T, srv AuthClient) *authDevice {
	t.Helper()
	st := openStore(t)
	keys := encryption.NewService(keystore.NewMetadataKeyStore(st.Repos().Metadata),
		encryption.WithKDFParams(cryptox.MinKDFParams))
	ks := keystore.NewMetadataKeyStore(st.Repos().Metadata)
	return &authDevice{
		store: st,
		keys:  keys,
		auth:  NewAuthService(srv, st, ks, keys, WithAuthKDF(cryptox.MinKDFParams)),
	}
}

// ---- tests ----

func TestRegister_EndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)

	codes, err := d.auth.Register(ctx, "alice", "pw", models.TierEndToEnd)
	require.NoError(t, err)
	require.Len(t, codes, cryptox.RecoveryCodeCount)
	assert.False(t, d.keys.Initialized(), "session starts locked")

	u := srv.users["alice"]
	require.NotNil(t, u)
	assert.Equal(t, "e2e", u.material.Tier)
	assert.Len(t, u.material.PublicKey, 32)
	assert.Len(t, u.material.RecoveryHashes, cryptox.RecoveryCodeCount)
	assert.Empty(t, u.material.WrappedKey, "private key stays on the device")
	assert.Equal(t, cryptox.HashRecoveryCode(codes[0]), u.material.RecoveryHashes[0])
}

func TestRegister_ErrorFromClient(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	srv.RegisterErr = client.ErrUnavailable
	d := newAuthDevice(t, srv)

	_, err := d.auth.Register(ctx, "alice", "pw", models.TierUserControlled)
	require.ErrorIs(t, err, common.ErrSyncTransient)

	_, err = d.store.Repos().Metadata.Get(ctx, metadata.KeyKeyMaterial)
	require.ErrorIs(t, err, common.ErrorNotFound, "generated keys are discarded")
}

func TestOnlineLogin_Success_SavesOfflineData(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)

	_, err := d.auth.Register(ctx, "alice", "pw", models.TierEndToEnd)
	require.NoError(t, err)

	sess, err := d.auth.OnlineLogin(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, &Session{UserID: "user-alice", Username: "alice", Tier: models.TierEndToEnd, Online: true}, sess)
	assert.True(t, d.keys.Initialized())

	repo := d.store.Repos().Metadata
	owner, err := repo.Get(ctx, metadata.KeyOwnerID)
	require.NoError(t, err)
	assert.Equal(t, "user-alice", string(owner))
	verifier, err := repo.Get(ctx, metadata.KeyVerifier)
	require.NoError(t, err)
	assert.Equal(t, srv.users["alice"].verifier, verifier)
}

func TestOnlineLogin_GetSaltError_Wrapped(t *testing.T) {
	srv := newFakeAuthServer()
	srv.GetSaltErr = errors.New("network down")
	d := newAuthDevice(t, srv)

	_, err := d.auth.OnlineLogin(context.Background(), "u", "p")
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "get salt error:"))
}

func TestOnlineLogin_LoginError_Wrapped(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)
	_, err := d.auth.Register(ctx, "alice", "pw", models.TierUserControlled)
	require.NoError(t, err)

	_, err = d.auth.OnlineLogin(ctx, "alice", "wrong")
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.True(t, strings.HasPrefix(err.Error(), "login error:"))

	_, err = d.auth.OnlineLogin(ctx, "nobody", "pw")
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestOnlineLogin_UserControlledSecondDevice(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	first, second := newAuthDevice(t, srv), newAuthDevice(t, srv)

	_, err := first.auth.Register(ctx, "bob", "pw", models.TierUserControlled)
	require.NoError(t, err)
	_, err = first.auth.OnlineLogin(ctx, "bob", "pw")
	require.NoError(t, err)
	env, err := first.keys.EncryptContent("shared")
	require.NoError(t, err)

	sess, err := second.auth.OnlineLogin(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, models.TierUserControlled, sess.Tier)

	pt, err := second.keys.DecryptContent(env)
	require.NoError(t, err)
	assert.Equal(t, "shared", pt)
}

func TestOnlineLogin_EndToEndSecondDeviceNeedsImport(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	first, second := newAuthDevice(t, srv), newAuthDevice(t, srv)

	_, err := first.auth.Register(ctx, "carol", "pw", models.TierEndToEnd)
	require.NoError(t, err)
	_, err = first.auth.OnlineLogin(ctx, "carol", "pw")
	require.NoError(t, err)
	env, err := first.keys.EncryptContent("private")
	require.NoError(t, err)

	_, err = second.auth.OnlineLogin(ctx, "carol", "pw")
	require.ErrorIs(t, err, ErrKeysNotOnDevice)
	assert.False(t, second.keys.Initialized())

	exported, err := first.auth.ExportKeys(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, second.auth.ImportKeys(ctx, exported, "wrong"), common.ErrAuthenticationFailed)
	require.NoError(t, second.auth.ImportKeys(ctx, exported, "pw"))

	_, err = second.auth.OnlineLogin(ctx, "carol", "pw")
	require.NoError(t, err)
	pt, err := second.keys.DecryptContent(env)
	require.NoError(t, err)
	assert.Equal(t, "private", pt)
}

func TestOnlineLogin_OtherUserClearsKeys(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)
	other := newAuthDevice(t, srv)

	_, err := d.auth.Register(ctx, "alice", "pw", models.TierEndToEnd)
	require.NoError(t, err)
	_, err = other.auth.Register(ctx, "bob", "pw2", models.TierUserControlled)
	require.NoError(t, err)

	sess, err := d.auth.OnlineLogin(ctx, "bob", "pw2")
	require.NoError(t, err)
	assert.Equal(t, models.TierUserControlled, sess.Tier)

	name, err := d.store.Repos().Metadata.Get(ctx, metadata.KeyUsername)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(name))
}

func TestOfflineLogin(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)

	_, err := d.auth.OfflineLogin(ctx, "alice", "pw")
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)

	_, err = d.auth.Register(ctx, "alice", "pw", models.TierEndToEnd)
	require.NoError(t, err)
	_, err = d.auth.OnlineLogin(ctx, "alice", "pw")
	require.NoError(t, err)
	d.auth.Logout(ctx)
	require.False(t, d.keys.Initialized())

	sess, err := d.auth.OfflineLogin(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, &Session{UserID: "user-alice", Username: "alice", Tier: models.TierEndToEnd}, sess)
	assert.True(t, d.keys.Initialized())
}

func TestOfflineLogin_UsernameMismatch_Unauthorized(t *testing.T) {
	ctx := context.Background()
	d := newAuthDevice(t, newFakeAuthServer())
	require.NoError(t, d.store.Repos().Metadata.Set(ctx, metadata.KeyUsername, []byte("other")))

	_, err := d.auth.OfflineLogin(ctx, "user", "p")
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestOfflineLogin_WrongPassword_Unauthorized(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)
	_, err := d.auth.Register(ctx, "alice", "pw", models.TierUserControlled)
	require.NoError(t, err)
	_, err = d.auth.OnlineLogin(ctx, "alice", "pw")
	require.NoError(t, err)
	d.auth.Logout(ctx)

	_, err = d.auth.OfflineLogin(ctx, "alice", "wrong")
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.False(t, d.keys.Initialized())
}

func TestRecover_RedeemsCodeOnce(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)
	codes, err := d.auth.Register(ctx, "alice", "pw", models.TierEndToEnd)
	require.NoError(t, err)

	sess, err := d.auth.Recover(ctx, "alice", strings.ToLower(codes[3]))
	require.NoError(t, err)
	assert.Equal(t, "user-alice", sess.UserID)

	_, err = d.auth.Recover(ctx, "alice", codes[3])
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)
	_, err := d.auth.Register(ctx, "alice", "old", models.TierUserControlled)
	require.NoError(t, err)
	_, err = d.auth.OnlineLogin(ctx, "alice", "old")
	require.NoError(t, err)
	env, err := d.keys.EncryptContent("still readable")
	require.NoError(t, err)
	wrappedBefore := srv.users["alice"].material.WrappedKey

	require.ErrorIs(t, d.auth.ChangePassword(ctx, "nope", "new"), common.ErrAuthenticationFailed)
	require.NoError(t, d.auth.ChangePassword(ctx, "old", "new"))
	assert.NotEqual(t, wrappedBefore, srv.users["alice"].material.WrappedKey)

	d.auth.Logout(ctx)
	_, err = d.auth.OfflineLogin(ctx, "alice", "old")
	require.ErrorIs(t, err, client.ErrUnauthorized)
	_, err = d.auth.OfflineLogin(ctx, "alice", "new")
	require.NoError(t, err)

	// a fresh device gets the rewrapped key from the server
	fresh := newAuthDevice(t, srv)
	_, err = fresh.auth.OnlineLogin(ctx, "alice", "new")
	require.NoError(t, err)
	pt, err := fresh.keys.DecryptContent(env)
	require.NoError(t, err)
	assert.Equal(t, "still readable", pt)
}

func TestClearOfflineData(t *testing.T) {
	ctx := context.Background()
	srv := newFakeAuthServer()
	d := newAuthDevice(t, srv)
	_, err := d.auth.Register(ctx, "alice", "pw", models.TierEndToEnd)
	require.NoError(t, err)
	_, err = d.auth.OnlineLogin(ctx, "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, d.auth.ClearOfflineData(ctx))
	_, err = d.auth.OfflineLogin(ctx, "alice", "pw")
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)

	// key material survives
	_, err = d.store.Repos().Metadata.Get(ctx, metadata.KeyKeyMaterial)
	require.NoError(t, err)
}

func TestPing_ErrorPropagates(t *testing.T) {
	srv := newFakeAuthServer()
	srv.PingErr = client.ErrUnavailable
	d := newAuthDevice(t, srv)
	require.ErrorIs(t, d.auth.Ping(context.Background()), client.ErrUnavailable)
}

func TestClose_ErrorPropagates(t *testing.T) {
	srv := newFakeAuthServer()
	srv.CloseErr = errors.New("close failed")
	d := newAuthDevice(t, srv)
	require.EqualError(t, d.auth.Close(context.Background()), "close failed")
}
