// Package services contains the application services of the JournalKeeper
// client. This file defines the authentication service: registration,
// online/offline login, key unlock and housekeeping of the locally cached
// auth metadata.
package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/client/client"
	"github.com/dmitrijs2005/journalkeeper/internal/client/keystore"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/journalkeeper/internal/client/store"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
)

// ErrKeysNotOnDevice is returned when an EndToEnd account signs in on a
// device that never received its keys.
var ErrKeysNotOnDevice = errors.New("end-to-end keys are not on this device; import them from another device")

// AuthClient is the part of the API client the auth service uses.
type AuthClient interface {
	Ping(ctx context.Context) error
	Close() error
	Register(ctx context.Context, req api.RegisterRequest) error
	GetSalt(ctx context.Context, username string) (api.SaltResponse, error)
	Login(ctx context.Context, username string, verifier []byte) (api.TokenResponse, error)
	Recover(ctx context.Context, username, code string) (api.TokenResponse, error)
	GetKeys(ctx context.Context) (api.KeyMaterial, error)
	PutKeys(ctx context.Context, req api.UpdateKeysRequest) error
}

// KeyService is the part of the encryption service sign-in needs.
type KeyService interface {
	Initialize(ctx context.Context, tier models.Tier, password string) error
	ImportMaterial(ctx context.Context, m *models.KeyMaterial, password string) error
	ExportMaterial() (*models.KeyMaterial, error)
	PublicMaterial() (models.PublicMaterial, error)
	RecoveryCodes() []string
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	ClearKeys()
}

// Session describes the signed-in user.
type Session struct {
	UserID   string
	Username string
	Tier     models.Tier
	Online   bool
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create keys locally, then the account on the server. The
//     EndToEnd recovery codes are returned once.
//   - OnlineLogin: authenticate against the server, unlock the keys and
//     persist offline auth data.
//   - OfflineLogin: verify credentials against locally cached data and
//     unlock the keys.
//   - Recover: redeem a recovery code for a server session.
//   - ChangePassword: rewrap the keys and rotate the login verifier.
//   - ExportKeys/ImportKeys: move wrapped key material between devices.
//   - Logout: wipe the unlocked keys from memory.
//   - ClearOfflineData: forget the cached login data.
type AuthService interface {
	Register(ctx context.Context, username, password string, tier models.Tier) ([]string, error)
	OnlineLogin(ctx context.Context, username, password string) (*Session, error)
	OfflineLogin(ctx context.Context, username, password string) (*Session, error)
	Recover(ctx context.Context, username, code string) (*Session, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
	ExportKeys(ctx context.Context) ([]byte, error)
	ImportKeys(ctx context.Context, data []byte, password string) error
	Logout(ctx context.Context)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	ClearOfflineData(ctx context.Context) error
}

type authService struct {
	client   AuthClient
	store    *store.Store
	keystore keystore.KeyStore
	keys     KeyService
	kdf      cryptox.KDFParams
}

type AuthOption func(*authService)

// WithAuthKDF sets the cost of the login verifier derivation.
func WithAuthKDF(p cryptox.KDFParams) AuthOption {
	return func(a *authService) { a.kdf = p }
}

// NewAuthService constructs an AuthService bound to the API client, the local
// store and the encryption service.
func NewAuthService(c AuthClient, st *store.Store, ks keystore.KeyStore, keys KeyService, opts ...AuthOption) AuthService {
	a := &authService{client: c, store: st, keystore: ks, keys: keys, kdf: cryptox.DefaultKDFParams}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *authService) metadataRepo() metadata.Repository {
	return a.store.Repos().Metadata
}

// Register generates the account keys on this device and creates the user on
// the server. Any key material of a previous account is discarded.
func (a *authService) Register(ctx context.Context, username, password string, tier models.Tier) ([]string, error) {
	if err := a.forgetKeys(ctx); err != nil {
		return nil, err
	}
	if err := a.keys.Initialize(ctx, tier, password); err != nil {
		return nil, fmt.Errorf("key generation error: %w", err)
	}
	codes := a.keys.RecoveryCodes()

	pub, err := a.keys.PublicMaterial()
	if err != nil {
		return nil, err
	}
	salt, verifier, err := a.credentials(password)
	if err != nil {
		return nil, err
	}

	err = a.client.Register(ctx, api.RegisterRequest{
		Username: username,
		Salt:     salt,
		Verifier: verifier,
		KDF:      a.kdf,
		Material: toAPIMaterial(pub),
	})
	if err != nil {
		_ = a.forgetKeys(ctx)
		return nil, err
	}

	// keys stay on disk for the first login; the session starts locked
	a.keys.ClearKeys()
	if err := a.metadataRepo().Set(ctx, metadata.KeyUsername, []byte(username)); err != nil {
		return nil, err
	}
	return codes, nil
}

// OnlineLogin authenticates against the server, unlocks the keys and saves
// offline metadata (username, owner id, salt, verifier).
func (a *authService) OnlineLogin(ctx context.Context, username, password string) (*Session, error) {
	saltResp, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get salt error: %w", err)
	}

	authKey, err := cryptox.DeriveKey([]byte(password), saltResp.Salt, saltResp.KDF)
	if err != nil {
		return nil, err
	}
	verifier := cryptox.MakeVerifier(authKey)
	common.WipeByteArray(authKey)

	tok, err := a.client.Login(ctx, username, verifier)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	if err := a.switchUser(ctx, username); err != nil {
		return nil, err
	}

	remote, err := a.client.GetKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("get keys error: %w", err)
	}
	tier, err := models.ParseTier(remote.Tier)
	if err != nil {
		return nil, err
	}
	if err := a.unlock(ctx, tier, remote, password); err != nil {
		return nil, err
	}

	if err := a.saveOfflineData(ctx, username, tok.UserID, saltResp.Salt, verifier, saltResp.KDF); err != nil {
		return nil, fmt.Errorf("offline data saving error: %w", err)
	}
	return &Session{UserID: tok.UserID, Username: username, Tier: tier, Online: true}, nil
}

// unlock opens the local key material or, for UserControlled accounts on a
// new device, imports the server copy.
func (a *authService) unlock(ctx context.Context, tier models.Tier, remote api.KeyMaterial, password string) error {
	_, err := a.keystore.Load(ctx)
	switch {
	case err == nil:
		return a.keys.Initialize(ctx, tier, password)
	case errors.Is(err, common.ErrorNotFound):
		if tier != models.TierUserControlled {
			return ErrKeysNotOnDevice
		}
		return a.keys.ImportMaterial(ctx, &models.KeyMaterial{
			Tier:       tier,
			KDF:        remote.KDF,
			Salt:       remote.Salt,
			WrappedKey: remote.WrappedKey,
		}, password)
	default:
		return err
	}
}

// OfflineLogin derives the auth key from the locally stored salt and checks
// it against the cached verifier, then unlocks the keys. Missing local data
// yields client.ErrLocalDataNotAvailable, a wrong password
// client.ErrUnauthorized.
func (a *authService) OfflineLogin(ctx context.Context, username, password string) (*Session, error) {
	repo := a.metadataRepo()

	savedUsername, err := localValue(ctx, repo, metadata.KeyUsername)
	if err != nil {
		return nil, err
	}
	if string(savedUsername) != username {
		return nil, client.ErrUnauthorized
	}

	salt, err := localValue(ctx, repo, metadata.KeyAuthSalt)
	if err != nil {
		return nil, err
	}
	savedVerifier, err := localValue(ctx, repo, metadata.KeyVerifier)
	if err != nil {
		return nil, err
	}
	rawKDF, err := localValue(ctx, repo, metadata.KeyAuthKDF)
	if err != nil {
		return nil, err
	}
	ownerID, err := localValue(ctx, repo, metadata.KeyOwnerID)
	if err != nil {
		return nil, err
	}
	var kdf cryptox.KDFParams
	if err := json.Unmarshal(rawKDF, &kdf); err != nil {
		return nil, fmt.Errorf("cached kdf params: %w", err)
	}

	authKey, err := cryptox.DeriveKey([]byte(password), salt, kdf)
	if err != nil {
		return nil, err
	}
	verifierCandidate := cryptox.MakeVerifier(authKey)
	common.WipeByteArray(authKey)

	if subtle.ConstantTimeCompare(savedVerifier, verifierCandidate) == 0 {
		return nil, client.ErrUnauthorized
	}

	m, err := a.keystore.Load(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, client.ErrLocalDataNotAvailable
	}
	if err != nil {
		return nil, err
	}
	if err := a.keys.Initialize(ctx, m.Tier, password); err != nil {
		return nil, err
	}
	return &Session{UserID: string(ownerID), Username: username, Tier: m.Tier}, nil
}

// Recover redeems a one-time recovery code. The server session is restored;
// the local keys still need the password or an import to unlock.
func (a *authService) Recover(ctx context.Context, username, code string) (*Session, error) {
	tok, err := a.client.Recover(ctx, username, code)
	if err != nil {
		return nil, fmt.Errorf("recover error: %w", err)
	}
	return &Session{UserID: tok.UserID, Username: username, Tier: models.TierEndToEnd, Online: true}, nil
}

// ChangePassword rewraps the local keys and sends the new material together
// with fresh login credentials.
func (a *authService) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := a.keys.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return err
	}
	pub, err := a.keys.PublicMaterial()
	if err != nil {
		return err
	}
	salt, verifier, err := a.credentials(newPassword)
	if err != nil {
		return err
	}

	err = a.client.PutKeys(ctx, api.UpdateKeysRequest{Salt: salt, Verifier: verifier, KDF: a.kdf, Material: toAPIMaterial(pub)})
	if err != nil {
		return fmt.Errorf("update keys error: %w", err)
	}

	return setMetadata(ctx, a.store, map[string][]byte{
		metadata.KeyAuthSalt: salt,
		metadata.KeyVerifier: verifier,
		metadata.KeyAuthKDF:  mustJSON(a.kdf),
	})
}

func (a *authService) ExportKeys(context.Context) ([]byte, error) {
	m, err := a.keys.ExportMaterial()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(m, "", "  ")
}

func (a *authService) ImportKeys(ctx context.Context, data []byte, password string) error {
	var m models.KeyMaterial
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: key file: %v", common.ErrMalformedEnvelope, err)
	}
	return a.keys.ImportMaterial(ctx, &m, password)
}

func (a *authService) Logout(context.Context) {
	a.keys.ClearKeys()
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// Close releases resources held by the underlying client.
func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}

// ClearOfflineData wipes the locally cached login data. Key material and the
// sync checkpoint are kept.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return a.metadataRepo().Delete(ctx, metadata.KeyUsername, metadata.KeyOwnerID, metadata.KeyAuthSalt,
		metadata.KeyVerifier, metadata.KeyAuthKDF)
}

// switchUser drops the key material and login cache of a different user
// before a new sign-in on this device.
func (a *authService) switchUser(ctx context.Context, username string) error {
	saved, err := a.metadataRepo().Get(ctx, metadata.KeyUsername)
	if errors.Is(err, common.ErrorNotFound) || (err == nil && string(saved) == username) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := a.forgetKeys(ctx); err != nil {
		return err
	}
	return a.ClearOfflineData(ctx)
}

func (a *authService) forgetKeys(ctx context.Context) error {
	a.keys.ClearKeys()
	if err := a.keystore.Clear(ctx); err != nil {
		return fmt.Errorf("clear key store: %w", err)
	}
	return nil
}

// credentials returns a fresh salt and the verifier of password under a.kdf.
func (a *authService) credentials(password string) ([]byte, []byte, error) {
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	authKey, err := cryptox.DeriveKey([]byte(password), salt, a.kdf)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(authKey)
	return salt, cryptox.MakeVerifier(authKey), nil
}

// saveOfflineData persists what offline login needs in a single transaction.
func (a *authService) saveOfflineData(ctx context.Context, username, ownerID string, salt, verifier []byte, kdf cryptox.KDFParams) error {
	return setMetadata(ctx, a.store, map[string][]byte{
		metadata.KeyUsername: []byte(username),
		metadata.KeyOwnerID:  []byte(ownerID),
		metadata.KeyAuthSalt: salt,
		metadata.KeyVerifier: verifier,
		metadata.KeyAuthKDF:  mustJSON(kdf),
	})
}

func setMetadata(ctx context.Context, st *store.Store, values map[string][]byte) error {
	return st.InTx(ctx, func(ctx context.Context, r store.Repositories) error {
		return r.Metadata.SetMany(ctx, values)
	})
}

func localValue(ctx context.Context, repo metadata.Repository, key string) ([]byte, error) {
	v, err := repo.Get(ctx, key)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, client.ErrLocalDataNotAvailable
	}
	return v, err
}

func toAPIMaterial(p models.PublicMaterial) api.KeyMaterial {
	return api.KeyMaterial{
		Tier:           string(p.Tier),
		PublicKey:      p.PublicKey,
		RecoveryHashes: p.RecoveryHashes,
		WrappedKey:     p.WrappedKey,
		Salt:           p.Salt,
		KDF:            p.KDF,
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
