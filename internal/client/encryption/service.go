package encryption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/journalkeeper/internal/client/keystore"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
)

type state int

const (
	stateUninitialized state = iota
	stateInitialized
	stateCleared
)

func (s state) String() string {
	switch s {
	case stateInitialized:
		return "initialized"
	case stateCleared:
		return "cleared"
	default:
		return "uninitialized"
	}
}

type Service struct {
	store keystore.KeyStore
	kdf   cryptox.KDFParams
	log   logging.Logger

	mu            sync.RWMutex
	state         state
	strategy      strategy
	material      *models.KeyMaterial
	contentKey    []byte
	recoveryCodes []string
}

type Option func(*Service)

// WithKDFParams sets the Argon2id cost used when new material is generated.
// Existing material is always opened with the parameters stored next to it.
func WithKDFParams(p cryptox.KDFParams) Option {
	return func(s *Service) { s.kdf = p }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(store keystore.KeyStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		kdf:   cryptox.DefaultKDFParams,
		log:   logging.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize unlocks the service. On first use it generates key material for
// tier, wraps it with password and saves it; afterwards it loads the stored
// material and unwraps it. A wrong password yields ErrAuthenticationFailed and
// the service stays locked.
func (s *Service) Initialize(ctx context.Context, tier models.Tier, password string) error {
	strat, err := strategyFor(tier)
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("%w: empty password", common.ErrAuthenticationFailed)
	}
	pw := []byte(password)
	defer cryptox.Wipe(pw)

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return s.generateLocked(ctx, strat, pw)
	case err != nil:
		return keyStoreError(err)
	}

	if m.Tier != tier {
		return fmt.Errorf("%w: stored %q, requested %q", common.ErrTierMismatch, m.Tier, tier)
	}
	return s.unlockLocked(strat, m, pw)
}

func (s *Service) generateLocked(ctx context.Context, strat strategy, pw []byte) error {
	if err := s.kdf.Validate(); err != nil {
		return err
	}
	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	secret, public, err := strat.newSecret()
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	wrapped, err := wrapSecret(secret, pw, salt, s.kdf, strat.tier())
	if err != nil {
		return err
	}

	m := &models.KeyMaterial{
		Tier:       strat.tier(),
		KDF:        s.kdf,
		Salt:       salt,
		WrappedKey: wrapped,
		PublicKey:  public,
	}

	var codes []string
	if strat.recoveryCodes() {
		codes, err = cryptox.GenerateRecoveryCodes(cryptox.RecoveryCodeCount)
		if err != nil {
			return err
		}
		for _, c := range codes {
			m.RecoveryHashes = append(m.RecoveryHashes, cryptox.HashRecoveryCode(c))
		}
	}

	key, err := strat.contentKey(secret, m)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, m); err != nil {
		cryptox.Wipe(key)
		return keyStoreError(err)
	}

	s.activateLocked(strat, m, key)
	s.recoveryCodes = codes
	s.log.Info(ctx, "key material generated", "tier", string(m.Tier))
	return nil
}

func (s *Service) unlockLocked(strat strategy, m *models.KeyMaterial, pw []byte) error {
	secret, err := unwrapSecret(m, pw)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	key, err := strat.contentKey(secret, m)
	if err != nil {
		return err
	}
	s.activateLocked(strat, m, key)
	s.recoveryCodes = nil
	return nil
}

func (s *Service) activateLocked(strat strategy, m *models.KeyMaterial, key []byte) {
	s.wipeLocked()
	// mlock can fail under RLIMIT_MEMLOCK; the key is still usable.
	_ = cryptox.LockMemory(key)
	s.strategy = strat
	s.material = m
	s.contentKey = key
	s.state = stateInitialized
}

func (s *Service) wipeLocked() {
	if s.contentKey != nil {
		cryptox.Wipe(s.contentKey)
		_ = cryptox.UnlockMemory(s.contentKey)
	}
	s.contentKey = nil
	s.material = nil
	s.strategy = nil
	s.recoveryCodes = nil
}

// ClearKeys zeroes the in-memory content key. The service refuses to encrypt
// or decrypt until Initialize is called again.
func (s *Service) ClearKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeLocked()
	if s.state == stateInitialized {
		s.state = stateCleared
	}
}

// Initialized reports whether the service currently holds a content key.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateInitialized
}

// Tier returns the tier of the unlocked material.
func (s *Service) Tier() (models.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != stateInitialized {
		return "", common.ErrNotInitialized
	}
	return s.strategy.tier(), nil
}

// key returns a private copy of the content key so long running stream
// operations do not hold the lock. Callers wipe it.
func (s *Service) key() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != stateInitialized {
		return nil, fmt.Errorf("%w (%s)", common.ErrNotInitialized, s.state)
	}
	return bytes.Clone(s.contentKey), nil
}

// EncryptContent seals plaintext under a fresh random nonce.
func (s *Service) EncryptContent(plaintext string) (envelope.Envelope, error) {
	key, err := s.key()
	if err != nil {
		return envelope.Envelope{}, err
	}
	defer cryptox.Wipe(key)

	ct, nonce, err := cryptox.Seal(cryptox.DefaultAlgorithm, key, []byte(plaintext), nil)
	if err != nil {
		return envelope.Envelope{}, err
	}
	return envelope.New(ct, nonce, cryptox.DefaultAlgorithm), nil
}

// DecryptContent opens env. Any authentication failure is ErrDecryptionFailed;
// no partial plaintext is ever returned.
func (s *Service) DecryptContent(env envelope.Envelope) (string, error) {
	key, err := s.key()
	if err != nil {
		return "", err
	}
	defer cryptox.Wipe(key)

	if env.Version > envelope.CurrentVersion {
		return "", fmt.Errorf("%w: %d", common.ErrUnsupportedVersion, env.Version)
	}
	if !cryptox.SupportedAlgorithm(env.Algorithm) {
		return "", fmt.Errorf("%w: algorithm %q", common.ErrMalformedEnvelope, env.Algorithm)
	}
	pt, err := cryptox.Open(env.Algorithm, key, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptMedia seals data in the chunked stream format.
func (s *Service) EncryptMedia(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.EncryptMediaStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecryptMedia opens a blob produced by EncryptMedia. The whole blob is
// verified before anything is returned.
func (s *Service) DecryptMedia(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.DecryptMediaStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncryptMediaStream encrypts src into dst one chunk at a time.
func (s *Service) EncryptMediaStream(dst io.Writer, src io.Reader) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	defer cryptox.Wipe(key)
	return cryptox.EncryptStream(dst, src, key)
}

// DecryptMediaStream decrypts src into dst one chunk at a time. On error dst
// may already hold verified leading chunks; callers that need all-or-nothing
// use DecryptMedia or write to a temporary location.
func (s *Service) DecryptMediaStream(dst io.Writer, src io.Reader) error {
	key, err := s.key()
	if err != nil {
		return err
	}
	defer cryptox.Wipe(key)

	err = cryptox.DecryptStream(dst, src, key)
	if errors.Is(err, cryptox.ErrStreamFormat) {
		return fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return err
}

// GenerateContentHash is the deduplication hash of plaintext. It needs no key
// and is identical across tiers.
func (s *Service) GenerateContentHash(plaintext string) string {
	return cryptox.ContentHash(plaintext)
}

// RecoveryCodes returns the plaintext recovery codes issued by the Initialize
// call that generated the material, then forgets them. It returns nil
// afterwards and for the UserControlled tier.
func (s *Service) RecoveryCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.recoveryCodes
	s.recoveryCodes = nil
	return codes
}

// PublicMaterial is what may be registered with the server: the public key
// and recovery hashes for EndToEnd, the wrapped master key and salt for
// UserControlled.
func (s *Service) PublicMaterial() (models.PublicMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != stateInitialized {
		return models.PublicMaterial{}, common.ErrNotInitialized
	}
	m := s.material
	pm := models.PublicMaterial{Tier: m.Tier, KDF: m.KDF}
	switch m.Tier {
	case models.TierEndToEnd:
		pm.PublicKey = bytes.Clone(m.PublicKey)
		pm.RecoveryHashes = append([]string(nil), m.RecoveryHashes...)
	case models.TierUserControlled:
		pm.WrappedKey = m.WrappedKey
		pm.Salt = bytes.Clone(m.Salt)
	}
	return pm, nil
}

// ExportMaterial returns the wrapped material for transfer to another device.
// Nothing in it is usable without the password.
func (s *Service) ExportMaterial() (*models.KeyMaterial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != stateInitialized {
		return nil, common.ErrNotInitialized
	}
	cp := *s.material
	cp.Salt = bytes.Clone(cp.Salt)
	cp.PublicKey = bytes.Clone(cp.PublicKey)
	cp.RecoveryHashes = append([]string(nil), cp.RecoveryHashes...)
	return &cp, nil
}

// ImportMaterial verifies that password opens m, replaces whatever the key
// store holds with it and unlocks the service. Nothing is written when the
// password is wrong.
func (s *Service) ImportMaterial(ctx context.Context, m *models.KeyMaterial, password string) error {
	strat, err := strategyFor(m.Tier)
	if err != nil {
		return err
	}
	pw := []byte(password)
	defer cryptox.Wipe(pw)

	s.mu.Lock()
	defer s.mu.Unlock()

	secret, err := unwrapSecret(m, pw)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	key, err := strat.contentKey(secret, m)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, m); err != nil {
		cryptox.Wipe(key)
		return keyStoreError(err)
	}
	s.activateLocked(strat, m, key)
	s.log.Info(ctx, "key material imported", "tier", string(m.Tier))
	return nil
}

// ChangePassword rewraps the stored secret under newPassword with a fresh
// salt. The content key, and therefore every existing ciphertext, is
// unaffected.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: empty password", common.ErrorValidation)
	}
	oldPw, newPw := []byte(oldPassword), []byte(newPassword)
	defer cryptox.Wipe(oldPw, newPw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateInitialized {
		return common.ErrNotInitialized
	}

	m := *s.material
	secret, err := unwrapSecret(&m, oldPw)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return err
	}
	params := m.KDF
	if s.kdf.Validate() == nil {
		params = s.kdf
	}
	wrapped, err := wrapSecret(secret, newPw, salt, params, m.Tier)
	if err != nil {
		return err
	}
	m.Salt = salt
	m.KDF = params
	m.WrappedKey = wrapped

	if err := s.store.Save(ctx, &m); err != nil {
		return keyStoreError(err)
	}
	s.material = &m
	s.log.Info(ctx, "key material rewrapped", "tier", string(m.Tier))
	return nil
}

func keyStoreError(err error) error {
	if errors.Is(err, common.ErrKeyStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrKeyStoreUnavailable, err)
}
