package encryption

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"golang.org/x/crypto/hkdf"
)

const e2eContentKeyInfo = "journalkeeper/e2e/content-key/v1"

// strategy is the per-tier part of the service.
type strategy interface {
	tier() models.Tier
	// newSecret returns the secret to wrap and, for EndToEnd, the public key.
	newSecret() (secret, public []byte, err error)
	// contentKey turns an unwrapped secret into the AEAD content key.
	contentKey(secret []byte, m *models.KeyMaterial) ([]byte, error)
	// recoveryCodes reports whether the tier issues one-time recovery codes.
	recoveryCodes() bool
}

func strategyFor(t models.Tier) (strategy, error) {
	switch t {
	case models.TierEndToEnd:
		return endToEnd{}, nil
	case models.TierUserControlled:
		return userControlled{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", common.ErrorValidation, t)
	}
}

type endToEnd struct{}

func (endToEnd) tier() models.Tier { return models.TierEndToEnd }

func (endToEnd) newSecret() ([]byte, []byte, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("keypair generation: %w", err)
	}
	return priv.Bytes(), priv.PublicKey().Bytes(), nil
}

func (endToEnd) contentKey(secret []byte, m *models.KeyMaterial) ([]byte, error) {
	priv, err := ecdh.X25519().NewPrivateKey(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: stored private key is invalid", common.ErrDecryptionFailed)
	}
	if len(m.PublicKey) > 0 && !bytes.Equal(priv.PublicKey().Bytes(), m.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match public key", common.ErrDecryptionFailed)
	}

	key := make([]byte, cryptox.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(e2eContentKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("content key derivation: %w", err)
	}
	return key, nil
}

func (endToEnd) recoveryCodes() bool { return true }

type userControlled struct{}

func (userControlled) tier() models.Tier { return models.TierUserControlled }

func (userControlled) newSecret() ([]byte, []byte, error) {
	key, err := cryptox.GenerateKey()
	return key, nil, err
}

func (userControlled) contentKey(secret []byte, _ *models.KeyMaterial) ([]byte, error) {
	if len(secret) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes", common.ErrDecryptionFailed, len(secret))
	}
	return bytes.Clone(secret), nil
}

func (userControlled) recoveryCodes() bool { return false }
