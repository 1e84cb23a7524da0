package encryption

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
	"github.com/dmitrijs2005/journalkeeper/internal/envelope"
)

// wrapAAD binds a wrapped key to its tier so material of one tier cannot be
// opened as the other.
func wrapAAD(t models.Tier) []byte {
	return []byte("journalkeeper/wrap/" + string(t))
}

func wrapSecret(secret, password, salt []byte, p cryptox.KDFParams, t models.Tier) (string, error) {
	kek, err := cryptox.DeriveKey(password, salt, p)
	if err != nil {
		return "", err
	}
	defer cryptox.Wipe(kek)

	ct, nonce, err := cryptox.Seal(cryptox.DefaultAlgorithm, kek, secret, wrapAAD(t))
	if err != nil {
		return "", err
	}
	return envelope.Serialize(ct, nonce, cryptox.DefaultAlgorithm, envelope.CurrentVersion)
}

// unwrapSecret opens m.WrappedKey with password. A tag mismatch here means the
// password is wrong and is reported as common.ErrAuthenticationFailed.
func unwrapSecret(m *models.KeyMaterial, password []byte) ([]byte, error) {
	env, err := envelope.Deserialize(m.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("wrapped key: %w", err)
	}
	kek, err := cryptox.DeriveKey(password, m.Salt, m.KDF)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(kek)

	secret, err := cryptox.Open(env.Algorithm, kek, env.Nonce, env.Ciphertext, wrapAAD(m.Tier))
	if err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			return nil, common.ErrAuthenticationFailed
		}
		return nil, err
	}
	return secret, nil
}
