package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the length of every symmetric key produced here (256 bits).
	KeySize = 32
	// SaltSize is the length of salts produced by GenerateSalt.
	SaltSize = 32
	// MinSaltSize is the shortest salt DeriveKey accepts.
	MinSaltSize = 16
)

// KDFParams are the Argon2id cost parameters. They are stored next to the
// salt so material derived on one device can be re-derived on another.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

var (
	// DefaultKDFParams: t=2, m=64 MiB, p=1.
	DefaultKDFParams = KDFParams{Time: 2, MemoryKiB: 64 * 1024, Threads: 1}

	// MinKDFParams is the floor below which DeriveKey refuses to run.
	MinKDFParams = KDFParams{Time: 1, MemoryKiB: 19 * 1024, Threads: 1}
)

// Validate reports ErrWeakParameters when p is below MinKDFParams.
func (p KDFParams) Validate() error {
	if p.Time < MinKDFParams.Time || p.MemoryKiB < MinKDFParams.MemoryKiB || p.Threads < MinKDFParams.Threads {
		return fmt.Errorf("%w: time=%d memory=%dKiB threads=%d", common.ErrWeakParameters, p.Time, p.MemoryKiB, p.Threads)
	}
	return nil
}

// DeriveKey runs Argon2id over password and salt and returns a KeySize key.
// The result is deterministic for the same password, salt and params.
func DeriveKey(password, salt []byte, p KDFParams) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt is %d bytes", common.ErrWeakParameters, len(salt))
	}
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, KeySize), nil
}

// GenerateSalt returns SaltSize random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt generation: %w", err)
	}
	return salt, nil
}

// GenerateKey returns a fresh random KeySize key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("key generation: %w", err)
	}
	return key, nil
}

// MakeVerifier is what the server stores to check a login: sha256 of the
// password-derived auth key. The auth key itself never leaves the client.
func MakeVerifier(authKey []byte) []byte {
	hash := sha256.Sum256(authKey)
	return hash[:]
}
