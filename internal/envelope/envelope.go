// Package envelope encodes the versioned ciphertext container that is stored
// locally and sent over the wire unchanged:
//
//	{"ciphertext":"<b64>","nonce":"<b64>","algorithm":"chacha20-poly1305","version":1}
//
// Deserialize reads the version before anything else and refuses versions it
// does not know instead of guessing. Unknown extra fields are ignored so newer
// writers can add metadata without breaking older readers of the same version.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"github.com/dmitrijs2005/journalkeeper/internal/cryptox"
)

// CurrentVersion is the highest envelope version this build understands.
const CurrentVersion = 1

// Envelope is a decoded ciphertext container.
type Envelope struct {
	Ciphertext []byte
	Nonce      []byte
	Algorithm  string
	Version    int
}

type wireEnvelope struct {
	Ciphertext *string `json:"ciphertext"`
	Nonce      *string `json:"nonce"`
	Algorithm  *string `json:"algorithm"`
	Version    *int    `json:"version"`
}

type versionHeader struct {
	Version json.RawMessage `json:"version"`
}

// New builds a current-version envelope.
func New(ciphertext, nonce []byte, algorithm string) Envelope {
	return Envelope{Ciphertext: ciphertext, Nonce: nonce, Algorithm: algorithm, Version: CurrentVersion}
}

// Serialize produces the compact JSON form.
func Serialize(ciphertext, nonce []byte, algorithm string, version int) (string, error) {
	if version < 1 || version > CurrentVersion {
		return "", fmt.Errorf("%w: %d", common.ErrUnsupportedVersion, version)
	}
	if algorithm == "" || len(nonce) == 0 {
		return "", fmt.Errorf("%w: missing algorithm or nonce", common.ErrMalformedEnvelope)
	}

	ct := base64.StdEncoding.EncodeToString(ciphertext)
	n := base64.StdEncoding.EncodeToString(nonce)
	b, err := json.Marshal(wireEnvelope{Ciphertext: &ct, Nonce: &n, Algorithm: &algorithm, Version: &version})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize parses s. It returns common.ErrUnsupportedVersion when the
// version is newer than CurrentVersion and common.ErrMalformedEnvelope for
// anything structurally wrong.
func Deserialize(s string) (Envelope, error) {
	data := []byte(s)

	var hdr versionHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	if len(hdr.Version) == 0 || bytes.Equal(hdr.Version, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: missing version", common.ErrMalformedEnvelope)
	}
	var version int
	if err := json.Unmarshal(hdr.Version, &version); err != nil {
		return Envelope{}, fmt.Errorf("%w: version is not an integer", common.ErrMalformedEnvelope)
	}
	if version > CurrentVersion {
		return Envelope{}, fmt.Errorf("%w: %d", common.ErrUnsupportedVersion, version)
	}
	if version < 1 {
		return Envelope{}, fmt.Errorf("%w: version %d", common.ErrMalformedEnvelope, version)
	}

	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	if w.Ciphertext == nil || w.Nonce == nil || w.Algorithm == nil {
		return Envelope{}, fmt.Errorf("%w: missing field", common.ErrMalformedEnvelope)
	}
	if !cryptox.SupportedAlgorithm(*w.Algorithm) {
		return Envelope{}, fmt.Errorf("%w: unknown algorithm %q", common.ErrMalformedEnvelope, *w.Algorithm)
	}

	ct, err := base64.StdEncoding.DecodeString(*w.Ciphertext)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: ciphertext: %v", common.ErrMalformedEnvelope, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(*w.Nonce)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: nonce: %v", common.ErrMalformedEnvelope, err)
	}
	if len(nonce) != cryptox.NonceSize {
		return Envelope{}, fmt.Errorf("%w: nonce is %d bytes", common.ErrMalformedEnvelope, len(nonce))
	}

	return Envelope{Ciphertext: ct, Nonce: nonce, Algorithm: *w.Algorithm, Version: version}, nil
}

// String serializes e, returning "" if e cannot be encoded.
func (e Envelope) String() string {
	s, err := Serialize(e.Ciphertext, e.Nonce, e.Algorithm, e.Version)
	if err != nil {
		return ""
	}
	return s
}

// MarshalJSON embeds the envelope as its serialized string form.
func (e Envelope) MarshalJSON() ([]byte, error) {
	s, err := Serialize(e.Ciphertext, e.Nonce, e.Algorithm, e.Version)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// UnmarshalJSON accepts the serialized string form.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	parsed, err := Deserialize(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
