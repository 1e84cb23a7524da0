package cryptox

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dmitrijs2005/journalkeeper/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// Stream layout:
//
//	header: magic(4) | nonce prefix(8)
//	frame:  flag(1) | ciphertext length(4, big endian) | ciphertext
//
// The nonce of frame i is prefix || uint32(i). The flag byte is the AAD, so
// dropping the final frame or marking an inner frame final fails to open.
const (
	StreamChunkSize = 64 * 1024

	streamMagic      = "JKS1"
	streamPrefixSize = 8
	frameLast        = byte(1)
	frameMore        = byte(0)
)

var ErrStreamFormat = errors.New("invalid stream format")

// EncryptStream reads src to EOF and writes the framed ciphertext to dst.
// Only one chunk of plaintext is held in memory at a time.
func EncryptStream(dst io.Writer, src io.Reader, key []byte) error {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return err
	}

	prefix := make([]byte, streamPrefixSize)
	if _, err := rand.Read(prefix); err != nil {
		return fmt.Errorf("nonce generation: %w", err)
	}

	w := bufio.NewWriter(dst)
	if _, err := w.WriteString(streamMagic); err != nil {
		return err
	}
	if _, err := w.Write(prefix); err != nil {
		return err
	}

	buf := make([]byte, StreamChunkSize)
	next := make([]byte, StreamChunkSize)
	sealed := make([]byte, 0, StreamChunkSize+aead.Overhead())
	nonce := make([]byte, NonceSize)
	copy(nonce, prefix)

	n, err := io.ReadFull(src, buf)
	eof := isEOF(err)
	if err != nil && !eof {
		return err
	}

	var counter uint32
	for {
		final := eof
		var m int
		if !eof {
			m, err = io.ReadFull(src, next)
			switch {
			case isEOF(err):
				eof = true
				final = m == 0
			case err != nil:
				return err
			}
		}

		flag := frameMore
		if final {
			flag = frameLast
		}
		binary.BigEndian.PutUint32(nonce[streamPrefixSize:], counter)
		sealed = aead.Seal(sealed[:0], nonce, buf[:n], []byte{flag})

		var hdr [5]byte
		hdr[0] = flag
		binary.BigEndian.PutUint32(hdr[1:], uint32(len(sealed)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(sealed); err != nil {
			return err
		}

		if final {
			return w.Flush()
		}
		if counter == math.MaxUint32 {
			return fmt.Errorf("%w: stream too long", ErrStreamFormat)
		}
		counter++
		buf, next = next, buf
		n = m
	}
}

// DecryptStream authenticates and decrypts a stream written by EncryptStream.
// Plaintext is written frame by frame, so on error dst may hold a verified
// prefix of the content; callers that need all-or-nothing must buffer.
func DecryptStream(dst io.Writer, src io.Reader, key []byte) error {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return err
	}

	r := bufio.NewReader(src)
	header := make([]byte, len(streamMagic)+streamPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%w: short header", ErrStreamFormat)
	}
	if string(header[:len(streamMagic)]) != streamMagic {
		return fmt.Errorf("%w: bad magic", ErrStreamFormat)
	}

	nonce := make([]byte, NonceSize)
	copy(nonce, header[len(streamMagic):])

	maxFrame := uint32(StreamChunkSize + aead.Overhead())
	frame := make([]byte, maxFrame)
	plain := make([]byte, 0, StreamChunkSize)

	var counter uint32
	for {
		var hdr [5]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			// the last frame never arrived
			return fmt.Errorf("%w: truncated stream", common.ErrDecryptionFailed)
		}
		flag := hdr[0]
		size := binary.BigEndian.Uint32(hdr[1:])
		if (flag != frameLast && flag != frameMore) || size > maxFrame {
			return fmt.Errorf("%w: bad frame header", common.ErrDecryptionFailed)
		}
		if _, err := io.ReadFull(r, frame[:size]); err != nil {
			return fmt.Errorf("%w: truncated frame", common.ErrDecryptionFailed)
		}

		binary.BigEndian.PutUint32(nonce[streamPrefixSize:], counter)
		plain, err = aead.Open(plain[:0], nonce, frame[:size], []byte{flag})
		if err != nil {
			return common.ErrDecryptionFailed
		}
		if _, err := dst.Write(plain); err != nil {
			return err
		}

		if flag == frameLast {
			if _, err := r.ReadByte(); err != io.EOF {
				return fmt.Errorf("%w: trailing data", common.ErrDecryptionFailed)
			}
			return nil
		}
		if counter == math.MaxUint32 {
			return fmt.Errorf("%w: stream too long", common.ErrDecryptionFailed)
		}
		counter++
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
