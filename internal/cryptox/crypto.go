// Package cryptox implements passphrase-based authenticated encryption of
// byte streams. Plaintext is cut into fixed segments, each sealed with
// AES-256-GCM under a key derived from the passphrase with Argon2id.
//
// Stream layout:
//
//	magic(4) | salt(16) | nonce prefix(8) | segment_0 | ... | segment_n
//
// Every segment but the last carries exactly SegmentSize bytes of plaintext.
// The nonce of segment i is prefix || uint32(i); the associated data is a
// single byte that is 1 only for the last segment, so dropping or reordering
// segments fails authentication.
package cryptox

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dmitrijs2005/outofsight/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// SegmentSize is the plaintext size of every non-final segment.
	SegmentSize = 64 << 10

	saltSize   = 16
	prefixSize = 8
	keySize    = 32
	tagSize    = 16
)

var magic = [4]byte{'O', 'O', 'S', 1}

var (
	aadMiddle = []byte{0}
	aadLast   = []byte{1}
)

// DeriveKey stretches a passphrase into a 256-bit AES key.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

func newAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key := DeriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func segmentNonce(prefix []byte, counter uint32) []byte {
	nonce := make([]byte, prefixSize+4)
	copy(nonce, prefix)
	binary.BigEndian.PutUint32(nonce[prefixSize:], counter)
	return nonce
}

// Writer seals everything written to it. Close must be called to emit the
// final segment; without it the stream does not authenticate.
type Writer struct {
	w       io.Writer
	aead    cipher.AEAD
	prefix  []byte
	counter uint32
	buf     []byte
	closed  bool
}

// NewWriter writes the stream header to w and returns a Writer sealing with
// a key derived from passphrase and a fresh random salt.
func NewWriter(w io.Writer, passphrase []byte) (*Writer, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", common.ErrEncryption)
	}

	salt := common.GenerateRandByteArray(saltSize)
	prefix := common.GenerateRandByteArray(prefixSize)

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}

	header := make([]byte, 0, len(magic)+saltSize+prefixSize)
	header = append(header, magic[:]...)
	header = append(header, salt...)
	header = append(header, prefix...)
	if _, err := w.Write(header); err != nil {
		return nil, err
	}

	return &Writer{
		w:      w,
		aead:   aead,
		prefix: prefix,
		buf:    make([]byte, 0, SegmentSize+1),
	}, nil
}

// Write buffers p and seals every complete segment that is known not to be
// the last one.
func (s *Writer) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("write to closed stream")
	}

	written := 0
	for len(p) > 0 {
		n := min(len(p), SegmentSize+1-len(s.buf))
		s.buf = append(s.buf, p[:n]...)
		p = p[n:]
		written += n

		// one byte past a full segment proves the segment is not the last
		if len(s.buf) > SegmentSize {
			if err := s.seal(s.buf[:SegmentSize], false); err != nil {
				return written, err
			}
			rest := s.buf[SegmentSize]
			s.buf = append(s.buf[:0], rest)
		}
	}

	return written, nil
}

// Close seals the remaining buffered bytes as the final segment.
func (s *Writer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.seal(s.buf, true)
}

func (s *Writer) seal(plain []byte, last bool) error {
	if s.counter == math.MaxUint32 {
		return fmt.Errorf("%w: stream too long", common.ErrEncryption)
	}

	aad := aadMiddle
	if last {
		aad = aadLast
	}

	sealed := s.aead.Seal(nil, segmentNonce(s.prefix, s.counter), plain, aad)
	s.counter++

	_, err := s.w.Write(sealed)
	return err
}

// Reader opens a stream produced by Writer. Any authentication failure,
// including a wrong passphrase, truncation or trailing garbage, surfaces as
// common.ErrDecryption.
type Reader struct {
	r       *bufio.Reader
	aead    cipher.AEAD
	prefix  []byte
	counter uint32
	seg     []byte
	plain   bytes.Reader
	done    bool
}

// NewReader consumes the stream header from r and derives the key.
func NewReader(r io.Reader, passphrase []byte) (*Reader, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", common.ErrDecryption)
	}

	header := make([]byte, len(magic)+saltSize+prefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", common.ErrDecryption, err)
	}
	if !bytes.Equal(header[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: unknown stream format", common.ErrDecryption)
	}

	salt := header[len(magic) : len(magic)+saltSize]
	prefix := append([]byte(nil), header[len(magic)+saltSize:]...)

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	return &Reader{
		r:      bufio.NewReaderSize(r, SegmentSize+tagSize+1),
		aead:   aead,
		prefix: prefix,
		seg:    make([]byte, SegmentSize+tagSize),
	}, nil
}

// Read implements io.Reader over the authenticated plaintext.
func (s *Reader) Read(p []byte) (int, error) {
	for s.plain.Len() == 0 {
		if s.done {
			return 0, io.EOF
		}
		if err := s.next(); err != nil {
			return 0, err
		}
	}
	return s.plain.Read(p)
}

func (s *Reader) next() error {
	n, err := io.ReadFull(s.r, s.seg)
	last := false

	switch {
	case err == nil:
		// a full segment is the last one only if nothing follows it
		if _, peekErr := s.r.Peek(1); errors.Is(peekErr, io.EOF) {
			last = true
		} else if peekErr != nil {
			return peekErr
		}
	case errors.Is(err, io.ErrUnexpectedEOF):
		last = true
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: stream truncated", common.ErrDecryption)
	default:
		return err
	}

	aad := aadMiddle
	if last {
		aad = aadLast
	}

	plain, err := s.aead.Open(nil, segmentNonce(s.prefix, s.counter), s.seg[:n], aad)
	if err != nil {
		return fmt.Errorf("%w: segment %d: %v", common.ErrDecryption, s.counter, err)
	}

	s.counter++
	s.done = last
	s.plain.Reset(plain)
	return nil
}
