// Package filter frames arbitrary payloads for an 8-byte block cipher the way
// Delta Controls devices do: the payload is split into blocks, each block is
// encrypted independently, and the payload length travels as a little-endian
// uint32 in the last four bytes of the final block.
//
// The framing carries no IV and no authentication. It exists to interoperate
// with equipment that speaks it, not as a general encryption scheme.
package filter

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/secure"
)

const (
	blockLen   = safer.BlockSize
	lengthLen  = 4
	MaxPayload = 0xffff - blockLen
)

var (
	ErrPayloadTooLarge   = errors.New("filter: payload too large")
	ErrInvalidCiphertext = errors.New("filter: ciphertext is not a whole number of blocks")
	ErrInvalidLength     = errors.New("filter: encoded length exceeds ciphertext")
	ErrBlockSize         = errors.New("filter: cipher block size must be 8")
)

// needsTrailer reports whether a payload of n bytes needs an extra block to
// carry its length: when it ends on a block boundary or its last partial
// block has no room left for four length bytes.
func needsTrailer(n int) bool {
	partial := n % blockLen
	return partial == 0 || blockLen-partial < lengthLen
}

// Size returns the framed size of an n byte payload.
func Size(n int) int {
	blocks := (n + blockLen - 1) / blockLen
	if needsTrailer(n) {
		blocks++
	}
	return blocks * blockLen
}

func checkCipher(b cipher.Block) error {
	if b.BlockSize() != blockLen {
		return fmt.Errorf("%w: got %d", ErrBlockSize, b.BlockSize())
	}
	return nil
}

// Apply encrypts data into framed ciphertext.
func Apply(b cipher.Block, data []byte) ([]byte, error) {
	if err := checkCipher(b); err != nil {
		return nil, err
	}
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(data), MaxPayload)
	}

	n := len(data)
	out := make([]byte, Size(n))
	total := len(out) / blockLen

	var last [blockLen]byte
	defer secure.Zero(last[:])
	if !needsTrailer(n) {
		copy(last[:], data[(total-1)*blockLen:])
	}
	binary.LittleEndian.PutUint32(last[blockLen-lengthLen:], uint32(n))

	var block [blockLen]byte
	defer secure.Zero(block[:])
	for i := 0; i < total-1; i++ {
		block = [blockLen]byte{}
		if off := i * blockLen; off < n {
			copy(block[:], data[off:])
		}
		b.Encrypt(out[i*blockLen:], block[:])
	}
	b.Encrypt(out[(total-1)*blockLen:], last[:])

	return out, nil
}

// Clear decrypts framed ciphertext and returns the original payload.
func Clear(b cipher.Block, data []byte) ([]byte, error) {
	if err := checkCipher(b); err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data)%blockLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(data))
	}
	if len(data) > Size(MaxPayload) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(data))
	}

	plain := make([]byte, len(data))
	for off := 0; off < len(data); off += blockLen {
		b.Decrypt(plain[off:], data[off:])
	}

	trailer := binary.LittleEndian.Uint32(plain[len(plain)-lengthLen:])
	if uint64(trailer) > uint64(len(plain)-lengthLen) {
		secure.Zero(plain)
		return nil, fmt.Errorf("%w: %d bytes in %d", ErrInvalidLength, trailer, len(data))
	}
	n := int(trailer)

	secure.Zero(plain[n:])
	return plain[:n:n], nil
}
