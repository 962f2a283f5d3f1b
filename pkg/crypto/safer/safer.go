// Package safer implements the SAFER K-64/K-128 and SK-64/SK-128 block cipher
// (Massey, 1994) on 8-byte blocks, together with the legacy passphrase
// derivation used by Delta Controls BBMD foreign device registration.
//
// The core is a set of pure functions: DeriveHalves turns a passphrase into key
// halves, Expand turns halves into a Schedule, and the Schedule encrypts and
// decrypts single blocks. Padding, chaining and authentication are left to the
// caller.
package safer

import (
	"crypto/cipher"
	"runtime"
)

const (
	// BlockSize is the SAFER block size in bytes.
	BlockSize = 8

	// MaxRounds is the largest round count a schedule can hold. Larger
	// requests saturate to it.
	MaxRounds = 13

	K64DefaultRounds   = 6
	K128DefaultRounds  = 10
	SK64DefaultRounds  = 8
	SK128DefaultRounds = 10

	// SK128Rounds is the round count of the Delta Controls SK-128 preset.
	SK128Rounds = 11
)

// Block is one 8-byte cipher block.
type Block [BlockSize]byte

// Half is one 8-byte half of the 128-bit user key.
type Half [BlockSize]byte

// NewSK128 derives halves from passphrase and expands them with the
// strengthened schedule over SK128Rounds rounds. With the passphrase
// "DeltaControlsInc." this yields the key used by Delta BBMD security.
func NewSK128(passphrase string) *Schedule {
	k1, k2 := DeriveHalves(passphrase)
	return Expand(k1, k2, SK128Rounds, true)
}

type saferCipher struct {
	s *Schedule
}

// NewCipher returns a cipher.Block backed by s, for use with the modes in
// crypto/cipher or with the filter package.
func NewCipher(s *Schedule) cipher.Block {
	return &saferCipher{s: s}
}

func (c *saferCipher) BlockSize() int { return BlockSize }

func (c *saferCipher) Encrypt(dst, src []byte) {
	in, out := checkBlocks(dst, src)
	*out = c.s.EncryptBlock(*in)
}

func (c *saferCipher) Decrypt(dst, src []byte) {
	in, out := checkBlocks(dst, src)
	*out = c.s.DecryptBlock(*in)
}

func checkBlocks(dst, src []byte) (*Block, *Block) {
	if len(src) < BlockSize {
		panic("safer: input not full block")
	}
	if len(dst) < BlockSize {
		panic("safer: output not full block")
	}
	return (*Block)(src), (*Block)(dst)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
