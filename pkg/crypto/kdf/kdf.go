// Package kdf derives SAFER key halves from passphrases.
//
// MethodLegacy reproduces the Delta Controls reset filter and must be used to
// talk to existing equipment. The other methods are salted, memory- or
// iteration-hardened derivations for new data.
package kdf

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/secure"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

type Method string

const (
	MethodLegacy   Method = "legacy"
	MethodPBKDF2   Method = "pbkdf2"
	MethodArgon2id Method = "argon2id"
)

const (
	keyLen = 2 * safer.BlockSize

	// SaltSize is the salt length used when generating a new salt.
	SaltSize = 16
)

var (
	ErrUnknownMethod = errors.New("kdf: unknown method")
	ErrSaltRequired  = errors.New("kdf: salt required")
)

// Params tunes the hardened methods. Zero fields take the defaults.
type Params struct {
	Iterations int    `json:"iterations,omitempty"` // PBKDF2
	Time       uint32 `json:"time,omitempty"`       // Argon2id passes
	Memory     uint32 `json:"memory,omitempty"`     // Argon2id KiB
	Threads    uint8  `json:"threads,omitempty"`    // Argon2id lanes
}

func DefaultParams() Params {
	return Params{
		Iterations: 100000,
		Time:       3,
		Memory:     64 * 1024,
		Threads:    4,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.Iterations <= 0 {
		p.Iterations = d.Iterations
	}
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	return p
}

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodLegacy, MethodPBKDF2, MethodArgon2id:
		return m, nil
	case "":
		return MethodLegacy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Salted reports whether the method consumes a salt.
func (m Method) Salted() bool {
	return m == MethodPBKDF2 || m == MethodArgon2id
}

// Derive turns passphrase into key halves with the given method. The legacy
// method ignores salt and params.
func Derive(m Method, passphrase string, salt []byte, params Params) (k1, k2 safer.Half, err error) {
	if m == MethodLegacy {
		k1, k2 = safer.DeriveHalves(passphrase)
		return k1, k2, nil
	}

	if !m.Salted() {
		return k1, k2, fmt.Errorf("%w: %q", ErrUnknownMethod, string(m))
	}
	if len(salt) == 0 {
		return k1, k2, fmt.Errorf("%w for %s", ErrSaltRequired, m)
	}

	params = params.WithDefaults()

	var key []byte
	switch m {
	case MethodPBKDF2:
		key = pbkdf2.Key([]byte(passphrase), salt, params.Iterations, keyLen, sha256.New)
	case MethodArgon2id:
		key = argon2.IDKey([]byte(passphrase), salt, params.Time, params.Memory, params.Threads, keyLen)
	}
	defer secure.Zero(key)

	copy(k1[:], key[:safer.BlockSize])
	copy(k2[:], key[safer.BlockSize:])
	return k1, k2, nil
}

// NewSalt returns a fresh random salt of SaltSize bytes.
func NewSalt() ([]byte, error) {
	return secure.RandomBytes(SaltSize)
}
