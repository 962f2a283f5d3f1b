// Package storage keeps SAFER key halves on disk, sealed under a password.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/kjlockhart/safer/pkg/secure"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeyFileVersion = 1
	SaltSize       = 32
	sealKeySize    = chacha20poly1305.KeySize

	// Upper bounds on the Argon2id cost read back from a key file. The cost
	// is spent before the file can be authenticated.
	MaxSealTime    = 10
	MaxSealMemory  = 1 << 20 // KiB
	MaxSealThreads = 16
)

var (
	ErrEmptyPassword  = errors.New("storage: password cannot be empty")
	ErrWrongPassword  = errors.New("storage: wrong password or corrupted key file")
	ErrUnknownVersion = errors.New("storage: unsupported key file version")
	ErrInvalidKeyFile = errors.New("storage: invalid key file")
)

// KeyFile is the on-disk form. Rounds, Strengthened, KDF and the sealing
// cost are authenticated as associated data, so editing them breaks
// decryption.
type KeyFile struct {
	Version      int        `json:"version"`
	Rounds       int        `json:"rounds"`
	Strengthened bool       `json:"strengthened"`
	KDF          kdf.Method `json:"kdf"`
	Created      time.Time  `json:"created"`
	Params       kdf.Params `json:"params"`
	Salt         []byte     `json:"salt"`
	Nonce        []byte     `json:"nonce"`
	Ciphertext   []byte     `json:"ciphertext"`
}

// KeyOptions describes how the stored halves are to be expanded.
type KeyOptions struct {
	Rounds       int
	Strengthened bool
	KDF          kdf.Method
}

type KeyStore struct {
	filepath string
	params   kdf.Params
}

func NewKeyStore(filepath string) *KeyStore {
	return &KeyStore{
		filepath: filepath,
		params:   kdf.DefaultParams(),
	}
}

// WithParams sets the Argon2id cost used when sealing new key files. Save
// rejects a cost that Load would refuse to read back.
func (s *KeyStore) WithParams(p kdf.Params) *KeyStore {
	s.params = p.WithDefaults()
	return s
}

func (s *KeyStore) Path() string {
	return s.filepath
}

func associatedData(kf *KeyFile) []byte {
	return []byte(fmt.Sprintf("safer-keyfile-v%d:%d:%t:%s:%d:%d:%d",
		kf.Version, kf.Rounds, kf.Strengthened, kf.KDF,
		kf.Params.Time, kf.Params.Memory, kf.Params.Threads))
}

func checkSealParams(p kdf.Params) error {
	if p.Time > MaxSealTime || p.Memory > MaxSealMemory || p.Threads > MaxSealThreads {
		return fmt.Errorf("%w: argon2id cost time=%d memory=%d threads=%d out of range",
			ErrInvalidKeyFile, p.Time, p.Memory, p.Threads)
	}
	return nil
}

func sealKey(password, salt []byte, p kdf.Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, sealKeySize)
}

func (s *KeyStore) Save(k1, k2 safer.Half, opts KeyOptions, password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if err := checkSealParams(s.params); err != nil {
		return err
	}
	defer secure.Zero(k1[:])
	defer secure.Zero(k2[:])

	salt, err := secure.RandomBytes(SaltSize)
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key := sealKey(password, salt, s.params)
	defer secure.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce, err := secure.RandomBytes(aead.NonceSize())
	if err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	kf := &KeyFile{
		Version:      KeyFileVersion,
		Rounds:       opts.Rounds,
		Strengthened: opts.Strengthened,
		KDF:          opts.KDF,
		Created:      time.Now().UTC(),
		Params:       s.params,
		Salt:         salt,
		Nonce:        nonce,
	}

	plain := make([]byte, 0, 2*safer.BlockSize)
	plain = append(plain, k1[:]...)
	plain = append(plain, k2[:]...)
	defer secure.Zero(plain)

	kf.Ciphertext = aead.Seal(nil, nonce, plain, associatedData(kf))

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key file: %w", err)
	}

	dir := filepath.Dir(s.filepath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(s.filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Load opens the key file and returns the expanded schedule alongside the
// file's metadata.
func (s *KeyStore) Load(password []byte) (*safer.Schedule, *KeyFile, error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if kf.Version != KeyFileVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownVersion, kf.Version)
	}
	if len(kf.Salt) == 0 || len(kf.Nonce) != chacha20poly1305.NonceSize {
		return nil, nil, fmt.Errorf("%w: missing salt or nonce", ErrInvalidKeyFile)
	}

	kf.Params = kf.Params.WithDefaults()
	if err := checkSealParams(kf.Params); err != nil {
		return nil, nil, err
	}

	key := sealKey(password, kf.Salt, kf.Params)
	defer secure.Zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plain, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, associatedData(&kf))
	if err != nil {
		return nil, nil, ErrWrongPassword
	}
	defer secure.Zero(plain)

	if len(plain) != 2*safer.BlockSize {
		return nil, nil, fmt.Errorf("%w: key material is %d bytes", ErrInvalidKeyFile, len(plain))
	}

	var k1, k2 safer.Half
	copy(k1[:], plain[:safer.BlockSize])
	copy(k2[:], plain[safer.BlockSize:])

	return safer.Expand(k1, k2, kf.Rounds, kf.Strengthened), &kf, nil
}

func (s *KeyStore) Exists() bool {
	_, err := os.Stat(s.filepath)
	return err == nil
}

// Delete overwrites the file contents before removing it.
func (s *KeyStore) Delete() error {
	if !s.Exists() {
		return nil
	}

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return fmt.Errorf("failed to read file for secure deletion: %w", err)
	}

	if err := secure.Overwrite(data); err != nil {
		return fmt.Errorf("failed to overwrite file: %w", err)
	}

	if err := os.WriteFile(s.filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to overwrite file: %w", err)
	}

	return os.Remove(s.filepath)
}
