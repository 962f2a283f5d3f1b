// Package secure holds small helpers for keeping key material and
// passphrases out of memory once they are no longer needed.
package secure

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"runtime"
	"sync"
)

// SecureBytes is a mutex-guarded buffer that is zeroed when cleared.
type SecureBytes struct {
	data []byte
	mu   sync.RWMutex
}

func FromBytes(data []byte) *SecureBytes {
	sb := &SecureBytes{
		data: make([]byte, len(data)),
	}
	copy(sb.data, data)
	return sb
}

func FromString(s string) *SecureBytes {
	return &SecureBytes{data: []byte(s)}
}

// Get returns a copy of the contents. The caller owns the copy and should
// zero it when done.
func (sb *SecureBytes) Get() []byte {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	result := make([]byte, len(sb.data))
	copy(result, sb.data)
	return result
}

func (sb *SecureBytes) Destroy() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	Zero(sb.data)
	sb.data = nil
}

func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Overwrite fills b with random bytes and then zeroes it.
func Overwrite(b []byte) error {
	if _, err := rand.Read(b); err != nil {
		return fmt.Errorf("failed to overwrite with random data: %w", err)
	}
	Zero(b)
	return nil
}

func ConstantTimeCompare(x, y []byte) bool {
	if len(x) != len(y) {
		return false
	}
	return subtle.ConstantTimeCompare(x, y) == 1
}

func RandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		Zero(b)
		return nil, fmt.Errorf("failed to generate secure random bytes: %w", err)
	}
	return b, nil
}
