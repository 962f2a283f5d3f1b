package validation

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/kjlockhart/safer/pkg/crypto/safer"
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// MaxPassphraseLength bounds interactive input; only the first 16 bytes reach
// the legacy derivation.
const MaxPassphraseLength = 256

func ValidateHex(input string) error {
	input = strings.TrimSpace(input)
	if len(input) == 0 {
		return fmt.Errorf("hex string cannot be empty")
	}

	if len(input)%2 != 0 {
		return fmt.Errorf("hex string must have even length")
	}

	if !hexPattern.MatchString(input) {
		return fmt.Errorf("invalid hex characters")
	}

	return nil
}

// ParseBlock decodes exactly one 8-byte block from hex. Spaces are ignored so
// blocks can be pasted as grouped bytes.
func ParseBlock(input string) (safer.Block, error) {
	var b safer.Block

	input = strings.Join(strings.Fields(input), "")
	if err := ValidateHex(input); err != nil {
		return b, fmt.Errorf("invalid block: %w", err)
	}
	if len(input) != 2*safer.BlockSize {
		return b, fmt.Errorf("block must be %d hex characters (got %d)", 2*safer.BlockSize, len(input))
	}

	if _, err := hex.Decode(b[:], []byte(input)); err != nil {
		return b, fmt.Errorf("failed to decode block: %w", err)
	}
	return b, nil
}

func ValidateRounds(rounds int) error {
	if rounds < 1 || rounds > safer.MaxRounds {
		return fmt.Errorf("rounds must be between 1 and %d (got %d)", safer.MaxRounds, rounds)
	}
	return nil
}

// ValidatePassphrase accepts any bytes, embedded NULs included, since the
// legacy derivation maps them like any other non-printable byte.
func ValidatePassphrase(passphrase string) error {
	if len(passphrase) > MaxPassphraseLength {
		return fmt.Errorf("passphrase too long (max %d characters)", MaxPassphraseLength)
	}
	return nil
}

// ParseSalt decodes a hex salt. An empty string yields a nil salt.
func ParseSalt(input string) ([]byte, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if err := ValidateHex(input); err != nil {
		return nil, fmt.Errorf("invalid salt: %w", err)
	}

	salt, err := hex.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	if len(salt) < 8 {
		return nil, fmt.Errorf("salt must be at least 8 bytes (got %d)", len(salt))
	}
	return salt, nil
}
