package safer

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrMalformedSchedule is returned by ParseSchedule when the encoded length
// does not match the round count stored in byte 0.
var ErrMalformedSchedule = errors.New("safer: malformed key schedule")

// Subkey is one 8-byte group of expanded key material.
type Subkey [BlockSize]byte

// RoundKey holds the two subkeys consumed by one round: Mix keys the input
// state and Sub biases the output of the S-box layer.
type RoundKey struct {
	Mix Subkey
	Sub Subkey
}

// Schedule is an expanded key. It is immutable once built and safe for
// concurrent use by any number of encrypt and decrypt calls.
type Schedule struct {
	rounds int
	keys   []RoundKey
	final  Subkey
	tracer Tracer
}

// ScheduleLen returns the length of the flat encoding of a schedule with the
// given number of rounds.
func ScheduleLen(rounds int) int {
	return 1 + BlockSize*(1+2*rounds)
}

func clampRounds(rounds int) int {
	if rounds < 1 {
		return 1
	}
	if rounds > MaxRounds {
		return MaxRounds
	}
	return rounds
}

// Expand builds the key schedule for the halves k1 and k2.
//
// Requested round counts above MaxRounds saturate to MaxRounds and counts
// below one are raised to one; Rounds reports the value actually used. With
// strengthened set the SK variant of the schedule is produced, which rotates
// the key bytes feeding each round through the 9-byte working registers.
func Expand(k1, k2 Half, rounds int, strengthened bool) *Schedule {
	initTables()
	defer zero(k1[:])
	defer zero(k2[:])

	rounds = clampRounds(rounds)

	var ka, kb [BlockSize + 1]byte
	defer zero(ka[:])
	defer zero(kb[:])

	for j := 0; j < BlockSize; j++ {
		ka[j] = bits.RotateLeft8(k1[j], 5)
		kb[j] = k2[j]
		ka[BlockSize] ^= ka[j]
		kb[BlockSize] ^= kb[j]
	}

	groups := make([]Subkey, 1+2*rounds)
	defer zeroSubkeys(groups)
	groups[0] = Subkey(k2)

	for r := 1; r <= rounds; r++ {
		for j := range ka {
			ka[j] = bits.RotateLeft8(ka[j], 6)
			kb[j] = bits.RotateLeft8(kb[j], 6)
		}

		a, b := &groups[2*r-1], &groups[2*r]
		for j := 0; j < BlockSize; j++ {
			ia, ib := j, j
			if strengthened {
				ia = (j + 2*r - 1) % (BlockSize + 1)
				ib = (j + 2*r) % (BlockSize + 1)
			}
			a[j] = ka[ia] + expTab[expTab[18*r+j+1]]
			b[j] = kb[ib] + expTab[expTab[18*r+j+10]]
		}
	}

	return fromGroups(rounds, groups)
}

// fromGroups lays the groups G0..G2r out in the order the cipher consumes
// them: round i keys with G2i and biases with G2i+1, G2r whitens the output.
func fromGroups(rounds int, groups []Subkey) *Schedule {
	s := &Schedule{
		rounds: rounds,
		keys:   make([]RoundKey, rounds),
		final:  groups[2*rounds],
	}
	for i := range s.keys {
		s.keys[i] = RoundKey{Mix: groups[2*i], Sub: groups[2*i+1]}
	}
	return s
}

// ParseSchedule decodes the flat byte form produced by Bytes.
func ParseSchedule(b []byte) (*Schedule, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedSchedule)
	}

	rounds := int(b[0])
	if rounds < 1 || rounds > MaxRounds {
		return nil, fmt.Errorf("%w: round count %d out of range", ErrMalformedSchedule, rounds)
	}
	if want := ScheduleLen(rounds); len(b) != want {
		return nil, fmt.Errorf("%w: %d rounds need %d bytes, got %d",
			ErrMalformedSchedule, rounds, want, len(b))
	}

	initTables()

	groups := make([]Subkey, 1+2*rounds)
	defer zeroSubkeys(groups)
	for i := range groups {
		copy(groups[i][:], b[1+i*BlockSize:])
	}

	return fromGroups(rounds, groups), nil
}

// Rounds returns the number of rounds the schedule was built with, after
// saturation.
func (s *Schedule) Rounds() int {
	return s.rounds
}

// RoundKeys returns a copy of the per-round subkeys.
func (s *Schedule) RoundKeys() []RoundKey {
	keys := make([]RoundKey, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Final returns the output whitening subkey.
func (s *Schedule) Final() Subkey {
	return s.final
}

// Bytes returns the flat encoding: the round count followed by 1+2*rounds
// groups of 8 bytes.
func (s *Schedule) Bytes() []byte {
	out := make([]byte, 0, ScheduleLen(s.rounds))
	out = append(out, byte(s.rounds))
	for _, k := range s.keys {
		out = append(out, k.Mix[:]...)
		out = append(out, k.Sub[:]...)
	}
	return append(out, s.final[:]...)
}

// Wipe zeroes the key material. Copies returned by WithTracer share it.
func (s *Schedule) Wipe() {
	for i := range s.keys {
		zero(s.keys[i].Mix[:])
		zero(s.keys[i].Sub[:])
	}
	zero(s.final[:])
}

func zeroSubkeys(groups []Subkey) {
	for i := range groups {
		zero(groups[i][:])
	}
}
