package filter

import (
	"bytes"
	"crypto/aes"
	"encoding/hex"
	"testing"

	"github.com/kjlockhart/safer/pkg/crypto/safer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedPacket is a BBMD registration payload encrypted with the Delta
// public key.
const (
	capturedPacket  = "86f0cc032822b859cfd8e6351827b7fbf27ccf5c3fd04d33"
	capturedPayload = "0c062e0976010a033c0008004c4f47494e00"
)

func deltaCipher() *safer.Schedule {
	return safer.NewSK128("DeltaControlsInc.")
}

func TestClearCapturedPacket(t *testing.T) {
	b := safer.NewCipher(deltaCipher())
	packet, err := hex.DecodeString(capturedPacket)
	require.NoError(t, err)

	payload, err := Clear(b, packet)
	require.NoError(t, err)
	assert.Equal(t, capturedPayload, hex.EncodeToString(payload))
	assert.True(t, bytes.Contains(payload, []byte("LOGIN")))

	again, err := Apply(b, payload)
	require.NoError(t, err)
	assert.Equal(t, capturedPacket, hex.EncodeToString(again))
}

func TestSize(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 8},
		{1, 8},
		{4, 8},
		{5, 16},
		{7, 16},
		{8, 16},
		{12, 16},
		{13, 24},
		{18, 24},
		{MaxPayload, 65536},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Size(tt.n), "Size(%d)", tt.n)
	}
}

func TestRoundTrip(t *testing.T) {
	b := safer.NewCipher(deltaCipher())

	for n := 0; n <= 40; n++ {
		payload := bytes.Repeat([]byte{0xA5}, n)
		for i := range payload {
			payload[i] ^= byte(i)
		}

		framed, err := Apply(b, payload)
		require.NoError(t, err)
		assert.Len(t, framed, Size(n))

		got, err := Clear(b, framed)
		require.NoError(t, err)
		assert.Equal(t, payload, got, "n=%d", n)
	}
}

func TestApplyLimits(t *testing.T) {
	b := safer.NewCipher(deltaCipher())

	_, err := Apply(b, make([]byte, MaxPayload))
	assert.NoError(t, err)

	_, err = Apply(b, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	block, err := aes.NewCipher(make([]byte, 16))
	require.NoError(t, err)
	_, err = Apply(block, []byte("data"))
	assert.ErrorIs(t, err, ErrBlockSize)
	_, err = Clear(block, make([]byte, 16))
	assert.ErrorIs(t, err, ErrBlockSize)
}

func TestClearErrors(t *testing.T) {
	b := safer.NewCipher(deltaCipher())

	_, err := Clear(b, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Clear(b, make([]byte, 12))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	// A trailer claiming more bytes than the frame holds.
	var trailer [8]byte
	trailer[4] = 0xFF
	forged := make([]byte, 8)
	b.Encrypt(forged, trailer[:])
	_, err = Clear(b, forged)
	assert.ErrorIs(t, err, ErrInvalidLength)

	// Trailers with the top bit set must not wrap to a negative length.
	for _, top := range []byte{0x80, 0xFF} {
		trailer = [8]byte{}
		trailer[7] = top
		b.Encrypt(forged, trailer[:])
		_, err = Clear(b, forged)
		assert.ErrorIs(t, err, ErrInvalidLength, "trailer %#x", top)
	}
}
