package secure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureBytes(t *testing.T) {
	original := []byte("DeltaControlsInc.")
	sb := FromBytes(original)

	original[0] = 'X'
	assert.Equal(t, []byte("DeltaControlsInc."), sb.Get(), "FromBytes must copy")

	got := sb.Get()
	got[0] = 'Y'
	assert.Equal(t, []byte("DeltaControlsInc."), sb.Get(), "Get must return a copy")

	sb.Destroy()
	assert.Empty(t, sb.Get())
}

func TestFromString(t *testing.T) {
	sb := FromString("passphrase")
	assert.Equal(t, []byte("passphrase"), sb.Get())
	sb.Destroy()
	assert.Empty(t, sb.Get())
}

func TestZero(t *testing.T) {
	data := []byte("key halves")
	Zero(data)
	for _, b := range data {
		assert.Equal(t, byte(0), b)
	}
}

func TestOverwrite(t *testing.T) {
	data := []byte("schedule bytes to be overwritten")
	require.NoError(t, Overwrite(data))
	for _, b := range data {
		assert.Equal(t, byte(0), b)
	}
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte("86f0cc032822b859")
	b := []byte("86f0cc032822b859")
	c := []byte("cfd8e6351827b7fb")

	assert.True(t, ConstantTimeCompare(a, b))
	assert.False(t, ConstantTimeCompare(a, c))
	assert.False(t, ConstantTimeCompare(a, a[:8]))
	assert.False(t, ConstantTimeCompare(a, []byte{}))
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(16)
	require.NoError(t, err)
	b, err := RandomBytes(16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
