package safer

const (
	passphraseWindow = 2 * BlockSize
	printableChars   = '~' - ' ' + 1
	endOfLine        = printableChars
)

// DeriveHalves turns a passphrase into the two key halves consumed by Expand.
//
// Only the first 16 bytes are significant and shorter passphrases are zero
// padded. Each byte is mapped onto the 95 printable ASCII characters (anything
// else counts as end-of-line) and folded into both halves as a base-95 carry
// that runs through k1 and then on into k2.
//
// This is the legacy "reset filter" used by Delta Controls BBMD security. It is
// kept for compatibility with existing ciphertext and is not a general purpose
// key derivation function; see the kdf package for that.
func DeriveHalves(passphrase string) (k1, k2 Half) {
	var window [passphraseWindow]byte
	copy(window[:], passphrase)
	defer zero(window[:])

	copy(k1[:], window[:BlockSize])
	copy(k2[:], window[BlockSize:])

	for _, c := range window {
		var v uint32 = endOfLine
		if c >= ' ' && c <= '~' {
			v = uint32(c - ' ')
		}

		for i := range k1 {
			v += uint32(k1[i]) * printableChars
			k1[i] = byte(v)
			v >>= 8
		}
		for i := range k2 {
			v += uint32(k2[i]) * printableChars
			k2[i] = byte(v)
			v >>= 8
		}
	}

	return k1, k2
}
