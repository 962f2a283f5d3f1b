package safer

import "sync"

// The S-boxes are powers of 45 modulo the prime 257. 45^128 = 256 does not fit
// in a byte and is stored as 0, so exp/log stay mutually inverse over 0..255.
const (
	tabLen    = 256
	modulus   = 257
	generator = 45
)

var (
	expTab [tabLen]byte
	logTab [tabLen]byte

	tablesOnce sync.Once
)

func initTables() {
	tablesOnce.Do(func() {
		x := 1
		for i := 0; i < tabLen; i++ {
			expTab[i] = byte(x)
			logTab[expTab[i]] = byte(i)
			x = x * generator % modulus
		}
	})
}

// Tables returns copies of the EXP and LOG substitution tables.
func Tables() (exp, log [tabLen]byte) {
	initTables()
	return expTab, logTab
}
