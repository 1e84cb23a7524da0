package cryptox

import "github.com/dmitrijs2005/journalkeeper/internal/common"

// Wipe zeroes every slice passed in.
func Wipe(bufs ...[]byte) {
	for _, b := range bufs {
		common.WipeByteArray(b)
	}
}

// LockMemory pins b in RAM so key material is never swapped out. It is best
// effort: platforms without mlock return nil, and callers ignore failures
// caused by RLIMIT_MEMLOCK.
func LockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return lockMemory(b)
}

// UnlockMemory undoes LockMemory.
func UnlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unlockMemory(b)
}
