package artifactstore

import (
	"encoding/hex"
	"os"
	"sync/atomic"
)

var tmpCounter uint64

// randomSuffix returns a unique-enough suffix for temp files used by the
// write-to-temp + rename pattern in Write. It mixes the process id with a
// monotonic counter rather than crypto/rand since collision resistance,
// not unpredictability, is all that's required here.
func randomSuffix() string {
	n := atomic.AddUint64(&tmpCounter, 1)
	buf := make([]byte, 12)
	pid := uint32(os.Getpid())
	buf[0] = byte(pid)
	buf[1] = byte(pid >> 8)
	buf[2] = byte(pid >> 16)
	buf[3] = byte(pid >> 24)
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(n >> (8 * i))
	}
	return hex.EncodeToString(buf)
}
