package simplevideo

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewVideoID returns an id of the form video_{unixMillis}_{9 base36 chars}.
func NewVideoID() string {
	return newVideoIDAt(time.Now())
}

func newVideoIDAt(t time.Time) string {
	return fmt.Sprintf("video_%d_%s", t.UnixMilli(), randomBase36(9))
}

func randomBase36(n int) string {
	max := big.NewInt(int64(len(base36)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("simplevideo: crypto/rand failed: %v", err))
		}
		b[i] = base36[idx.Int64()]
	}
	return string(b)
}

// NewSecretKey returns 32 random bytes, hex encoded.
func NewSecretKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("simplevideo: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
