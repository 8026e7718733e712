package simplevideo

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewVideoIDFormat(t *testing.T) {
	id := NewVideoID()
	assert.Regexp(t, regexp.MustCompile(`^video_\d{13}_[0-9a-z]{9}$`), id)
}

func TestNewVideoIDUniqueWithinSameMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := newVideoIDAt(at)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

func TestNewSecretKey(t *testing.T) {
	a, b := NewSecretKey(), NewSecretKey()
	assert.Len(t, a, 64)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), a)
	assert.NotEqual(t, a, b)
}
