package minio

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

func TestHeaderToMap(t *testing.T) {
	h := make(http.Header)
	h.Set("Content-Type", "video/mp4")
	h.Set("X-Amz-Meta-secret-key", "abc")

	m := headerToMap(h)
	assert.Equal(t, "video/mp4", m["Content-Type"])
	assert.Equal(t, "abc", m["X-Amz-Meta-Secret-Key"])
}

func TestTTLOrDefault(t *testing.T) {
	assert.Equal(t, simplevideo.DefaultURLTTL, ttlOrDefault(0))
	assert.Equal(t, 5*time.Minute, ttlOrDefault(5*time.Minute))
}
