package objectkey

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampedGenerator(t *testing.T) {
	gen := NewTimestampedGenerator()
	at := time.UnixMilli(1700000000123)

	tests := []struct {
		name     string
		meta     KeyMetadata
		expected string
	}{
		{
			name:     "user owner with plain filename",
			meta:     KeyMetadata{OwnerID: "user-42", VideoID: "video_1_abc", FileName: "listing.mp4", At: at},
			expected: "videos/user-42/video_1_abc/1700000000123_listing.mp4",
		},
		{
			name:     "email owner and unsafe filename",
			meta:     KeyMetadata{OwnerID: "agent@example.com", VideoID: "video_1_abc", FileName: "My Great/Listing (1).mp4", At: at},
			expected: "videos/agent_example.com/video_1_abc/1700000000123_My_Great_Listing__1_.mp4",
		},
		{
			name:     "missing filename falls back to video id",
			meta:     KeyMetadata{OwnerID: "u", VideoID: "video_1_abc", At: at},
			expected: "videos/u/video_1_abc/1700000000123_video_1_abc.mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, gen.GenerateKey(tt.meta))
		})
	}
}

func TestTimestampedGeneratorCustomPrefix(t *testing.T) {
	gen := &TimestampedGenerator{Prefix: "tenant-a/videos/"}
	key := gen.GenerateKey(KeyMetadata{OwnerID: "u", VideoID: "v", FileName: "f.mp4", At: time.UnixMilli(5)})
	assert.Equal(t, "tenant-a/videos/u/v/5_f.mp4", key)

	gen = &TimestampedGenerator{}
	key = gen.GenerateKey(KeyMetadata{OwnerID: "u", VideoID: "v", FileName: "f.mp4", At: time.UnixMilli(5)})
	assert.Equal(t, "u/v/5_f.mp4", key)
}

func TestFuncGenerator(t *testing.T) {
	gen := FuncGenerator(func(meta KeyMetadata) string {
		return "custom/" + meta.VideoID
	})
	assert.Equal(t, "custom/video_9", gen.GenerateKey(KeyMetadata{VideoID: "video_9"}))
}

func TestSanitize(t *testing.T) {
	safe := regexp.MustCompile(`^[A-Za-z0-9._-]*$`)
	inputs := []string{"a b", "ünïcode.mp4", "../../etc/passwd", "x?y=z&w", "already_safe-1.0"}
	for _, in := range inputs {
		out := Sanitize(in)
		assert.Regexp(t, safe, out, in)
		assert.Equal(t, len([]rune(in)), len(out), in)
	}
	assert.Equal(t, "already_safe-1.0", Sanitize("already_safe-1.0"))
}
