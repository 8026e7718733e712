package simplevideo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://host/path/My_Great-Listing.mp4", "My Great Listing"},
		{"https://host/a/b/tour.final.mov?sig=abc", "tour.final"},
		{"https://host/clips/__Front--Yard__.webm", "Front Yard"},
		{"https://host/dir/", "dir"},
		{"https://host/", DefaultTitle},
		{"https://host", DefaultTitle},
		{"https://host/___.mp4", DefaultTitle},
		{"https://host/Sunset%20Villa.mp4", "Sunset Villa"},
		{"://bad", DefaultTitle},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, TitleFromURL(tt.url))
		})
	}
}

func TestFormatFromContentType(t *testing.T) {
	assert.Equal(t, "mp4", formatFromContentType("video/mp4"))
	assert.Equal(t, "webm", formatFromContentType("video/webm; codecs=vp9"))
	assert.Equal(t, "mp4", formatFromContentType(""))
	assert.Equal(t, "binary", formatFromContentType("binary"))
}
