package objectkey

import (
	"fmt"
	"strings"
	"time"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for storage backends
	GenerateKey(meta KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	OwnerID  string
	VideoID  string
	FileName string
	// At is the upload time; zero means now.
	At time.Time
}

// TimestampedGenerator produces keys of the form
// {prefix}/{owner}/{videoId}/{unixMillis}_{filename}.
type TimestampedGenerator struct {
	Prefix string
}

func NewTimestampedGenerator() *TimestampedGenerator {
	return &TimestampedGenerator{Prefix: "videos"}
}

func (g *TimestampedGenerator) GenerateKey(meta KeyMetadata) string {
	at := meta.At
	if at.IsZero() {
		at = time.Now()
	}
	filename := sanitize(meta.FileName)
	if filename == "" {
		filename = sanitize(meta.VideoID) + ".mp4"
	}
	key := fmt.Sprintf("%s/%s/%d_%s", sanitize(meta.OwnerID), sanitize(meta.VideoID), at.UnixMilli(), filename)
	if g.Prefix == "" {
		return key
	}
	return strings.TrimRight(g.Prefix, "/") + "/" + key
}

// FuncGenerator adapts a plain function to the Generator interface
type FuncGenerator func(meta KeyMetadata) string

func (f FuncGenerator) GenerateKey(meta KeyMetadata) string {
	return f(meta)
}

// Sanitize replaces every rune outside [A-Za-z0-9._-] with an underscore.
func Sanitize(s string) string {
	return sanitize(s)
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
