package gcs

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

func testPrivateKey(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(context.Background(), Config{
		Bucket:                "listing-videos",
		GoogleAccessID:        "signer@project.iam.gserviceaccount.com",
		PrivateKey:            testPrivateKey(t),
		WithoutAuthentication: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{WithoutAuthentication: true})
	assert.Error(t, err)
}

func TestGetUploadURLSignsMetadataHeaders(t *testing.T) {
	b := newTestBackend(t)

	req, err := b.GetUploadURL(context.Background(), simplevideo.UploadURLParams{
		Key:         "videos/u/video_1/1_tour.mp4",
		ContentType: "video/mp4",
		Metadata:    map[string]string{simplevideo.MetaSecretKey: "s3cr3t", simplevideo.MetaVideoID: "video_1"},
		TTL:         15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "PUT", req.Method)
	assert.Equal(t, "video/mp4", req.Headers["Content-Type"])
	assert.Equal(t, "s3cr3t", req.Headers["x-goog-meta-secret-key"])

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "900", q.Get("X-Goog-Expires"))
	assert.NotEmpty(t, q.Get("X-Goog-Signature"))
	signed := q.Get("X-Goog-SignedHeaders")
	assert.Contains(t, signed, "x-goog-meta-secret-key")
	assert.Contains(t, signed, "content-type")
	assert.True(t, strings.Contains(u.Path, "listing-videos"))
}

func TestGetDownloadURLDefaultsTTL(t *testing.T) {
	b := newTestBackend(t)

	raw, err := b.GetDownloadURL(context.Background(), "videos/u/v/1_a.mp4", "tour.mp4", 0)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "3600", u.Query().Get("X-Goog-Expires"))
	assert.Contains(t, u.Query().Get("response-content-disposition"), "tour.mp4")
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, Config{}.ClientOptions(), 1)
	assert.Len(t, Config{CredentialsJSON: "{}", Endpoint: "http://localhost:4443/storage/v1/"}.ClientOptions(), 3)
}
