//go:build integration

package s3_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/storage/s3"
)

func startMinIO(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return "http://" + host + ":" + port.Port()
}

// TestS3BackendWithMinIO drives the S3 backend against an S3-compatible server
func TestS3BackendWithMinIO(t *testing.T) {
	ctx := context.Background()
	endpoint := startMinIO(t)

	backend, err := s3.New(ctx, s3.Config{
		Region:                 "us-east-1",
		Bucket:                 "test-bucket-" + time.Now().Format("20060102150405"),
		AccessKeyID:            "minioadmin",
		SecretAccessKey:        "minioadmin",
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	gw := simplevideo.NewGateway("s3", backend)
	owner := simplevideo.UserID("agent-7")
	key := gw.GenerateStorageKey(owner, "video_9_xyz", "walkthrough.mp4")
	secret := simplevideo.NewSecretKey()

	require.NoError(t, gw.UploadDirect(ctx, key, secret, strings.NewReader("s3-bytes"), int64(len("s3-bytes")), "video/mp4", nil))

	meta, err := backend.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(8), meta.Size)
	assert.Equal(t, secret, meta.Metadata[simplevideo.MetaSecretKey])

	u, err := gw.CreateDownloadURL(ctx, key, secret, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u.URL, "X-Amz-Algorithm")
	resp, err := http.Get(u.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "s3-bytes", string(body))

	_, err = gw.CreateDownloadURL(ctx, key, "not-the-secret", time.Minute)
	assert.ErrorIs(t, err, simplevideo.ErrAccessDenied)

	assert.True(t, gw.Delete(ctx, key, secret))
	_, err = backend.GetObjectMeta(ctx, key)
	assert.ErrorIs(t, err, simplevideo.ErrObjectNotFound)
}
