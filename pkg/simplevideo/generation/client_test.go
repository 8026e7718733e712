package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSubmit(t *testing.T) {
	var got Job
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"jobId":"job-1","status":"queued"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("secret-token"))
	sub, err := c.Submit(context.Background(), Job{
		VideoID:     "video_1_abc",
		CallbackURL: "https://example.com/webhooks/generation",
		Listing:     Listing{Address: "1 Main St", PhotoURLs: []string{"https://img/1.jpg"}},
		Upload:      UploadTarget{Key: "videos/u/video_1_abc/1_x.mp4", URL: "https://upload", Method: "PUT"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", sub.JobID)
	assert.Equal(t, "Bearer secret-token", auth)
	assert.Equal(t, "video_1_abc", got.VideoID)
	assert.Equal(t, "1 Main St", got.Listing.Address)
	assert.Equal(t, "PUT", got.Upload.Method)
}

func TestClientSubmitUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var calls int32
	c := New(srv.URL, WithUnauthorizedHandler(func(req *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	_, err := c.Submit(context.Background(), Job{VideoID: "v"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "generator overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), Job{VideoID: "v"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "generator overloaded", statusErr.Body)
}

func TestClientSubmitEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sub, err := New(srv.URL).Submit(context.Background(), Job{VideoID: "v"})
	require.NoError(t, err)
	assert.Empty(t, sub.JobID)
}
