package simplevideo_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-video/pkg/simplevideo"
)

func TestHTTPFetcherNilClientWithTimeout(t *testing.T) {
	src := newSourceServer(t)

	var f *simplevideo.HTTPFetcher
	require.NotPanics(t, func() {
		f = simplevideo.NewHTTPFetcher(simplevideo.WithHTTPClient(nil), simplevideo.WithFetchTimeout(time.Second))
	})

	fetched, err := f.Fetch(context.Background(), src.URL+"/clips/a.mp4")
	require.NoError(t, err)
	defer fetched.Body.Close()
	data, err := io.ReadAll(fetched.Body)
	require.NoError(t, err)
	assert.Equal(t, videoBody, string(data))
}

func TestHTTPFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)
	t.Cleanup(func() { close(release) })

	client := &http.Client{}
	tests := []struct {
		name string
		opts []simplevideo.FetcherOption
	}{
		{"timeout after client", []simplevideo.FetcherOption{simplevideo.WithHTTPClient(client), simplevideo.WithFetchTimeout(50 * time.Millisecond)}},
		{"timeout before client", []simplevideo.FetcherOption{simplevideo.WithFetchTimeout(50 * time.Millisecond), simplevideo.WithHTTPClient(client)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := simplevideo.NewHTTPFetcher(tt.opts...).Fetch(context.Background(), slow.URL+"/clip.mp4")
			assert.ErrorIs(t, err, simplevideo.ErrUpstreamFetch)
		})
	}
	assert.Zero(t, client.Timeout)
}
