package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
}

// Backend is an in-memory implementation of the simplevideo.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplevideo.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
	}

	md := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		md[k] = v
	}
	return &simplevideo.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		Metadata:    md,
	}, nil
}

// GetUploadURL returns a memory:// pseudo URL together with the headers a
// real backend would require
func (b *Backend) GetUploadURL(ctx context.Context, params simplevideo.UploadURLParams) (*simplevideo.PresignedRequest, error) {
	headers := map[string]string{}
	if params.ContentType != "" {
		headers["Content-Type"] = params.ContentType
	}
	for k, v := range params.Metadata {
		headers["X-Amz-Meta-"+k] = v
	}
	return &simplevideo.PresignedRequest{
		URL:     pseudoURL(params.Key, params.TTL),
		Method:  "PUT",
		Headers: headers,
	}, nil
}

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, params simplevideo.UploadParams) error {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return err
	}
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	md := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		md[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.Key] = &object{
		data:        data,
		contentType: contentType,
		metadata:    md,
		updatedAt:   time.Now().UTC(),
	}
	return nil
}

// GetDownloadURL returns a memory:// pseudo URL for an existing object
func (b *Backend) GetDownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	b.mu.RLock()
	_, exists := b.objects[key]
	b.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
	}
	return pseudoURL(key, ttl), nil
}

// Download returns the stored bytes
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
	}
	delete(b.objects, key)
	return nil
}

// Len reports how many objects are stored
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

func pseudoURL(key string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = simplevideo.DefaultURLTTL
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprint(time.Now().Add(ttl).Unix()))
	return "memory:///" + key + "?" + q.Encode()
}
