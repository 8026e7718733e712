package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// MetadataHeaderPrefix is the header prefix GCS maps onto custom object metadata.
const MetadataHeaderPrefix = "x-goog-meta-"

// Config options for the Google Cloud Storage backend
type Config struct {
	Bucket string
	// CredentialsJSON or CredentialsFile select service account credentials.
	// With neither set, application default credentials are used.
	CredentialsJSON string
	CredentialsFile string
	// Endpoint points the client at an emulator.
	Endpoint string
	// GoogleAccessID and PrivateKey sign URLs locally instead of through the
	// IAM credentials API.
	GoogleAccessID string
	PrivateKey     []byte
	// WithoutAuthentication disables credentials, for emulators and tests.
	WithoutAuthentication bool
}

// Backend is a Google Cloud Storage implementation of the simplevideo.BlobStore interface
type Backend struct {
	client *storage.Client
	bucket string
	config Config
}

// ClientOptions converts the config into client options
func (c Config) ClientOptions() []option.ClientOption {
	opts := []option.ClientOption{}
	switch {
	case c.WithoutAuthentication:
		opts = append(opts, option.WithoutAuthentication())
	case strings.TrimSpace(c.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	return append(opts, option.WithScopes(storage.ScopeReadWrite))
}

// New creates a GCS backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx, config.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Backend{client: client, bucket: config.Bucket, config: config}, nil
}

// Close releases the underlying client
func (b *Backend) Close() error {
	return b.client.Close()
}

// Upload writes an object with its content type and custom metadata
func (b *Backend) Upload(ctx context.Context, params simplevideo.UploadParams) error {
	w := b.client.Bucket(b.bucket).Object(params.Key).NewWriter(ctx)
	w.ContentType = params.ContentType
	w.Metadata = params.Metadata
	if _, err := io.Copy(w, params.Body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// GetObjectMeta reads object attributes
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplevideo.ObjectMeta, error) {
	attrs, err := b.client.Bucket(b.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read GCS object attrs: %w", err)
	}
	md := make(map[string]string, len(attrs.Metadata))
	for k, v := range attrs.Metadata {
		md[strings.ToLower(k)] = v
	}
	return &simplevideo.ObjectMeta{
		Key:         key,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		UpdatedAt:   attrs.Updated,
		ETag:        attrs.Etag,
		Metadata:    md,
	}, nil
}

// GetDownloadURL signs a V4 GET URL
func (b *Backend) GetDownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	opts := b.signOptions(http.MethodGet, ttl)
	if filename != "" {
		opts.QueryParameters = map[string][]string{
			"response-content-disposition": {fmt.Sprintf("attachment; filename=\"%s\"", filename)},
		}
	}
	u, err := b.sign(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign GCS download URL: %w", err)
	}
	return u, nil
}

// GetUploadURL signs a V4 PUT URL. The content type and every metadata
// header are part of the signature, so the uploader must send them as given.
func (b *Backend) GetUploadURL(ctx context.Context, params simplevideo.UploadURLParams) (*simplevideo.PresignedRequest, error) {
	opts := b.signOptions(http.MethodPut, params.TTL)
	opts.ContentType = params.ContentType

	headers := uploadHeaders(params.ContentType, params.Metadata)
	for _, name := range sortedKeys(headers) {
		if strings.HasPrefix(name, MetadataHeaderPrefix) {
			opts.Headers = append(opts.Headers, name+":"+headers[name])
		}
	}

	u, err := b.sign(params.Key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to sign GCS upload URL: %w", err)
	}
	return &simplevideo.PresignedRequest{URL: u, Method: http.MethodPut, Headers: headers}, nil
}

// Delete removes an object
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Bucket(b.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, b.bucket, err)
	}
	return nil
}

func (b *Backend) signOptions(method string, ttl time.Duration) *storage.SignedURLOptions {
	if ttl <= 0 {
		ttl = simplevideo.DefaultURLTTL
	}
	return &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: b.config.GoogleAccessID,
		PrivateKey:     b.config.PrivateKey,
	}
}

func (b *Backend) sign(key string, opts *storage.SignedURLOptions) (string, error) {
	if opts.GoogleAccessID != "" && len(opts.PrivateKey) > 0 {
		return storage.SignedURL(b.bucket, key, opts)
	}
	return b.client.Bucket(b.bucket).SignedURL(key, opts)
}

func uploadHeaders(contentType string, metadata map[string]string) map[string]string {
	headers := make(map[string]string, len(metadata)+1)
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	for k, v := range metadata {
		headers[MetadataHeaderPrefix+strings.ToLower(k)] = v
	}
	return headers
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
