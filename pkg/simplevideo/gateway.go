package simplevideo

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/simple-video/pkg/simplevideo/objectkey"
)

// Gateway mediates every access to the object store. Reads and deletes are
// only performed after the caller proves knowledge of the object's secret.
type Gateway struct {
	backend string
	store   BlobStore
	keys    objectkey.Generator
	logger  *slog.Logger
	now     func() time.Time
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithGatewayKeyGenerator replaces the default timestamped key layout.
func WithGatewayKeyGenerator(g objectkey.Generator) GatewayOption {
	return func(gw *Gateway) {
		gw.keys = g
	}
}

// WithGatewayLogger sets the logger used for swallowed failures.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(gw *Gateway) {
		gw.logger = l
	}
}

// NewGateway wraps a blob store registered under the given backend name.
func NewGateway(backend string, store BlobStore, opts ...GatewayOption) *Gateway {
	gw := &Gateway{
		backend: backend,
		store:   store,
		keys:    objectkey.NewTimestampedGenerator(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(gw)
	}
	return gw
}

// Backend returns the name of the underlying blob store.
func (g *Gateway) Backend() string {
	return g.backend
}

// Store returns the underlying blob store.
func (g *Gateway) Store() BlobStore {
	return g.store
}

// GenerateStorageKey returns the object key for a new upload.
func (g *Gateway) GenerateStorageKey(owner OwnerRef, videoID, filename string) string {
	return g.keys.GenerateKey(objectkey.KeyMetadata{
		OwnerID:  owner.Value,
		VideoID:  videoID,
		FileName: filename,
		At:       g.now(),
	})
}

// UploadDirect streams body into key and binds secretKey to the object.
// size may be -1 when unknown.
func (g *Gateway) UploadDirect(ctx context.Context, key, secretKey string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	if secretKey == "" {
		return &ValidationError{Field: "secretKey", Message: "secret key is required"}
	}
	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md[MetaSecretKey] = secretKey

	err := g.store.Upload(ctx, UploadParams{
		Key:         key,
		Body:        body,
		ContentType: contentType,
		Size:        size,
		Metadata:    md,
	})
	if err != nil {
		return &StorageError{Backend: g.backend, Key: key, Op: "upload", Err: err}
	}
	return nil
}

// CreateUploadHandle reserves a key and mints a one-hour upload capability.
// The returned headers must accompany the upload so the secret is stored as
// object metadata.
func (g *Gateway) CreateUploadHandle(ctx context.Context, owner OwnerRef, videoID, filename, contentType string) (*UploadHandle, error) {
	key := g.GenerateStorageKey(owner, videoID, filename)
	secret := NewSecretKey()

	req, err := g.store.GetUploadURL(ctx, UploadURLParams{
		Key:         key,
		ContentType: contentType,
		Metadata: map[string]string{
			MetaSecretKey: secret,
			MetaVideoID:   videoID,
			MetaOwner:     owner.String(),
		},
		TTL: DefaultURLTTL,
	})
	if err != nil {
		return nil, &StorageError{Backend: g.backend, Key: key, Op: "presign_upload", Err: err}
	}

	method := req.Method
	if method == "" {
		method = "PUT"
	}
	return &UploadHandle{
		Key:       key,
		SecretKey: secret,
		UploadURL: req.URL,
		Method:    method,
		Headers:   req.Headers,
		ExpiresIn: int(DefaultURLTTL.Seconds()),
		ExpiresAt: g.now().Add(DefaultURLTTL),
	}, nil
}

// CreateDownloadURL verifies secretKey against the stored object and mints a
// read URL valid for ttl (DefaultURLTTL when zero).
func (g *Gateway) CreateDownloadURL(ctx context.Context, key, secretKey string, ttl time.Duration) (*DownloadURL, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if err := g.verify(ctx, "download", key, secretKey); err != nil {
		return nil, err
	}
	url, err := g.store.GetDownloadURL(ctx, key, "", ttl)
	if err != nil {
		return nil, &StorageError{Backend: g.backend, Key: key, Op: "presign_download", Err: err}
	}
	return &DownloadURL{URL: url, ExpiresIn: int(ttl.Seconds())}, nil
}

// Delete removes the object after verifying secretKey. It never returns an
// error; every failure is logged and reported as false.
func (g *Gateway) Delete(ctx context.Context, key, secretKey string) bool {
	if key == "" {
		return false
	}
	if err := g.verify(ctx, "delete", key, secretKey); err != nil {
		g.logger.Warn("Storage delete skipped", "storage_key", key, "backend", g.backend, "error", err)
		return false
	}
	if err := g.store.Delete(ctx, key); err != nil {
		g.logger.Warn("Storage delete failed", "storage_key", key, "backend", g.backend, "error", err)
		return false
	}
	return true
}

func (g *Gateway) verify(ctx context.Context, op, key, secretKey string) error {
	meta, err := g.store.GetObjectMeta(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return &StorageError{Backend: g.backend, Key: key, Op: op, Err: err}
	}
	stored := objectMetaValue(meta.Metadata, MetaSecretKey)
	if stored == "" || secretKey == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(secretKey)) != 1 {
		return fmt.Errorf("%w: secret mismatch for %s", ErrAccessDenied, key)
	}
	return nil
}
