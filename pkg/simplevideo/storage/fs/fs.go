package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/presigned"
)

const metaSuffix = ".meta.json"

// MetadataHeaderPrefix marks request headers that become object metadata
const MetadataHeaderPrefix = "X-Amz-Meta-"

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
	// BaseURL is the public origin serving the files route, e.g. "http://localhost:8080"
	BaseURL string
	// RoutePrefix is the path the files handler is mounted on (default "/files")
	RoutePrefix string
	// SecretKey signs download and upload URLs
	SecretKey string
}

// Backend is a filesystem implementation of the simplevideo.BlobStore
// interface. Object metadata lives in a JSON sidecar next to each file.
type Backend struct {
	mu          sync.RWMutex
	baseDir     string
	routePrefix string
	signer      *presigned.Signer
}

type sidecar struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.SecretKey == "" {
		return nil, errors.New("signing secret is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	prefix := config.RoutePrefix
	if prefix == "" {
		prefix = "/files"
	}

	return &Backend{
		baseDir:     config.BaseDir,
		routePrefix: "/" + strings.Trim(prefix, "/"),
		signer:      presigned.New(presigned.WithSecretKey(config.SecretKey), presigned.WithBaseURL(strings.TrimRight(config.BaseURL, "/"))),
	}, nil
}

// Signer returns the signer used for this backend's URLs
func (b *Backend) Signer() *presigned.Signer {
	return b.signer
}

// RoutePrefix returns the path the files handler must be mounted on
func (b *Backend) RoutePrefix() string {
	return b.routePrefix
}

// KeyFromPath strips the route prefix from a request path
func (b *Backend) KeyFromPath(p string) (string, error) {
	if !strings.HasPrefix(p, b.routePrefix+"/") {
		return "", fmt.Errorf("path %q is outside %s", p, b.routePrefix)
	}
	return strings.TrimPrefix(p, b.routePrefix+"/"), nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simplevideo.ObjectMeta, error) {
	filePath, err := b.resolve(key)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	sc, err := readSidecar(filePath + metaSuffix)
	if err != nil {
		return nil, err
	}
	contentType := sc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &simplevideo.ObjectMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: contentType,
		UpdatedAt:   info.ModTime(),
		Metadata:    sc.Metadata,
	}, nil
}

// GetUploadURL returns a signed PUT URL. The metadata headers are part of
// the signature, so the uploader cannot alter the bound secret.
func (b *Backend) GetUploadURL(ctx context.Context, params simplevideo.UploadURLParams) (*simplevideo.PresignedRequest, error) {
	if _, err := b.resolve(params.Key); err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(params.Metadata)+1)
	if params.ContentType != "" {
		headers["Content-Type"] = params.ContentType
	}
	for k, v := range params.Metadata {
		headers[MetadataHeaderPrefix+k] = v
	}
	u, err := b.signer.Sign("PUT", b.routePrefix+"/"+params.Key, headers, params.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}
	return &simplevideo.PresignedRequest{URL: u, Method: "PUT", Headers: headers}, nil
}

// Upload writes the body to a temporary file and renames it into place
func (b *Backend) Upload(ctx context.Context, params simplevideo.UploadParams) error {
	filePath, err := b.resolve(params.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, params.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	sc, err := json.Marshal(sidecar{
		ContentType: params.ContentType,
		Metadata:    lowerKeys(params.Metadata),
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.WriteFile(filePath+metaSuffix, sc, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// GetDownloadURL returns a signed GET URL
func (b *Backend) GetDownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	if _, err := b.resolve(key); err != nil {
		return "", err
	}
	return b.signer.Sign("GET", b.routePrefix+"/"+key, nil, ttl)
}

// Open returns the object's content and metadata
func (b *Backend) Open(ctx context.Context, key string) (io.ReadCloser, *simplevideo.ObjectMeta, error) {
	meta, err := b.GetObjectMeta(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	filePath, _ := b.resolve(key)
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, meta, nil
}

// Delete deletes the file and its sidecar
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.resolve(key)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", simplevideo.ErrObjectNotFound, key)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(filePath + metaSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// resolve maps a key to a path inside baseDir, rejecting traversal
func (b *Backend) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+key {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(clean[1:])), nil
}

// cleanupEmptyDirectories removes empty parents up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	base := filepath.Clean(b.baseDir)
	for dir != base && strings.HasPrefix(dir, base) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func readSidecar(p string) (*sidecar, error) {
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return &sidecar{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &sc, nil
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
