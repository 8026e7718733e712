package simplevideo

import (
	"context"
	"io"
	"time"

	"github.com/tendant/simple-video/pkg/simplevideo/generation"
)

// Repository persists video asset records.
type Repository interface {
	// CreateAsset inserts a new record. It returns ErrDuplicateAsset when the
	// video id is taken.
	CreateAsset(ctx context.Context, asset *VideoAsset) error
	// GetAsset returns ErrAssetNotFound when the id is unknown. SecretKey is
	// empty unless IncludeSecret is passed.
	GetAsset(ctx context.Context, videoID string, opts ...GetOption) (*VideoAsset, error)
	// ListAssetsByOwner returns the owner's assets, newest first.
	ListAssetsByOwner(ctx context.Context, owner OwnerRef, opts ...GetOption) ([]*VideoAsset, error)
	UpdateStatus(ctx context.Context, videoID string, status AssetStatus) (*VideoAsset, error)
	// MergeMetadata shallow-merges patch into the stored metadata.
	MergeMetadata(ctx context.Context, videoID string, patch map[string]interface{}) (*VideoAsset, error)
	UpdateTitle(ctx context.Context, videoID, title string) (*VideoAsset, error)
	// DeleteAsset reports whether a record was removed.
	DeleteAsset(ctx context.Context, videoID string) (bool, error)
}

// BlobStore defines the interface for object storage backends
type BlobStore interface {
	Upload(ctx context.Context, params UploadParams) error
	// GetObjectMeta returns an error wrapping ErrObjectNotFound when the key
	// does not exist.
	GetObjectMeta(ctx context.Context, key string) (*ObjectMeta, error)
	GetDownloadURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	GetUploadURL(ctx context.Context, params UploadURLParams) (*PresignedRequest, error)
	Delete(ctx context.Context, key string) error
}

// EventSink receives asset lifecycle events.
type EventSink interface {
	AssetCreated(ctx context.Context, asset *VideoAsset) error
	AssetStatusChanged(ctx context.Context, asset *VideoAsset, previous AssetStatus) error
	AssetDeleted(ctx context.Context, videoID string, storageDeleted bool) error
}

// FetchedSource is a remote video body ready to be streamed into storage.
type FetchedSource struct {
	Body        io.ReadCloser
	ContentType string
	// Size is the advertised length, or -1.
	Size int64
}

// SourceFetcher retrieves a remote video by URL.
type SourceFetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedSource, error)
}

// GenerationSubmitter hands generation jobs to the external generator.
type GenerationSubmitter interface {
	Submit(ctx context.Context, job generation.Job) (*generation.Submission, error)
}

// GetOptions controls what a repository read returns.
type GetOptions struct {
	IncludeSecret bool
}

// GetOption configures a repository read.
type GetOption func(*GetOptions)

// IncludeSecret asks the repository to return the asset's secret key. Only
// the service's verification paths use it.
func IncludeSecret() GetOption {
	return func(o *GetOptions) {
		o.IncludeSecret = true
	}
}

// ApplyGetOptions folds opts into a GetOptions value.
func ApplyGetOptions(opts ...GetOption) GetOptions {
	var o GetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
