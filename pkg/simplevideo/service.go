package simplevideo

import "context"

// Service defines the main interface for the simple-video library
type Service interface {
	// Asset creation
	CreateFromURL(ctx context.Context, req CreateFromURLRequest) (*PublicAsset, error)
	CreateAsset(ctx context.Context, req CreateAssetRequest) (*VideoAsset, error)
	RequestGeneration(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	CreateUploadHandle(ctx context.Context, req UploadRequest) (*UploadResult, error)

	// Reads. A zero owner skips the ownership check.
	GetAsset(ctx context.Context, videoID string, owner OwnerRef) (*PublicAsset, error)
	GetDownloadURL(ctx context.Context, videoID string, owner OwnerRef) (*DownloadURL, error)
	ListGallery(ctx context.Context, owner OwnerRef) (*Gallery, error)

	// Mutations
	UpdateStatus(ctx context.Context, update StatusUpdate) (*StatusResult, error)
	UpdateTitle(ctx context.Context, videoID string, owner OwnerRef, title string) (*PublicAsset, error)
	MergeMetadata(ctx context.Context, videoID string, owner OwnerRef, patch map[string]interface{}) (*PublicAsset, error)
	DeleteAsset(ctx context.Context, req DeleteRequest) (*DeleteResult, error)

	// Gateway exposes the object store gateway backing the service.
	Gateway() *Gateway
}
