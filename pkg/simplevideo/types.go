package simplevideo

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// AssetStatus is the lifecycle state of a video asset.
type AssetStatus string

const (
	AssetStatusProcessing AssetStatus = "processing"
	AssetStatusReady      AssetStatus = "ready"
	AssetStatusFailed     AssetStatus = "failed"
)

// DefaultTitle is used when no title can be derived from the source.
const DefaultTitle = "Untitled Video"

// DefaultURLTTL is the lifetime of minted upload handles and download URLs.
const DefaultURLTTL = time.Hour

// Object metadata keys attached to every stored video.
const (
	MetaSecretKey  = "secret-key"
	MetaVideoID    = "video-id"
	MetaOwner      = "owner"
	MetaUploadedAt = "uploaded-at"
)

// OwnerKind distinguishes the two ways an asset owner can be identified.
type OwnerKind string

const (
	OwnerKindUser  OwnerKind = "user"
	OwnerKindEmail OwnerKind = "email"
)

// OwnerRef identifies the owner of an asset, either by an authenticated user
// id or by an email address.
type OwnerRef struct {
	Kind  OwnerKind `json:"kind"`
	Value string    `json:"value"`
}

// UserID returns an owner reference for an authenticated user.
func UserID(id string) OwnerRef {
	return OwnerRef{Kind: OwnerKindUser, Value: strings.TrimSpace(id)}
}

// Email returns an owner reference for an email address. Addresses are
// compared case-insensitively, so the value is lowercased.
func Email(addr string) OwnerRef {
	return OwnerRef{Kind: OwnerKindEmail, Value: strings.ToLower(strings.TrimSpace(addr))}
}

// ParseOwnerRef parses the "kind:value" form produced by String. A bare value
// containing "@" is treated as an email.
func ParseOwnerRef(s string) (OwnerRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OwnerRef{}, &ValidationError{Field: "owner", Message: "owner is required"}
	}
	kind, value, found := strings.Cut(s, ":")
	if !found {
		if strings.Contains(s, "@") {
			return Email(s), nil
		}
		return UserID(s), nil
	}
	var ref OwnerRef
	switch OwnerKind(kind) {
	case OwnerKindUser:
		ref = UserID(value)
	case OwnerKindEmail:
		ref = Email(value)
	default:
		return OwnerRef{}, &ValidationError{Field: "owner", Message: fmt.Sprintf("unknown owner kind %q", kind)}
	}
	return ref, ref.Validate()
}

// IsZero reports whether the reference is unset.
func (o OwnerRef) IsZero() bool {
	return o.Value == ""
}

func (o OwnerRef) String() string {
	if o.IsZero() {
		return ""
	}
	return string(o.Kind) + ":" + o.Value
}

// Validate checks that the owner reference is usable.
func (o OwnerRef) Validate() error {
	switch o.Kind {
	case OwnerKindUser:
		if o.Value == "" {
			return &ValidationError{Field: "owner", Message: "user id is required"}
		}
	case OwnerKindEmail:
		if o.Value == "" {
			return &ValidationError{Field: "email", Message: "email is required"}
		}
		at := strings.Index(o.Value, "@")
		if at <= 0 || at == len(o.Value)-1 {
			return &ValidationError{Field: "email", Message: "email is invalid"}
		}
	default:
		return &ValidationError{Field: "owner", Message: "owner is required"}
	}
	return nil
}

// VideoAsset is the persisted record of a generated or stored video.
type VideoAsset struct {
	VideoID    string                 `json:"videoId"`
	Owner      OwnerRef               `json:"owner"`
	Title      string                 `json:"title"`
	StorageKey string                 `json:"storageKey"`
	// Backend names the blob store holding StorageKey. Empty means the
	// service's default store.
	Backend   string                 `json:"backend,omitempty"`
	SecretKey string                 `json:"-"`
	Status    AssetStatus            `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Public returns the projection of the asset that is safe to hand to callers.
func (a *VideoAsset) Public() *PublicAsset {
	if a == nil {
		return nil
	}
	p := &PublicAsset{
		VideoID:    a.VideoID,
		Owner:      a.Owner.Value,
		Title:      a.Title,
		StorageKey: a.StorageKey,
		Status:     a.Status,
		Metadata:   copyMetadata(a.Metadata),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	p.Size = metadataInt64(a.Metadata, "size")
	return p
}

// PublicAsset is a VideoAsset without its secret.
type PublicAsset struct {
	VideoID    string                 `json:"videoId"`
	Owner      string                 `json:"owner"`
	Title      string                 `json:"title"`
	StorageKey string                 `json:"storageKey"`
	Status     AssetStatus            `json:"status"`
	Size       int64                  `json:"size,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// GalleryItem is a PublicAsset annotated with a download URL. DownloadURL is
// nil for assets that are not ready or whose URL could not be minted.
type GalleryItem struct {
	*PublicAsset
	DownloadURL *string `json:"downloadUrl"`
}

// Gallery is an owner's list of assets with per-status counts.
type Gallery struct {
	Videos          []*GalleryItem `json:"videos"`
	TotalCount      int            `json:"totalCount"`
	ReadyCount      int            `json:"readyCount"`
	ProcessingCount int            `json:"processingCount"`
	FailedCount     int            `json:"failedCount"`
}

// ObjectMeta is what a blob store reports about a stored object.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// UploadParams describes a direct upload to a blob store.
type UploadParams struct {
	Key         string
	Body        io.Reader
	ContentType string
	// Size is the body length, or -1 when unknown.
	Size     int64
	Metadata map[string]string
}

// UploadURLParams describes a presigned upload request.
type UploadURLParams struct {
	Key         string
	ContentType string
	Metadata    map[string]string
	TTL         time.Duration
}

// PresignedRequest is a request a client can perform without credentials.
type PresignedRequest struct {
	URL     string
	Method  string
	Headers map[string]string
}

// UploadHandle is a short-lived capability to write one object.
type UploadHandle struct {
	Key       string            `json:"key"`
	SecretKey string            `json:"-"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresIn int               `json:"expiresIn"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// DownloadURL is a freshly minted, short-lived read URL.
type DownloadURL struct {
	URL       string `json:"downloadUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

// StatusResult is returned by UpdateStatus.
type StatusResult struct {
	VideoID   string      `json:"videoId"`
	Status    AssetStatus `json:"status"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// DeleteResult is returned by DeleteAsset.
type DeleteResult struct {
	VideoID        string    `json:"videoId"`
	StorageDeleted bool      `json:"storageDeleted"`
	DeletedAt      time.Time `json:"deletedAt"`
}

// GenerationResult is returned by RequestGeneration.
type GenerationResult struct {
	Asset *PublicAsset `json:"video"`
	JobID string       `json:"jobId,omitempty"`
}

// UploadResult is returned by CreateUploadHandle.
type UploadResult struct {
	Asset  *PublicAsset  `json:"video"`
	Upload *UploadHandle `json:"upload"`
}
