package simplevideo

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrValidation indicates a request failed input validation
	ErrValidation = errors.New("validation failed")

	// ErrAssetNotFound indicates the asset record does not exist or is not
	// visible to the caller
	ErrAssetNotFound = errors.New("video asset not found")

	// ErrObjectNotFound indicates the stored object does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrUpstreamFetch indicates a remote source or the generation service failed
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrAccessDenied indicates the secret presented for an object does not match
	ErrAccessDenied = errors.New("access denied")

	// ErrStorage indicates the object store failed
	ErrStorage = errors.New("storage error")

	// ErrDatabase indicates the record store failed
	ErrDatabase = errors.New("database error")

	// ErrAssetNotReady indicates a download was requested before the video is ready
	ErrAssetNotReady = errors.New("video asset not ready")

	// ErrDuplicateAsset indicates a record with the same video id already exists
	ErrDuplicateAsset = errors.New("video asset already exists")
)

// ValidationError describes an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// UpstreamError is returned when a remote URL or the generation service
// responds with a failure.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.URL, e.Err)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamFetch
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DatabaseError represents a record store failure
type DatabaseError struct {
	Op      string
	VideoID string
	Err     error
}

func (e *DatabaseError) Error() string {
	if e.VideoID == "" {
		return fmt.Sprintf("database operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("database operation %s failed for video %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *DatabaseError) Is(target error) bool {
	return target == ErrDatabase
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// AssetError represents an error related to a specific asset
type AssetError struct {
	VideoID string
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("video operation %s failed for video %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
