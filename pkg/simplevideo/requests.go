package simplevideo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tendant/simple-video/pkg/simplevideo/generation"
)

// CreateFromURLRequest stores a video that already exists at a remote URL.
type CreateFromURLRequest struct {
	VideoURL string
	Owner    OwnerRef
	Title    string
}

// CreateAssetRequest creates a bare record. Empty VideoID and SecretKey are
// generated; empty Status defaults to processing and empty Backend to the
// default blob store.
type CreateAssetRequest struct {
	VideoID    string
	Owner      OwnerRef
	Title      string
	StorageKey string
	Backend    string
	SecretKey  string
	Status     AssetStatus
	Metadata   map[string]interface{}
}

// GenerationRequest asks the generator to produce a listing video.
type GenerationRequest struct {
	Owner   OwnerRef
	Title   string
	Listing generation.Listing
}

// UploadRequest reserves an asset for a client-side upload.
type UploadRequest struct {
	Owner       OwnerRef
	Filename    string
	ContentType string
	Title       string
}

// StatusUpdate is a status callback from the generator.
type StatusUpdate struct {
	VideoID  string                 `json:"videoId"`
	Status   string                 `json:"status"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Error, when non-empty, forces the asset to failed.
	Error string `json:"error,omitempty"`
	// VideoURL optionally points at a finished artifact that still has to be
	// copied into the asset's storage key.
	VideoURL string `json:"videoUrl,omitempty"`
}

// DeleteRequest removes an asset. A zero Owner skips the ownership check.
type DeleteRequest struct {
	VideoID string
	Owner   OwnerRef
}

type statusCallbackPayload struct {
	VideoID  string                 `json:"videoId"`
	Status   string                 `json:"status"`
	Metadata map[string]interface{} `json:"metadata"`
	Error    json.RawMessage        `json:"error"`
	VideoURL string                 `json:"videoUrl"`
}

// ParseStatusCallback decodes a generator callback body. The error field is
// accepted in any JSON form; it counts as present unless it is null, false,
// zero, or an empty string.
func ParseStatusCallback(data []byte) (StatusUpdate, error) {
	var p statusCallbackPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return StatusUpdate{}, &ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if strings.TrimSpace(p.VideoID) == "" {
		return StatusUpdate{}, &ValidationError{Field: "videoId", Message: "videoId is required"}
	}
	return StatusUpdate{
		VideoID:  strings.TrimSpace(p.VideoID),
		Status:   p.Status,
		Metadata: p.Metadata,
		Error:    errorText(p.Error),
		VideoURL: p.VideoURL,
	}, nil
}

func errorText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", "false", "0", `""`:
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := obj["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return trimmed
}
