package simplevideo

import (
	"fmt"
	"strings"
)

// IsValid reports whether s is one of the known lifecycle states.
func (s AssetStatus) IsValid() bool {
	switch s {
	case AssetStatusProcessing, AssetStatusReady, AssetStatusFailed:
		return true
	}
	return false
}

// ParseAssetStatus validates a status string received from a caller.
func ParseAssetStatus(s string) (AssetStatus, error) {
	status := AssetStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q, must be one of processing, ready, failed", s)}
	}
	return status, nil
}

// canDownloadAsset checks if an asset's artifact can be served.
func canDownloadAsset(status AssetStatus) error {
	switch status {
	case AssetStatusReady:
		return nil
	case AssetStatusProcessing:
		return fmt.Errorf("%w: video is still being generated (status: %s)", ErrAssetNotReady, status)
	case AssetStatusFailed:
		return fmt.Errorf("%w: video generation failed (status: %s)", ErrAssetNotReady, status)
	default:
		return fmt.Errorf("%w: unknown status %s", ErrAssetNotReady, status)
	}
}

// resolveCallbackStatus applies the callback rules: a reported error always
// wins, an empty status means ready, anything else must be a known state.
func resolveCallbackStatus(status string, errText string) (AssetStatus, error) {
	if errText != "" {
		return AssetStatusFailed, nil
	}
	if strings.TrimSpace(status) == "" {
		return AssetStatusReady, nil
	}
	return ParseAssetStatus(status)
}
