package simplevideo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCallbackStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		errText  string
		expected AssetStatus
		invalid  bool
	}{
		{name: "error overrides ready", status: "ready", errText: "x", expected: AssetStatusFailed},
		{name: "error overrides garbage status", status: "bogus", errText: "boom", expected: AssetStatusFailed},
		{name: "empty status means ready", status: "", expected: AssetStatusReady},
		{name: "explicit processing", status: "processing", expected: AssetStatusProcessing},
		{name: "case insensitive", status: "FAILED", expected: AssetStatusFailed},
		{name: "unknown status", status: "done", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveCallbackStatus(tt.status, tt.errText)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCanDownloadAsset(t *testing.T) {
	assert.NoError(t, canDownloadAsset(AssetStatusReady))
	assert.ErrorIs(t, canDownloadAsset(AssetStatusProcessing), ErrAssetNotReady)
	assert.ErrorIs(t, canDownloadAsset(AssetStatusFailed), ErrAssetNotReady)
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	assert.True(t, errors.Is(&ValidationError{Field: "f", Message: "m"}, ErrValidation))
	assert.True(t, errors.Is(&UpstreamError{URL: "u", StatusCode: 404}, ErrUpstreamFetch))
	assert.True(t, errors.Is(&StorageError{Op: "upload", Err: errors.New("x")}, ErrStorage))
	assert.True(t, errors.Is(&DatabaseError{Op: "create", Err: errors.New("x")}, ErrDatabase))
	assert.True(t, errors.Is(&AssetError{VideoID: "v", Op: "get", Err: ErrAssetNotFound}, ErrAssetNotFound))
	assert.False(t, errors.Is(&StorageError{Err: errors.New("x")}, ErrDatabase))
}
