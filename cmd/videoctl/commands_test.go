package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "memory")
	t.Setenv("STORAGE_URL", "memory://")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListEmptyGallery(t *testing.T) {
	out, err := execute(t, "list", "--owner", "email:Agent@Example.com")
	require.NoError(t, err)

	var gallery simplevideo.Gallery
	require.NoError(t, json.Unmarshal([]byte(out), &gallery))
	assert.Equal(t, 0, gallery.TotalCount)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		is   error
	}{
		{name: "unknown video", args: []string{"get", "missing"}, is: simplevideo.ErrAssetNotFound},
		{name: "delete unknown", args: []string{"delete", "missing"}, is: simplevideo.ErrAssetNotFound},
		{name: "bad owner", args: []string{"list", "--owner", "team:1"}, is: simplevideo.ErrValidation},
		{name: "status arity", args: []string{"status", "v1"}},
		{name: "migrate bad url", args: []string{"migrate", "up", "--database-url", "memory"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
