package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(Files(), ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestSchemaHasAssetColumns(t *testing.T) {
	data, err := fs.ReadFile(Files(), "000001_create_video_assets.up.sql")
	require.NoError(t, err)
	for _, col := range []string{"video_id", "owner_kind", "owner_value", "storage_key", "secret_key", "status", "metadata"} {
		assert.Contains(t, string(data), col)
	}
}

func TestBackendColumnMigration(t *testing.T) {
	up, err := fs.ReadFile(Files(), "000002_add_video_asset_backend.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "ADD COLUMN IF NOT EXISTS backend")

	down, err := fs.ReadFile(Files(), "000002_add_video_asset_backend.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP COLUMN IF EXISTS backend")
}
