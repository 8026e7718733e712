package gormrepo

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/repo/repotest"
)

func newSQLiteRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", simplevideo.NewVideoID())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := New(db)
	require.NoError(t, repo.AutoMigrate())
	return repo
}

func TestRepositorySuite(t *testing.T) {
	repotest.Run(t, func(t *testing.T) simplevideo.Repository { return newSQLiteRepo(t) })
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}

func TestRecordRoundTrip(t *testing.T) {
	asset := repotest.NewAsset("video_1_rt", simplevideo.Email("a@b.co"), time.Now().UTC())
	rec := toRecord(asset)
	assert.Equal(t, "email", rec.OwnerKind)
	assert.Equal(t, "primary", rec.Backend)

	back := fromRecord(rec, false)
	assert.Empty(t, back.SecretKey)
	assert.Equal(t, asset.Owner, back.Owner)
	assert.Equal(t, asset.Backend, back.Backend)
	assert.Equal(t, "test", back.Metadata["source"])
}
