// Package repotest holds behaviour checks shared by every Repository
// implementation.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// Factory returns an empty repository.
type Factory func(t *testing.T) simplevideo.Repository

// Run exercises a repository implementation.
func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("Duplicate", func(t *testing.T) { testDuplicate(t, newRepo(t)) })
	t.Run("ListByOwner", func(t *testing.T) { testListByOwner(t, newRepo(t)) })
	t.Run("Mutations", func(t *testing.T) { testMutations(t, newRepo(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("ConcurrentMerge", func(t *testing.T) { testConcurrentMerge(t, newRepo(t)) })
}

// NewAsset builds a processing asset owned by owner.
func NewAsset(id string, owner simplevideo.OwnerRef, createdAt time.Time) *simplevideo.VideoAsset {
	return &simplevideo.VideoAsset{
		VideoID:    id,
		Owner:      owner,
		Title:      "Tour " + id,
		StorageKey: "videos/" + owner.Value + "/" + id + "/1_tour.mp4",
		Backend:    "primary",
		SecretKey:  "secret-" + id,
		Status:     simplevideo.AssetStatusProcessing,
		Metadata:   map[string]interface{}{"source": "test"},
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func testCreateAndGet(t *testing.T, repo simplevideo.Repository) {
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Millisecond)
	asset := NewAsset("video_1_aaa", simplevideo.UserID("u1"), created)
	require.NoError(t, repo.CreateAsset(ctx, asset))

	got, err := repo.GetAsset(ctx, asset.VideoID)
	require.NoError(t, err)
	assert.Equal(t, asset.Owner, got.Owner)
	assert.Equal(t, asset.StorageKey, got.StorageKey)
	assert.Equal(t, "primary", got.Backend)
	assert.Equal(t, simplevideo.AssetStatusProcessing, got.Status)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.Empty(t, got.SecretKey)

	withSecret, err := repo.GetAsset(ctx, asset.VideoID, simplevideo.IncludeSecret())
	require.NoError(t, err)
	assert.Equal(t, asset.SecretKey, withSecret.SecretKey)

	_, err = repo.GetAsset(ctx, "video_missing")
	assert.ErrorIs(t, err, simplevideo.ErrAssetNotFound)
}

func testDuplicate(t *testing.T, repo simplevideo.Repository) {
	ctx := context.Background()
	asset := NewAsset("video_1_dup", simplevideo.UserID("u1"), time.Now().UTC())
	require.NoError(t, repo.CreateAsset(ctx, asset))
	assert.ErrorIs(t, repo.CreateAsset(ctx, asset), simplevideo.ErrDuplicateAsset)
}

func testListByOwner(t *testing.T, repo simplevideo.Repository) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	alice := simplevideo.Email("alice@example.com")
	bob := simplevideo.UserID("bob")

	require.NoError(t, repo.CreateAsset(ctx, NewAsset("video_1_old", alice, base)))
	require.NoError(t, repo.CreateAsset(ctx, NewAsset("video_2_new", alice, base.Add(time.Minute))))
	require.NoError(t, repo.CreateAsset(ctx, NewAsset("video_3_bob", bob, base)))
	// Same value under a different owner kind is a different owner.
	require.NoError(t, repo.CreateAsset(ctx, NewAsset("video_4_kind", simplevideo.UserID("alice@example.com"), base)))

	list, err := repo.ListAssetsByOwner(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "video_2_new", list[0].VideoID)
	assert.Equal(t, "video_1_old", list[1].VideoID)
	assert.Empty(t, list[0].SecretKey)

	list, err = repo.ListAssetsByOwner(ctx, alice, simplevideo.IncludeSecret())
	require.NoError(t, err)
	assert.Equal(t, "secret-video_2_new", list[0].SecretKey)

	list, err = repo.ListAssetsByOwner(ctx, simplevideo.UserID("nobody"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testMutations(t *testing.T, repo simplevideo.Repository) {
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	asset := NewAsset("video_1_mut", simplevideo.UserID("u1"), created)
	require.NoError(t, repo.CreateAsset(ctx, asset))

	updated, err := repo.UpdateStatus(ctx, asset.VideoID, simplevideo.AssetStatusReady)
	require.NoError(t, err)
	assert.Equal(t, simplevideo.AssetStatusReady, updated.Status)
	assert.True(t, updated.UpdatedAt.After(created))

	updated, err = repo.MergeMetadata(ctx, asset.VideoID, map[string]interface{}{"job_id": "job-9", "source": "generator"})
	require.NoError(t, err)
	assert.Equal(t, "job-9", updated.Metadata["job_id"])
	assert.Equal(t, "generator", updated.Metadata["source"])

	updated, err = repo.MergeMetadata(ctx, asset.VideoID, map[string]interface{}{"format": "mp4"})
	require.NoError(t, err)
	assert.Equal(t, "job-9", updated.Metadata["job_id"])
	assert.Equal(t, "mp4", updated.Metadata["format"])

	updated, err = repo.UpdateTitle(ctx, asset.VideoID, "Lakeside Cottage")
	require.NoError(t, err)
	assert.Equal(t, "Lakeside Cottage", updated.Title)

	_, err = repo.UpdateStatus(ctx, "video_missing", simplevideo.AssetStatusReady)
	assert.ErrorIs(t, err, simplevideo.ErrAssetNotFound)
	_, err = repo.MergeMetadata(ctx, "video_missing", map[string]interface{}{"a": 1})
	assert.ErrorIs(t, err, simplevideo.ErrAssetNotFound)
	_, err = repo.UpdateTitle(ctx, "video_missing", "x")
	assert.ErrorIs(t, err, simplevideo.ErrAssetNotFound)
}

func testDelete(t *testing.T, repo simplevideo.Repository) {
	ctx := context.Background()
	asset := NewAsset("video_1_del", simplevideo.UserID("u1"), time.Now().UTC())
	require.NoError(t, repo.CreateAsset(ctx, asset))

	deleted, err := repo.DeleteAsset(ctx, asset.VideoID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteAsset(ctx, asset.VideoID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.GetAsset(ctx, asset.VideoID)
	assert.ErrorIs(t, err, simplevideo.ErrAssetNotFound)
}

func testConcurrentMerge(t *testing.T, repo simplevideo.Repository) {
	ctx := context.Background()
	asset := NewAsset("video_1_cc", simplevideo.UserID("u1"), time.Now().UTC())
	require.NoError(t, repo.CreateAsset(ctx, asset))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.MergeMetadata(ctx, asset.VideoID, map[string]interface{}{fmt.Sprintf("k%d", i): i})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.GetAsset(ctx, asset.VideoID)
	require.NoError(t, err)
	for i := 0; i < writers; i++ {
		assert.Contains(t, got.Metadata, fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, "test", got.Metadata["source"])
}
