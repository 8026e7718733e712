package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// Repository implements simplevideo.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	assets map[string]*simplevideo.VideoAsset
	now    func() time.Time
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		assets: make(map[string]*simplevideo.VideoAsset),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) CreateAsset(ctx context.Context, asset *simplevideo.VideoAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[asset.VideoID]; exists {
		return simplevideo.ErrDuplicateAsset
	}
	r.assets[asset.VideoID] = clone(asset, true)
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, videoID string, opts ...simplevideo.GetOption) (*simplevideo.VideoAsset, error) {
	o := simplevideo.ApplyGetOptions(opts...)

	r.mu.RLock()
	defer r.mu.RUnlock()

	asset, exists := r.assets[videoID]
	if !exists {
		return nil, simplevideo.ErrAssetNotFound
	}
	return clone(asset, o.IncludeSecret), nil
}

func (r *Repository) ListAssetsByOwner(ctx context.Context, owner simplevideo.OwnerRef, opts ...simplevideo.GetOption) ([]*simplevideo.VideoAsset, error) {
	o := simplevideo.ApplyGetOptions(opts...)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplevideo.VideoAsset
	for _, asset := range r.assets {
		if asset.Owner == owner {
			result = append(result, clone(asset, o.IncludeSecret))
		}
	}

	// Newest first; ties broken by id so ordering is stable
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].VideoID > result[j].VideoID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, videoID string, status simplevideo.AssetStatus) (*simplevideo.VideoAsset, error) {
	return r.mutate(videoID, func(a *simplevideo.VideoAsset) {
		a.Status = status
	})
}

func (r *Repository) MergeMetadata(ctx context.Context, videoID string, patch map[string]interface{}) (*simplevideo.VideoAsset, error) {
	return r.mutate(videoID, func(a *simplevideo.VideoAsset) {
		a.Metadata = simplevideo.MergeMetadata(a.Metadata, patch)
	})
}

func (r *Repository) UpdateTitle(ctx context.Context, videoID, title string) (*simplevideo.VideoAsset, error) {
	return r.mutate(videoID, func(a *simplevideo.VideoAsset) {
		a.Title = title
	})
}

func (r *Repository) DeleteAsset(ctx context.Context, videoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[videoID]; !exists {
		return false, nil
	}
	delete(r.assets, videoID)
	return true, nil
}

func (r *Repository) mutate(videoID string, fn func(*simplevideo.VideoAsset)) (*simplevideo.VideoAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, exists := r.assets[videoID]
	if !exists {
		return nil, simplevideo.ErrAssetNotFound
	}
	fn(asset)
	asset.UpdatedAt = r.now()
	return clone(asset, false), nil
}

// clone returns a copy that shares nothing mutable with the stored record
func clone(a *simplevideo.VideoAsset, withSecret bool) *simplevideo.VideoAsset {
	c := *a
	if a.Metadata != nil {
		c.Metadata = simplevideo.MergeMetadata(nil, a.Metadata)
	}
	if !withSecret {
		c.SecretKey = ""
	}
	return &c
}
