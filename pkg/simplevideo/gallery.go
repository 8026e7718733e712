package simplevideo

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ListGallery returns the owner's videos, newest first, with a fresh download
// URL on every ready video. A URL that cannot be minted is logged and left
// nil; only a repository failure fails the listing.
func (s *service) ListGallery(ctx context.Context, owner OwnerRef) (*Gallery, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	assets, err := s.repository.ListAssetsByOwner(ctx, owner, IncludeSecret())
	if err != nil {
		s.logger.Error("Failed to list videos", "owner", owner.String(), "error", err)
		return nil, &DatabaseError{Op: "list", Err: err}
	}

	items := make([]*GalleryItem, len(assets))
	var g errgroup.Group
	g.SetLimit(s.galleryConcurrency)
	for i, asset := range assets {
		items[i] = &GalleryItem{PublicAsset: asset.Public()}
		if asset.Status != AssetStatusReady {
			continue
		}
		item := items[i]
		g.Go(func() error {
			gw, err := s.gatewayFor(asset, "download")
			if err != nil {
				s.logger.Error("Failed to mint gallery download URL", "video_id", asset.VideoID, "backend", asset.Backend, "error", err)
				return nil
			}
			u, err := gw.CreateDownloadURL(ctx, asset.StorageKey, asset.SecretKey, s.downloadTTL)
			if err != nil {
				level := s.logger.Warn
				if errors.Is(err, ErrAccessDenied) {
					level = s.logger.Error
				}
				level("Failed to mint gallery download URL", "video_id", asset.VideoID, "storage_key", asset.StorageKey, "error", err)
				return nil
			}
			item.DownloadURL = &u.URL
			return nil
		})
	}
	_ = g.Wait()

	gallery := &Gallery{Videos: items, TotalCount: len(items)}
	for _, item := range items {
		switch item.Status {
		case AssetStatusReady:
			gallery.ReadyCount++
		case AssetStatusProcessing:
			gallery.ProcessingCount++
		case AssetStatusFailed:
			gallery.FailedCount++
		}
	}
	return gallery, nil
}
