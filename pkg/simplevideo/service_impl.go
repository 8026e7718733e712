package simplevideo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tendant/simple-video/pkg/simplevideo/generation"
	"github.com/tendant/simple-video/pkg/simplevideo/objectkey"
)

// DefaultGalleryConcurrency bounds concurrent URL minting in ListGallery.
const DefaultGalleryConcurrency = 8

// service implements the Service interface
type service struct {
	repository         Repository
	blobStores         map[string]BlobStore
	defaultBackend     string
	gateway            *Gateway
	gateways           map[string]*Gateway
	eventSink          EventSink
	fetcher            SourceFetcher
	generator          GenerationSubmitter
	callbackURL        string
	keyGenerator       objectkey.Generator
	logger             *slog.Logger
	galleryConcurrency int
	downloadTTL        time.Duration
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore registers a blob storage backend. The first registered
// backend is the default unless WithDefaultBackend says otherwise.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.defaultBackend == "" {
			s.defaultBackend = name
		}
	}
}

// WithDefaultBackend selects which registered backend stores new videos
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithFetcher sets how remote source videos are retrieved
func WithFetcher(f SourceFetcher) Option {
	return func(s *service) {
		s.fetcher = f
	}
}

// WithGenerationSubmitter enables RequestGeneration
func WithGenerationSubmitter(g GenerationSubmitter) Option {
	return func(s *service) {
		s.generator = g
	}
}

// WithCallbackURL sets the URL the generator reports status to
func WithCallbackURL(u string) Option {
	return func(s *service) {
		s.callbackURL = u
	}
}

// WithKeyGenerator sets the storage key layout
func WithKeyGenerator(g objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = g
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		s.logger = l
	}
}

// WithGalleryConcurrency bounds concurrent URL minting while listing
func WithGalleryConcurrency(n int) Option {
	return func(s *service) {
		s.galleryConcurrency = n
	}
}

// WithDownloadTTL sets the lifetime of minted download URLs
func WithDownloadTTL(d time.Duration) Option {
	return func(s *service) {
		s.downloadTTL = d
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:         make(map[string]BlobStore),
		logger:             slog.Default(),
		galleryConcurrency: DefaultGalleryConcurrency,
		downloadTTL:        DefaultURLTTL,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if _, ok := s.blobStores[s.defaultBackend]; !ok {
		return nil, fmt.Errorf("storage backend %q is not registered", s.defaultBackend)
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher()
	}
	if s.galleryConcurrency <= 0 {
		s.galleryConcurrency = DefaultGalleryConcurrency
	}

	gwOpts := []GatewayOption{WithGatewayLogger(s.logger)}
	if s.keyGenerator != nil {
		gwOpts = append(gwOpts, WithGatewayKeyGenerator(s.keyGenerator))
	}
	s.gateways = make(map[string]*Gateway, len(s.blobStores))
	for name, store := range s.blobStores {
		s.gateways[name] = NewGateway(name, store, gwOpts...)
	}
	s.gateway = s.gateways[s.defaultBackend]

	return s, nil
}

func (s *service) Gateway() *Gateway {
	return s.gateway
}

// Asset creation

func (s *service) CreateFromURL(ctx context.Context, req CreateFromURLRequest) (*PublicAsset, error) {
	source, err := validateSourceURL(req.VideoURL)
	if err != nil {
		return nil, err
	}
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}

	videoID := NewVideoID()
	if err := s.ensureUnused(ctx, videoID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = TitleFromURL(req.VideoURL)
	}

	src, err := s.fetcher.Fetch(ctx, source.String())
	if err != nil {
		s.logger.Error("Failed to fetch source video", "video_id", videoID, "url", req.VideoURL, "error", err)
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return nil, err
		}
		return nil, &UpstreamError{URL: req.VideoURL, Err: err}
	}
	defer src.Body.Close()

	filename := path.Base(source.Path)
	if filename == "." || filename == "/" {
		filename = ""
	}
	key := s.gateway.GenerateStorageKey(req.Owner, videoID, filename)
	secret := NewSecretKey()
	now := time.Now().UTC()

	body := &countingReader{r: src.Body}
	err = s.gateway.UploadDirect(ctx, key, secret, body, src.Size, src.ContentType, map[string]string{
		MetaVideoID:    videoID,
		MetaOwner:      req.Owner.String(),
		MetaUploadedAt: now.Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("Failed to store source video", "video_id", videoID, "storage_key", key, "error", err)
		return nil, err
	}

	asset := &VideoAsset{
		VideoID:    videoID,
		Owner:      req.Owner,
		Title:      title,
		StorageKey: key,
		Backend:    s.gateway.Backend(),
		SecretKey:  secret,
		Status:     AssetStatusReady,
		Metadata: map[string]interface{}{
			"size":         body.n,
			"format":       formatFromContentType(src.ContentType),
			"content_type": src.ContentType,
			"source_url":   req.VideoURL,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.CreateAsset(ctx, asset); err != nil {
		// The uploaded object stays behind; operators reconcile by storage key.
		s.logger.Error("Failed to record stored video, object orphaned", "video_id", videoID, "storage_key", key, "error", err)
		return nil, &DatabaseError{Op: "create", VideoID: videoID, Err: err}
	}

	s.emitCreated(ctx, asset)
	return asset.Public(), nil
}

func (s *service) CreateAsset(ctx context.Context, req CreateAssetRequest) (*VideoAsset, error) {
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = AssetStatusProcessing
	}
	if !status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", status)}
	}
	videoID := req.VideoID
	if videoID == "" {
		videoID = NewVideoID()
	}
	secret := req.SecretKey
	if secret == "" {
		secret = NewSecretKey()
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultTitle
	}
	backend := req.Backend
	if backend == "" {
		backend = s.defaultBackend
	}
	if _, ok := s.gateways[backend]; !ok {
		return nil, &ValidationError{Field: "backend", Message: fmt.Sprintf("storage backend %q is not registered", backend)}
	}

	now := time.Now().UTC()
	asset := &VideoAsset{
		VideoID:    videoID,
		Owner:      req.Owner,
		Title:      title,
		StorageKey: req.StorageKey,
		Backend:    backend,
		SecretKey:  secret,
		Status:     status,
		Metadata:   copyMetadata(req.Metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repository.CreateAsset(ctx, asset); err != nil {
		if errors.Is(err, ErrDuplicateAsset) {
			return nil, &AssetError{VideoID: videoID, Op: "create", Err: err}
		}
		return nil, &DatabaseError{Op: "create", VideoID: videoID, Err: err}
	}

	s.emitCreated(ctx, asset)
	return asset, nil
}

func (s *service) RequestGeneration(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("generation is not configured")
	}
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	if err := validateListing(req.Listing); err != nil {
		return nil, err
	}

	videoID := NewVideoID()
	if err := s.ensureUnused(ctx, videoID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSpace(req.Listing.Address)
	}

	handle, err := s.gateway.CreateUploadHandle(ctx, req.Owner, videoID, videoID+".mp4", "video/mp4")
	if err != nil {
		return nil, err
	}

	asset, err := s.CreateAsset(ctx, CreateAssetRequest{
		VideoID:    videoID,
		Owner:      req.Owner,
		Title:      title,
		StorageKey: handle.Key,
		Backend:    s.gateway.Backend(),
		SecretKey:  handle.SecretKey,
		Status:     AssetStatusProcessing,
		Metadata: map[string]interface{}{
			"source":  "generation",
			"address": req.Listing.Address,
			"photos":  len(req.Listing.PhotoURLs),
		},
	})
	if err != nil {
		return nil, err
	}

	sub, err := s.generator.Submit(ctx, generation.Job{
		VideoID:     videoID,
		CallbackURL: s.callbackURL,
		Listing:     req.Listing,
		Upload: generation.UploadTarget{
			Key:     handle.Key,
			URL:     handle.UploadURL,
			Method:  handle.Method,
			Headers: handle.Headers,
		},
	})
	if err != nil {
		s.logger.Error("Failed to submit generation job", "video_id", videoID, "error", err)
		s.markFailed(ctx, asset, err.Error())
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			return nil, err
		}
		return nil, &UpstreamError{URL: "generation", Err: err}
	}

	if sub != nil && sub.JobID != "" {
		if updated, err := s.repository.MergeMetadata(ctx, videoID, map[string]interface{}{"job_id": sub.JobID}); err != nil {
			s.logger.Warn("Failed to record generation job id", "video_id", videoID, "job_id", sub.JobID, "error", err)
		} else {
			asset = updated
		}
	}

	result := &GenerationResult{Asset: asset.Public()}
	if sub != nil {
		result.JobID = sub.JobID
	}
	return result, nil
}

func (s *service) CreateUploadHandle(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, &ValidationError{Field: "filename", Message: "filename is required"}
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, &ValidationError{Field: "contentType", Message: "content type must be a video type"}
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = TitleFromFilename(path.Base(filename))
	}

	videoID := NewVideoID()
	if err := s.ensureUnused(ctx, videoID); err != nil {
		return nil, err
	}
	handle, err := s.gateway.CreateUploadHandle(ctx, req.Owner, videoID, path.Base(filename), contentType)
	if err != nil {
		return nil, err
	}

	asset, err := s.CreateAsset(ctx, CreateAssetRequest{
		VideoID:    videoID,
		Owner:      req.Owner,
		Title:      title,
		StorageKey: handle.Key,
		Backend:    s.gateway.Backend(),
		SecretKey:  handle.SecretKey,
		Status:     AssetStatusProcessing,
		Metadata: map[string]interface{}{
			"source":       "upload",
			"content_type": contentType,
			"format":       formatFromContentType(contentType),
		},
	})
	if err != nil {
		return nil, err
	}

	return &UploadResult{Asset: asset.Public(), Upload: handle}, nil
}

// Reads

func (s *service) GetAsset(ctx context.Context, videoID string, owner OwnerRef) (*PublicAsset, error) {
	asset, err := s.lookup(ctx, "get", videoID, owner)
	if err != nil {
		return nil, err
	}
	return asset.Public(), nil
}

func (s *service) GetDownloadURL(ctx context.Context, videoID string, owner OwnerRef) (*DownloadURL, error) {
	asset, err := s.lookup(ctx, "download", videoID, owner, IncludeSecret())
	if err != nil {
		return nil, err
	}
	if err := canDownloadAsset(asset.Status); err != nil {
		return nil, &AssetError{VideoID: videoID, Op: "download", Err: err}
	}
	gw, err := s.gatewayFor(asset, "download")
	if err != nil {
		return nil, err
	}
	u, err := gw.CreateDownloadURL(ctx, asset.StorageKey, asset.SecretKey, s.downloadTTL)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Mutations

func (s *service) UpdateStatus(ctx context.Context, update StatusUpdate) (*StatusResult, error) {
	videoID := strings.TrimSpace(update.VideoID)
	if videoID == "" {
		return nil, &ValidationError{Field: "videoId", Message: "videoId is required"}
	}

	asset, err := s.repository.GetAsset(ctx, videoID, IncludeSecret())
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			s.logger.Warn("Status update for unknown video", "video_id", videoID, "status", update.Status)
			return nil, &AssetError{VideoID: videoID, Op: "update_status", Err: ErrAssetNotFound}
		}
		return nil, &DatabaseError{Op: "get", VideoID: videoID, Err: err}
	}
	status, err := resolveCallbackStatus(update.Status, update.Error)
	if err != nil {
		return nil, err
	}
	previous := asset.Status

	if status == AssetStatusReady && update.VideoURL != "" {
		if err := s.ingestArtifact(ctx, asset, update.VideoURL); err != nil {
			s.markFailed(ctx, asset, err.Error())
			return nil, err
		}
	}

	updated, err := s.repository.UpdateStatus(ctx, videoID, status)
	if err != nil {
		return nil, s.mutationError("update_status", videoID, err)
	}

	patch := copyMetadata(update.Metadata)
	if update.Error != "" {
		if patch == nil {
			patch = make(map[string]interface{})
		}
		patch["error"] = update.Error
	}
	if len(patch) > 0 {
		updated, err = s.repository.MergeMetadata(ctx, videoID, patch)
		if err != nil {
			return nil, s.mutationError("merge_metadata", videoID, err)
		}
	}

	if err := s.eventSink.AssetStatusChanged(ctx, updated, previous); err != nil {
		s.logger.Warn("Failed to publish status change", "video_id", videoID, "error", err)
	}

	return &StatusResult{VideoID: videoID, Status: updated.Status, UpdatedAt: updated.UpdatedAt}, nil
}

func (s *service) UpdateTitle(ctx context.Context, videoID string, owner OwnerRef, title string) (*PublicAsset, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}
	if _, err := s.lookup(ctx, "update_title", videoID, owner); err != nil {
		return nil, err
	}
	updated, err := s.repository.UpdateTitle(ctx, videoID, title)
	if err != nil {
		return nil, s.mutationError("update_title", videoID, err)
	}
	return updated.Public(), nil
}

func (s *service) MergeMetadata(ctx context.Context, videoID string, owner OwnerRef, patch map[string]interface{}) (*PublicAsset, error) {
	if len(patch) == 0 {
		return nil, &ValidationError{Field: "metadata", Message: "metadata is required"}
	}
	if _, err := s.lookup(ctx, "merge_metadata", videoID, owner); err != nil {
		return nil, err
	}
	updated, err := s.repository.MergeMetadata(ctx, videoID, patch)
	if err != nil {
		return nil, s.mutationError("merge_metadata", videoID, err)
	}
	return updated.Public(), nil
}

func (s *service) DeleteAsset(ctx context.Context, req DeleteRequest) (*DeleteResult, error) {
	asset, err := s.lookup(ctx, "delete", req.VideoID, req.Owner, IncludeSecret())
	if err != nil {
		return nil, err
	}

	storageDeleted := false
	if gw, err := s.gatewayFor(asset, "delete"); err != nil {
		s.logger.Warn("Storage delete skipped", "video_id", asset.VideoID, "storage_key", asset.StorageKey, "error", err)
	} else {
		storageDeleted = gw.Delete(ctx, asset.StorageKey, asset.SecretKey)
	}
	if !storageDeleted {
		s.logger.Warn("Deleting video record with storage object left behind", "video_id", asset.VideoID, "storage_key", asset.StorageKey)
	}

	deleted, err := s.repository.DeleteAsset(ctx, asset.VideoID)
	if err != nil {
		s.logger.Error("Failed to delete video record", "video_id", asset.VideoID, "error", err)
		return nil, &DatabaseError{Op: "delete", VideoID: asset.VideoID, Err: err}
	}
	if !deleted {
		return nil, &AssetError{VideoID: asset.VideoID, Op: "delete", Err: ErrAssetNotFound}
	}

	if err := s.eventSink.AssetDeleted(ctx, asset.VideoID, storageDeleted); err != nil {
		s.logger.Warn("Failed to publish delete", "video_id", asset.VideoID, "error", err)
	}

	return &DeleteResult{
		VideoID:        asset.VideoID,
		StorageDeleted: storageDeleted,
		DeletedAt:      time.Now().UTC(),
	}, nil
}

// Helpers

// lookup loads an asset and hides it from callers who do not own it.
func (s *service) lookup(ctx context.Context, op, videoID string, owner OwnerRef, opts ...GetOption) (*VideoAsset, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, &ValidationError{Field: "videoId", Message: "videoId is required"}
	}
	asset, err := s.repository.GetAsset(ctx, videoID, opts...)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil, &AssetError{VideoID: videoID, Op: op, Err: ErrAssetNotFound}
		}
		return nil, &DatabaseError{Op: op, VideoID: videoID, Err: err}
	}
	if !owner.IsZero() && asset.Owner != owner {
		return nil, &AssetError{VideoID: videoID, Op: op, Err: ErrAssetNotFound}
	}
	return asset, nil
}

// gatewayFor returns the gateway over the store that holds the asset's
// object. Records without a backend predate backend tracking and live in the
// default store.
func (s *service) gatewayFor(asset *VideoAsset, op string) (*Gateway, error) {
	if asset.Backend == "" {
		return s.gateway, nil
	}
	gw, ok := s.gateways[asset.Backend]
	if !ok {
		return nil, &StorageError{
			Backend: asset.Backend,
			Key:     asset.StorageKey,
			Op:      op,
			Err:     fmt.Errorf("storage backend %q is not registered", asset.Backend),
		}
	}
	return gw, nil
}

func (s *service) ensureUnused(ctx context.Context, videoID string) error {
	_, err := s.repository.GetAsset(ctx, videoID)
	switch {
	case err == nil:
		return &AssetError{VideoID: videoID, Op: "create", Err: ErrDuplicateAsset}
	case errors.Is(err, ErrAssetNotFound):
		return nil
	default:
		return &DatabaseError{Op: "get", VideoID: videoID, Err: err}
	}
}

// ingestArtifact copies a finished video reported by the generator into the
// asset's reserved storage key, binding the asset's existing secret.
func (s *service) ingestArtifact(ctx context.Context, asset *VideoAsset, videoURL string) error {
	if asset.StorageKey == "" {
		return &ValidationError{Field: "videoUrl", Message: "video has no reserved storage key"}
	}
	source, err := validateSourceURL(videoURL)
	if err != nil {
		return err
	}
	src, err := s.fetcher.Fetch(ctx, source.String())
	if err != nil {
		s.logger.Error("Failed to fetch generated video", "video_id", asset.VideoID, "url", videoURL, "error", err)
		return err
	}
	defer src.Body.Close()

	gw, err := s.gatewayFor(asset, "upload")
	if err != nil {
		return err
	}
	key := asset.StorageKey
	body := &countingReader{r: src.Body}
	err = gw.UploadDirect(ctx, key, asset.SecretKey, body, src.Size, src.ContentType, map[string]string{
		MetaVideoID:    asset.VideoID,
		MetaOwner:      asset.Owner.String(),
		MetaUploadedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = s.repository.MergeMetadata(ctx, asset.VideoID, map[string]interface{}{
		"size":         body.n,
		"format":       formatFromContentType(src.ContentType),
		"content_type": src.ContentType,
		"source_url":   videoURL,
	})
	if err != nil {
		return s.mutationError("merge_metadata", asset.VideoID, err)
	}
	return nil
}

func (s *service) markFailed(ctx context.Context, asset *VideoAsset, reason string) {
	if _, err := s.repository.UpdateStatus(ctx, asset.VideoID, AssetStatusFailed); err != nil {
		s.logger.Error("Failed to mark video failed", "video_id", asset.VideoID, "error", err)
		return
	}
	updated, err := s.repository.MergeMetadata(ctx, asset.VideoID, map[string]interface{}{"error": reason})
	if err != nil {
		s.logger.Error("Failed to record video failure", "video_id", asset.VideoID, "error", err)
		return
	}
	if err := s.eventSink.AssetStatusChanged(ctx, updated, asset.Status); err != nil {
		s.logger.Warn("Failed to publish status change", "video_id", asset.VideoID, "error", err)
	}
}

func (s *service) mutationError(op, videoID string, err error) error {
	if errors.Is(err, ErrAssetNotFound) {
		return &AssetError{VideoID: videoID, Op: op, Err: ErrAssetNotFound}
	}
	return &DatabaseError{Op: op, VideoID: videoID, Err: err}
}

func (s *service) emitCreated(ctx context.Context, asset *VideoAsset) {
	if err := s.eventSink.AssetCreated(ctx, asset); err != nil {
		s.logger.Warn("Failed to publish asset created", "video_id", asset.VideoID, "error", err)
	}
}

func validateSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Field: "videoUrl", Message: "videoUrl is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &ValidationError{Field: "videoUrl", Message: "videoUrl must be an absolute http(s) URL"}
	}
	return u, nil
}

func validateListing(l generation.Listing) error {
	if strings.TrimSpace(l.Address) == "" {
		return &ValidationError{Field: "address", Message: "address is required"}
	}
	if len(l.PhotoURLs) == 0 {
		return &ValidationError{Field: "photoUrls", Message: "at least one photo is required"}
	}
	for _, p := range l.PhotoURLs {
		if _, err := validateSourceURL(p); err != nil {
			return &ValidationError{Field: "photoUrls", Message: fmt.Sprintf("invalid photo URL %q", p)}
		}
	}
	return nil
}
