package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/generation"
)

// VideoHandler serves the asset routes
type VideoHandler struct {
	service simplevideo.Service
	owners  *OwnerResolver
	logger  *slog.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(service simplevideo.Service, owners *OwnerResolver, logger *slog.Logger) *VideoHandler {
	if owners == nil {
		owners = NewOwnerResolver("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoHandler{service: service, owners: owners, logger: logger}
}

// Routes returns the routes for videos
func (h *VideoHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.owners.Verifier())

	r.Post("/", h.CreateFromURL)
	r.Get("/", h.ListGallery)
	r.Post("/generate", h.RequestGeneration)
	r.Post("/uploads", h.CreateUpload)

	r.Get("/{id}", h.GetVideo)
	r.Patch("/{id}", h.UpdateVideo)
	r.Delete("/{id}", h.DeleteVideo)
	r.Get("/{id}/download", h.GetDownloadURL)

	return r
}

// CreateVideoRequest is the request body for storing a remote video
type CreateVideoRequest struct {
	VideoURL string `json:"videoUrl"`
	Email    string `json:"email,omitempty"`
	Title    string `json:"title,omitempty"`
}

// GenerateVideoRequest is the request body for a generation job
type GenerateVideoRequest struct {
	Email   string             `json:"email,omitempty"`
	Title   string             `json:"title,omitempty"`
	Listing generation.Listing `json:"listing"`
}

// CreateUploadRequest is the request body for a direct upload
type CreateUploadRequest struct {
	Email       string `json:"email,omitempty"`
	Title       string `json:"title,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
}

// UpdateVideoRequest is the request body for PATCH /videos/{id}
type UpdateVideoRequest struct {
	Email    string                 `json:"email,omitempty"`
	Title    *string                `json:"title,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// CreateFromURL downloads a remote video into storage
func (h *VideoHandler) CreateFromURL(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner, err := h.owners.Resolve(r, req.Email)
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	asset, err := h.service.CreateFromURL(r.Context(), simplevideo.CreateFromURLRequest{
		VideoURL: req.VideoURL,
		Owner:    owner,
		Title:    req.Title,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to create video", err)
		return
	}

	h.logger.Info("Video created", "video_id", asset.VideoID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, asset)
}

// RequestGeneration submits a listing to the generator
func (h *VideoHandler) RequestGeneration(w http.ResponseWriter, r *http.Request) {
	var req GenerateVideoRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner, err := h.owners.Resolve(r, req.Email)
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	result, err := h.service.RequestGeneration(r.Context(), simplevideo.GenerationRequest{
		Owner:   owner,
		Title:   req.Title,
		Listing: req.Listing,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to request generation", err)
		return
	}

	h.logger.Info("Generation requested", "video_id", result.Asset.VideoID, "job_id", result.JobID)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, result)
}

// CreateUpload reserves an asset and returns a presigned upload
func (h *VideoHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req CreateUploadRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner, err := h.owners.Resolve(r, req.Email)
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	result, err := h.service.CreateUploadHandle(r.Context(), simplevideo.UploadRequest{
		Owner:       owner,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Title:       req.Title,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to create upload", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// ListGallery lists the caller's videos with download URLs
func (h *VideoHandler) ListGallery(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owners.Resolve(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	gallery, err := h.service.ListGallery(r.Context(), owner)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list videos", err)
		return
	}
	if gallery.Videos == nil {
		gallery.Videos = []*simplevideo.GalleryItem{}
	}
	render.JSON(w, r, gallery)
}

// GetVideo returns one of the caller's videos
func (h *VideoHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner, err := h.owners.Resolve(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	asset, err := h.service.GetAsset(r.Context(), id, owner)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get video", err)
		return
	}
	render.JSON(w, r, asset)
}

// GetDownloadURL mints a fresh download URL
func (h *VideoHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner, err := h.owners.Resolve(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	u, err := h.service.GetDownloadURL(r.Context(), id, owner)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get download URL", err)
		return
	}
	render.JSON(w, r, u)
}

// UpdateVideo renames a video and/or merges metadata into it
func (h *VideoHandler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateVideoRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner, err := h.owners.Resolve(r, firstNonEmpty(req.Email, r.URL.Query().Get("email")))
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}
	if req.Title == nil && len(req.Metadata) == 0 {
		writeError(w, r, h.logger, "Empty update", &simplevideo.ValidationError{Field: "body", Message: "title or metadata is required"})
		return
	}

	var asset *simplevideo.PublicAsset
	if req.Title != nil {
		if asset, err = h.service.UpdateTitle(r.Context(), id, owner, *req.Title); err != nil {
			writeError(w, r, h.logger, "Failed to update title", err)
			return
		}
	}
	if len(req.Metadata) > 0 {
		if asset, err = h.service.MergeMetadata(r.Context(), id, owner, req.Metadata); err != nil {
			writeError(w, r, h.logger, "Failed to update metadata", err)
			return
		}
	}
	render.JSON(w, r, asset)
}

// DeleteVideo removes a video and its stored object
func (h *VideoHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owner, err := h.owners.Resolve(r, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, h.logger, "Invalid owner", err)
		return
	}

	result, err := h.service.DeleteAsset(r.Context(), simplevideo.DeleteRequest{VideoID: id, Owner: owner})
	if err != nil {
		writeError(w, r, h.logger, "Failed to delete video", err)
		return
	}

	h.logger.Info("Video deleted", "video_id", id, "storage_deleted", result.StorageDeleted)
	render.JSON(w, r, result)
}

func (h *VideoHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeError(w, r, h.logger, "Invalid request body", &simplevideo.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
