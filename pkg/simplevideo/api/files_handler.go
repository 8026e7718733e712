package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/presigned"
	fsstorage "github.com/tendant/simple-video/pkg/simplevideo/storage/fs"
)

// DefaultMaxUploadBytes caps a single signed PUT
const DefaultMaxUploadBytes int64 = 2 << 30

// FilesHandler serves the filesystem backend's signed URLs
type FilesHandler struct {
	backend        *fsstorage.Backend
	logger         *slog.Logger
	maxUploadBytes int64
}

// FilesOption configures a FilesHandler
type FilesOption func(*FilesHandler)

// WithMaxUploadBytes overrides DefaultMaxUploadBytes. Non-positive values
// are ignored.
func WithMaxUploadBytes(n int64) FilesOption {
	return func(h *FilesHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewFilesHandler creates a handler for backend
func NewFilesHandler(backend *fsstorage.Backend, logger *slog.Logger, opts ...FilesOption) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &FilesHandler{backend: backend, logger: logger, maxUploadBytes: DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the handler on the backend's route prefix
func (h *FilesHandler) Mount(r chi.Router) {
	r.Get(h.backend.RoutePrefix()+"/*", h.Download)
	r.Put(h.backend.RoutePrefix()+"/*", h.Upload)
}

// Download streams an object for a signed GET
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	key, ok := h.authorize(w, r)
	if !ok {
		return
	}

	body, meta, err := h.backend.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, simplevideo.ErrObjectNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to open file", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("Failed to stream file", "key", key, "error", err)
	}
}

// Upload stores the body of a signed PUT. X-Amz-Meta-* headers covered by
// the signature become object metadata; unsigned ones are dropped.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	key, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if r.ContentLength > h.maxUploadBytes {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	prefix := strings.ToLower(fsstorage.MetadataHeaderPrefix)
	metadata := map[string]string{}
	for _, name := range presigned.SignedHeaders(r) {
		if strings.HasPrefix(name, prefix) {
			metadata[name[len(prefix):]] = r.Header.Get(name)
		}
	}

	err := h.backend.Upload(r.Context(), simplevideo.UploadParams{
		Key:         key,
		Body:        r.Body,
		ContentType: r.Header.Get("Content-Type"),
		Size:        r.ContentLength,
		Metadata:    metadata,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("Rejected oversized upload", "key", key, "limit", tooLarge.Limit)
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("Failed to store upload", "key", key, "error", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *FilesHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := h.backend.KeyFromPath(r.URL.Path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return "", false
	}
	if err := h.backend.Signer().ValidateRequest(r); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, presigned.ErrMissingSignature) {
			status = http.StatusUnauthorized
		}
		h.logger.Warn("Rejected file request", "key", key, "method", r.Method, "error", err)
		http.Error(w, err.Error(), status)
		return "", false
	}
	return key, true
}
