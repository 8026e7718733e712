package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// WebhookHandler receives generator status callbacks. Callers authenticate
// with the middleware the router mounts it under.
type WebhookHandler struct {
	service simplevideo.Service
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service simplevideo.Service, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{service: service, logger: logger}
}

// Routes returns the webhook routes
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generation", h.GenerationStatus)
	return r
}

// GenerationStatus applies a status callback
func (h *WebhookHandler) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, h.logger, "Failed to read callback", &simplevideo.ValidationError{Field: "body", Message: err.Error()})
		return
	}
	update, err := simplevideo.ParseStatusCallback(body)
	if err != nil {
		writeError(w, r, h.logger, "Invalid callback", err)
		return
	}

	result, err := h.service.UpdateStatus(r.Context(), update)
	if err != nil {
		writeError(w, r, h.logger, "Failed to apply status callback", err)
		return
	}

	h.logger.Info("Status callback applied", "video_id", result.VideoID, "status", result.Status)
	render.JSON(w, r, result)
}
