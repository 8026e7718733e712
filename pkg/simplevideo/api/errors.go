package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/simple-video/pkg/simplevideo"
)

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps service errors onto HTTP status codes and error codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, simplevideo.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, simplevideo.ErrAssetNotFound), errors.Is(err, simplevideo.ErrObjectNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, simplevideo.ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, simplevideo.ErrAssetNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, simplevideo.ErrDuplicateAsset):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, simplevideo.ErrUpstreamFetch):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, simplevideo.ErrStorage):
		return http.StatusInternalServerError, "storage_error"
	case errors.Is(err, simplevideo.ErrDatabase):
		return http.StatusInternalServerError, "database_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders err. Server-side failures are logged and their
// details withheld from the response.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status, code := statusFor(err)
	body := ErrorBody{Error: ErrorDetail{Code: code, Message: err.Error()}}

	var verr *simplevideo.ValidationError
	if errors.As(err, &verr) {
		body.Error.Field = verr.Field
		body.Error.Message = verr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err, "path", r.URL.Path)
		body.Error.Message = http.StatusText(status)
	} else {
		logger.Warn(msg, "error", err, "path", r.URL.Path, "status", status)
	}

	render.Status(r, status)
	render.JSON(w, r, body)
}
