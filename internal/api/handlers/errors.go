package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

// statusFor maps engine errors to HTTP status codes. Anything unrecognized
// is treated as an upstream provider failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, rag.ErrNoChunks),
		errors.Is(err, models.ErrInvalidDocument),
		errors.Is(err, textextract.ErrUnsupportedType),
		errors.Is(err, llm.ErrUnsupportedProvider),
		errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusBadRequest
	case errors.Is(err, vectorstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
