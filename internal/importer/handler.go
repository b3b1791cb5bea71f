package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxUploadBytes caps buffered CSV uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// AdminHTTP exposes the operator endpoints that trigger imports. Both respond
// with an initiation acknowledgment only; final counts surface through logs,
// metrics and outcome events.
type AdminHTTP struct {
	pipeline *Pipeline
	feed     *Feed
	logger   *zap.Logger
}

// NewAdminHTTP constructs the admin handler.
func NewAdminHTTP(pipeline *Pipeline, feed *Feed, logger *zap.Logger) *AdminHTTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHTTP{pipeline: pipeline, feed: feed, logger: logger}
}

// Router builds the chi router for admin operations; the caller mounts it
// under /admin.
func (h *AdminHTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Post("/import-carparks", h.importCarParks)
	r.Post("/update-availability", h.updateAvailability)
	return r
}

func (h *AdminHTTP) importCarParks(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "please select a CSV file to upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		http.Error(w, "file must have a valid filename", http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "please upload a CSV file", http.StatusBadRequest)
		return
	}
	if header.Size == 0 {
		http.Error(w, "please select a CSV file to upload", http.StatusBadRequest)
		return
	}

	// Buffer the upload so the request can complete before the run does.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, maxUploadBytes)); err != nil {
		http.Error(w, "failed to read uploaded file", http.StatusBadRequest)
		return
	}

	go func() {
		if _, err := h.pipeline.Import(context.Background(), &buf); err != nil {
			h.logger.Error("car park import failed", zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Car park data import initiated")
}

func (h *AdminHTTP) updateAvailability(w http.ResponseWriter, _ *http.Request) {
	go func() {
		if _, err := h.feed.Refresh(context.Background()); err != nil {
			h.logger.Error("availability refresh failed", zap.Error(err))
		}
	}()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Availability data update initiated")
}
