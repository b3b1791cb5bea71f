package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/carparkd/internal/carpark/service"
)

// HTTP exposes the public car park lookup endpoint.
type HTTP struct {
	svc *service.Service
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service) *HTTP {
	return &HTTP{svc: svc}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/carparks/nearest", h.nearest)
	return r
}

func (h *HTTP) nearest(w http.ResponseWriter, r *http.Request) {
	lat, err := requireQueryFloat(r, "latitude")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lon, err := requireQueryFloat(r, "longitude")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if lat < -90 || lat > 90 {
		http.Error(w, "latitude must be between -90 and 90", http.StatusBadRequest)
		return
	}
	if lon < -180 || lon > 180 {
		http.Error(w, "longitude must be between -180 and 180", http.StatusBadRequest)
		return
	}

	page, err := queryIntDefault(r, "page", 1)
	if err != nil || page < 1 {
		http.Error(w, "page must be greater than 0", http.StatusBadRequest)
		return
	}
	perPage, err := queryIntDefault(r, "per_page", 10)
	if err != nil || perPage < 1 {
		http.Error(w, "per_page must be greater than 0", http.StatusBadRequest)
		return
	}

	results, err := h.svc.FindNearest(r.Context(), lat, lon, page, perPage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []service.NearbyCarPark{}
	}
	writeJSON(w, http.StatusOK, results)
}

func requireQueryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, &paramError{key + " is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &paramError{"invalid " + key}
	}
	return v, nil
}

func queryIntDefault(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
