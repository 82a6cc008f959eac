// Package api exposes the prediction service over HTTP and MCP. The HTTP
// surface covers the prediction pipeline, the pattern corpus, the feedback
// loop, event imports, and restaurant profiles; the MCP server exposes the
// same operations as tools for agent clients.
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/retrieval"
	"github.com/kalambet/covercast/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB for regular requests
	maxImportBodySize  = 10 << 20 // 10MB for pattern and document imports
)

// Deps carries the wired components the HTTP handlers need.
type Deps struct {
	Store       *storage.Store
	Coordinator *pipeline.Coordinator
	Predictor   *predict.Predictor
	Vectors     retrieval.VectorStore
	Restaurants *restaurant.Manager

	// Token guards every route except /health. Empty disables auth.
	Token string

	// HTTPClient fetches documents for URL imports. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// NewHandler assembles the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/predict", handlePredict(deps))
		r.Get("/predictions", handleListPredictions(deps))
		r.Get("/predictions/{id}", handleGetPrediction(deps))

		r.Get("/patterns", handleListPatterns(deps))
		r.Post("/patterns/search", handleSearchPatterns(deps))
		r.Post("/patterns/import", handleImportPatterns(deps))

		r.Post("/feedback", handleFeedback(deps))
		r.Get("/accuracy", handleAccuracy(deps))

		r.Post("/events/import", handleImportEvents(deps))
		r.Get("/events", handleListEvents(deps))
		r.Delete("/events/{id}", handleDeleteEvent(deps))

		r.Get("/restaurants/{id}", handleGetRestaurant(deps))
		r.Patch("/restaurants/{id}", handlePatchRestaurant(deps))

		r.Get("/data/export", handleExportData(deps))
		r.Delete("/data", handlePurgeData(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// httpError writes a JSON error response in the standard envelope.
func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// parseIntParam reads a positive integer query parameter. Missing or
// malformed values fall back to the default; maxVal caps the result when
// positive.
func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
