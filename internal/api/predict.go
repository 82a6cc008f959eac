package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/storage"
)

func handlePredict(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: %v", err)
			return
		}

		pred, _, err := deps.Coordinator.Predict(r.Context(), req)
		if err != nil {
			if errors.Is(err, pipeline.ErrInvalidRequest) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "prediction failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, pred)
	}
}

// predictionSummary is the list representation of a stored prediction. The
// full response is available at /predictions/{id}.
type predictionSummary struct {
	PredictionID    string  `json:"prediction_id"`
	RestaurantID    string  `json:"restaurant_id"`
	ServiceDate     string  `json:"service_date"`
	ServiceType     string  `json:"service_type"`
	PredictedCovers int     `json:"predicted_covers"`
	Confidence      float64 `json:"confidence"`
	Method          string  `json:"method"`
	CreatedAt       string  `json:"created_at"`
}

func summarizePrediction(p storage.Prediction) predictionSummary {
	return predictionSummary{
		PredictionID:    p.ID,
		RestaurantID:    p.RestaurantID,
		ServiceDate:     p.ServiceDate,
		ServiceType:     p.ServiceType,
		PredictedCovers: p.PredictedCovers,
		Confidence:      p.Confidence,
		Method:          p.Method,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
	}
}

func handleListPredictions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		preds, err := deps.Store.ListPredictions(r.URL.Query().Get("restaurant_id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing predictions: %v", err)
			return
		}

		summaries := make([]predictionSummary, 0, len(preds))
		for _, p := range preds {
			summaries = append(summaries, summarizePrediction(p))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"predictions": summaries,
			"count":       len(summaries),
		})
	}
}

func handleGetPrediction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := deps.Store.GetPrediction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "prediction %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading prediction: %v", err)
			return
		}

		// The stored response is served verbatim so a prediction reads the
		// same on the day it was made and a month later.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(p.ResponseJSON))
	}
}
