package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/storage"
)

type feedbackResult struct {
	ID           string  `json:"id"`
	PredictionID string  `json:"prediction_id"`
	ErrorPct     float64 `json:"error_pct"`
	PatternID    string  `json:"pattern_id"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			PredictionID string `json:"prediction_id"`
			ActualCovers int    `json:"actual_covers"`
			Notes        string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: %v", err)
			return
		}
		if strings.TrimSpace(req.PredictionID) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prediction_id is required")
			return
		}
		if req.ActualCovers <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "actual_covers must be positive")
			return
		}

		result, err := recordFeedback(deps.Store, req.PredictionID, req.ActualCovers, req.Notes)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "prediction %s not found", req.PredictionID)
			return
		}
		if errors.Is(err, storage.ErrConflict) {
			httpError(w, http.StatusConflict, "invalid_request_error",
				"feedback already recorded for prediction %s", req.PredictionID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording feedback: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// recordFeedback stores observed covers for a prediction and folds them
// back into the corpus: a new pattern is derived from the prediction's
// context with the actual covers and queued for embedding, so the next
// prediction for a similar service retrieves what really happened.
func recordFeedback(store *storage.Store, predictionID string, actualCovers int, notes string) (feedbackResult, error) {
	pred, err := store.GetPrediction(predictionID)
	if err != nil {
		return feedbackResult{}, err
	}

	errorPct := round2(math.Abs(float64(pred.PredictedCovers-actualCovers)) / float64(actualCovers) * 100)
	fb := storage.Feedback{
		ID:           uuid.New().String(),
		PredictionID: predictionID,
		ActualCovers: actualCovers,
		ErrorPct:     errorPct,
		Notes:        notes,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.SaveFeedback(fb); err != nil {
		return feedbackResult{}, err
	}

	pattern, err := derivePattern(store, pred, actualCovers, fb.ID)
	if err != nil {
		return feedbackResult{}, fmt.Errorf("deriving pattern: %w", err)
	}
	if err := store.SavePatterns([]storage.Pattern{pattern}); err != nil {
		return feedbackResult{}, fmt.Errorf("saving derived pattern: %w", err)
	}
	if err := queueEmbedJob(store, pattern.ID); err != nil {
		return feedbackResult{}, fmt.Errorf("queueing embedding job: %w", err)
	}

	return feedbackResult{
		ID:           fb.ID,
		PredictionID: predictionID,
		ErrorPct:     errorPct,
		PatternID:    pattern.ID,
	}, nil
}

// derivePattern turns a prediction plus observed covers into a stored
// pattern. The prediction's context text is reused verbatim so the derived
// pattern embeds exactly what the prediction matched against.
func derivePattern(store *storage.Store, pred storage.Prediction, actualCovers int, feedbackID string) (storage.Pattern, error) {
	date, err := time.Parse("2006-01-02", pred.ServiceDate)
	if err != nil {
		return storage.Pattern{}, fmt.Errorf("parsing service date: %w", err)
	}
	sc := pipeline.ServiceContextFor(store, date)

	eventsJSON := ""
	if len(sc.Events) > 0 {
		raw, err := json.Marshal(sc.Events)
		if err != nil {
			return storage.Pattern{}, fmt.Errorf("encoding events: %w", err)
		}
		eventsJSON = string(raw)
	}

	contextText := pred.ContextText
	if contextText == "" {
		contextText = predict.ContextString(sc, pred.ServiceType)
	}

	return storage.Pattern{
		ID:               "fb_" + feedbackID[:8],
		RestaurantID:     pred.RestaurantID,
		Date:             pred.ServiceDate,
		DayOfWeek:        sc.DayOfWeek,
		ServiceType:      predict.SearchServiceType(pred.ServiceType),
		DayType:          sc.DayType,
		HotelOccupancy:   sc.HotelOccupancy,
		GuestsInHouse:    sc.GuestsInHouse,
		ActualCovers:     actualCovers,
		WeatherCondition: sc.Weather.Condition,
		WeatherTemp:      sc.Weather.Temperature,
		EventsJSON:       eventsJSON,
		IsHoliday:        sc.IsHoliday,
		HolidayName:      sc.HolidayName,
		Source:           "feedback",
		ContextText:      contextText,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func handleAccuracy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Store.AccuracyRows(r.URL.Query().Get("restaurant_id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading accuracy rows: %v", err)
			return
		}

		type report struct {
			Count       int      `json:"count"`
			MAPE        *float64 `json:"mape"`
			BiasPct     *float64 `json:"bias_pct"`
			Within10Pct *float64 `json:"within_10_pct"`
		}

		out := report{Count: len(rows)}
		if len(rows) > 0 {
			var mape, bias, within float64
			for _, row := range rows {
				mape += row.ErrorPct
				// Signed error: positive means over-prediction.
				bias += float64(row.PredictedCovers-row.ActualCovers) / float64(row.ActualCovers) * 100
				if row.ErrorPct <= 10 {
					within++
				}
			}
			n := float64(len(rows))
			mape = round2(mape / n)
			bias = round2(bias / n)
			within = round2(within / n * 100)
			out.MAPE, out.BiasPct, out.Within10Pct = &mape, &bias, &within
		}

		writeJSON(w, http.StatusOK, out)
	}
}
