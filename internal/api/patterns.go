package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/covercast/internal/ingest"
	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/seed"
	"github.com/kalambet/covercast/internal/storage"
)

// patternRow is the list representation of a stored pattern. Indexed
// reports whether the embedding job has run.
type patternRow struct {
	PatternID    string `json:"pattern_id"`
	Date         string `json:"date"`
	DayOfWeek    string `json:"day_of_week"`
	ServiceType  string `json:"service_type"`
	DayType      string `json:"day_type"`
	ActualCovers int    `json:"actual_covers"`
	Weather      string `json:"weather"`
	IsHoliday    bool   `json:"is_holiday"`
	HolidayName  string `json:"holiday_name,omitempty"`
	Source       string `json:"source"`
	Indexed      bool   `json:"indexed"`
}

func handleListPatterns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		patterns, err := deps.Store.ListPatterns(r.URL.Query().Get("service_type"), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing patterns: %v", err)
			return
		}

		rows := make([]patternRow, 0, len(patterns))
		for _, p := range patterns {
			rows = append(rows, patternRow{
				PatternID:    p.ID,
				Date:         p.Date,
				DayOfWeek:    p.DayOfWeek,
				ServiceType:  p.ServiceType,
				DayType:      p.DayType,
				ActualCovers: p.ActualCovers,
				Weather:      p.WeatherCondition,
				IsHoliday:    p.IsHoliday,
				HolidayName:  p.HolidayName,
				Source:       p.Source,
				Indexed:      p.VectorID != "",
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"patterns": rows,
			"count":    len(rows),
		})
	}
}

func handleSearchPatterns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Query       string `json:"query"`
			ServiceDate string `json:"service_date"`
			ServiceType string `json:"service_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: %v", err)
			return
		}

		text := strings.TrimSpace(req.Query)
		if text == "" {
			if req.ServiceDate == "" || req.ServiceType == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"either query or service_date and service_type are required")
				return
			}
			date, err := time.Parse("2006-01-02", req.ServiceDate)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"service_date %q is not a YYYY-MM-DD date", req.ServiceDate)
				return
			}
			text = predict.ContextString(pipeline.ServiceContextFor(deps.Store, date), req.ServiceType)
		}

		patterns, degraded := deps.Predictor.Search(r.Context(), text, req.ServiceType)
		if patterns == nil {
			patterns = []predict.Pattern{}
		}
		method := "vector_search"
		if degraded {
			method = "vector_search_degraded"
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"patterns": patterns,
			"method":   method,
			"count":    len(patterns),
		})
	}
}

func handleImportPatterns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var req struct {
			RestaurantID string         `json:"restaurant_id"`
			Patterns     []seed.Pattern `json:"patterns"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: %v", err)
			return
		}
		if len(req.Patterns) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "patterns must not be empty")
			return
		}
		restaurantID := req.RestaurantID
		if restaurantID == "" {
			restaurantID = restaurant.DefaultID
		}

		stored := make([]storage.Pattern, 0, len(req.Patterns))
		for i, p := range req.Patterns {
			if err := p.Validate(); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pattern %d: %v", i, err)
				return
			}
			sp, err := p.ToStored(restaurantID)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pattern %d: %v", i, err)
				return
			}
			stored = append(stored, sp)
		}

		if err := deps.Store.SavePatterns(stored); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving patterns: %v", err)
			return
		}

		queued := 0
		for _, sp := range stored {
			if err := queueEmbedJob(deps.Store, sp.ID); err != nil {
				slog.Warn("failed to queue embedding job",
					"pattern_id", sp.ID,
					"error", err)
				continue
			}
			queued++
		}

		writeJSON(w, http.StatusOK, map[string]int{
			"imported": len(stored),
			"queued":   queued,
		})
	}
}

// queueEmbedJob enqueues the background embedding of one stored pattern.
func queueEmbedJob(store *storage.Store, patternID string) error {
	payload, err := json.Marshal(map[string]string{"pattern_id": patternID})
	if err != nil {
		return err
	}
	return store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        ingest.JobEmbedPattern,
		PayloadJSON: string(payload),
	})
}
