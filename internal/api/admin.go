package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func handleGetRestaurant(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := deps.Restaurants.Get(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func handlePatchRestaurant(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: %v", err)
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no fields to update")
			return
		}

		id := chi.URLParam(r, "id")
		for key, value := range fields {
			if _, err := deps.Restaurants.SetField(id, key, value); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}

		profile, err := deps.Restaurants.Get(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// Export wire shapes. Embeddings and vector ids are rebuilt on import, so
// neither is part of the export.

type exportPattern struct {
	PatternID        string          `json:"pattern_id"`
	RestaurantID     string          `json:"restaurant_id"`
	Date             string          `json:"date"`
	DayOfWeek        string          `json:"day_of_week"`
	ServiceType      string          `json:"service_type"`
	DayType          string          `json:"day_type"`
	HotelOccupancy   float64         `json:"hotel_occupancy"`
	GuestsInHouse    int             `json:"guests_in_house"`
	ActualCovers     int             `json:"actual_covers"`
	WeatherCondition string          `json:"weather_condition"`
	WeatherTemp      int             `json:"weather_temp"`
	Events           json.RawMessage `json:"events,omitempty"`
	IsHoliday        bool            `json:"is_holiday"`
	HolidayName      string          `json:"holiday_name,omitempty"`
	Source           string          `json:"source"`
	ContextText      string          `json:"context_text"`
	CreatedAt        string          `json:"created_at"`
}

type exportPrediction struct {
	PredictionID    string          `json:"prediction_id"`
	RestaurantID    string          `json:"restaurant_id"`
	ServiceDate     string          `json:"service_date"`
	ServiceType     string          `json:"service_type"`
	PredictedCovers int             `json:"predicted_covers"`
	Confidence      float64         `json:"confidence"`
	Method          string          `json:"method"`
	ContextText     string          `json:"context_text"`
	Response        json.RawMessage `json:"response"`
	CreatedAt       string          `json:"created_at"`
}

type exportFeedback struct {
	ID           string  `json:"id"`
	PredictionID string  `json:"prediction_id"`
	ActualCovers int     `json:"actual_covers"`
	ErrorPct     float64 `json:"error_pct"`
	Notes        string  `json:"notes,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func handleExportData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patterns, err := deps.Store.ExportPatterns()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting patterns: %v", err)
			return
		}
		predictions, err := deps.Store.ExportPredictions()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting predictions: %v", err)
			return
		}
		feedback, err := deps.Store.ExportFeedback()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting feedback: %v", err)
			return
		}
		events, err := deps.Store.ExportEvents()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting events: %v", err)
			return
		}
		profiles, err := deps.Store.ExportProfiles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting profiles: %v", err)
			return
		}

		outPatterns := make([]exportPattern, 0, len(patterns))
		for _, p := range patterns {
			ep := exportPattern{
				PatternID:        p.ID,
				RestaurantID:     p.RestaurantID,
				Date:             p.Date,
				DayOfWeek:        p.DayOfWeek,
				ServiceType:      p.ServiceType,
				DayType:          p.DayType,
				HotelOccupancy:   p.HotelOccupancy,
				GuestsInHouse:    p.GuestsInHouse,
				ActualCovers:     p.ActualCovers,
				WeatherCondition: p.WeatherCondition,
				WeatherTemp:      p.WeatherTemp,
				IsHoliday:        p.IsHoliday,
				HolidayName:      p.HolidayName,
				Source:           p.Source,
				ContextText:      p.ContextText,
				CreatedAt:        p.CreatedAt.Format(time.RFC3339),
			}
			if p.EventsJSON != "" {
				ep.Events = json.RawMessage(p.EventsJSON)
			}
			outPatterns = append(outPatterns, ep)
		}

		outPredictions := make([]exportPrediction, 0, len(predictions))
		for _, p := range predictions {
			outPredictions = append(outPredictions, exportPrediction{
				PredictionID:    p.ID,
				RestaurantID:    p.RestaurantID,
				ServiceDate:     p.ServiceDate,
				ServiceType:     p.ServiceType,
				PredictedCovers: p.PredictedCovers,
				Confidence:      p.Confidence,
				Method:          p.Method,
				ContextText:     p.ContextText,
				Response:        json.RawMessage(p.ResponseJSON),
				CreatedAt:       p.CreatedAt.Format(time.RFC3339),
			})
		}

		outFeedback := make([]exportFeedback, 0, len(feedback))
		for _, f := range feedback {
			outFeedback = append(outFeedback, exportFeedback{
				ID:           f.ID,
				PredictionID: f.PredictionID,
				ActualCovers: f.ActualCovers,
				ErrorPct:     f.ErrorPct,
				Notes:        f.Notes,
				CreatedAt:    f.CreatedAt.Format(time.RFC3339),
			})
		}

		outEvents := make([]eventRow, 0, len(events))
		for _, e := range events {
			outEvents = append(outEvents, eventRow{
				ID:                 e.ID,
				RestaurantID:       e.RestaurantID,
				Date:               e.Date,
				Type:               e.Type,
				Name:               e.Name,
				Venue:              e.Venue,
				StartTime:          e.StartTime,
				DistanceKM:         e.DistanceKM,
				ExpectedAttendance: e.ExpectedAttendance,
				Impact:             e.Impact,
				Source:             e.Source,
				CreatedAt:          e.CreatedAt.Format(time.RFC3339),
			})
		}

		outProfiles := make(map[string]json.RawMessage, len(profiles))
		for id, raw := range profiles {
			outProfiles[id] = json.RawMessage(raw)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"exported_at": time.Now().UTC().Format(time.RFC3339),
			"patterns":    outPatterns,
			"predictions": outPredictions,
			"feedback":    outFeedback,
			"events":      outEvents,
			"restaurants": outProfiles,
		})
	}
}

func handlePurgeData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "true" {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"confirm=true is required to purge all data")
			return
		}

		// The vector store may live outside the main database, so it is
		// cleared by pattern id before the rows disappear.
		if deps.Vectors != nil {
			patterns, err := deps.Store.ExportPatterns()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "purging data: %v", err)
				return
			}
			if len(patterns) > 0 {
				ids := make([]string, 0, len(patterns))
				for _, p := range patterns {
					ids = append(ids, p.ID)
				}
				if err := deps.Vectors.DeleteByPatterns(r.Context(), ids); err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "clearing vector store: %v", err)
					return
				}
			}
		}

		if err := deps.Store.PurgeAll(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "purging data: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
	}
}
