// Package pipeline orchestrates one demand prediction end to end: service
// context, pattern retrieval, cover estimation, staffing, reasoning, and
// persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/covercast/internal/almanac"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/reasoning"
	"github.com/kalambet/covercast/internal/reranking"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/staffing"
	"github.com/kalambet/covercast/internal/storage"
)

// ErrInvalidRequest marks request errors the caller can fix. The API maps
// it to a 400.
var ErrInvalidRequest = errors.New("invalid request")

var validServiceTypes = map[string]bool{
	"lunch":  true,
	"dinner": true,
	"brunch": true,
}

// Request identifies the service to predict.
type Request struct {
	RestaurantID string `json:"restaurant_id"`
	ServiceDate  string `json:"service_date"`
	ServiceType  string `json:"service_type"`
}

func (r Request) validate() (time.Time, error) {
	if strings.TrimSpace(r.RestaurantID) == "" {
		return time.Time{}, fmt.Errorf("%w: restaurant_id is required", ErrInvalidRequest)
	}
	if !validServiceTypes[r.ServiceType] {
		return time.Time{}, fmt.Errorf("%w: unknown service type %q (expected lunch, dinner, or brunch)",
			ErrInvalidRequest, r.ServiceType)
	}
	date, err := time.Parse("2006-01-02", r.ServiceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: service_date %q is not a YYYY-MM-DD date",
			ErrInvalidRequest, r.ServiceDate)
	}
	return date, nil
}

// Prediction is the full prediction response.
type Prediction struct {
	PredictionID        string                  `json:"prediction_id"`
	ServiceDate         string                  `json:"service_date"`
	ServiceType         string                  `json:"service_type"`
	PredictedCovers     int                     `json:"predicted_covers"`
	Confidence          float64                 `json:"confidence"`
	Reasoning           reasoning.Reasoning     `json:"reasoning"`
	StaffRecommendation staffing.Recommendation `json:"staff_recommendation"`
	AccuracyMetrics     predict.Accuracy        `json:"accuracy_metrics"`
	CreatedAt           string                  `json:"created_at"`
}

// Metadata captures diagnostic information about one pipeline run.
type Metadata struct {
	PatternsFound  int
	VectorSearchMs int64
	ReasoningMs    int64
	Degraded       []string
}

// Coordinator runs the prediction pipeline.
type Coordinator struct {
	predictor   *predict.Predictor
	reranker    reranking.Reranker
	generator   *reasoning.Generator
	restaurants *restaurant.Manager
	store       *storage.Store
	ratios      staffing.Ratios
}

// NewCoordinator creates a Coordinator wired to all pipeline components.
// A nil reranker disables reranking.
func NewCoordinator(
	predictor *predict.Predictor,
	reranker reranking.Reranker,
	generator *reasoning.Generator,
	restaurants *restaurant.Manager,
	store *storage.Store,
	ratios staffing.Ratios,
) *Coordinator {
	if reranker == nil {
		reranker = &reranking.NoOpReranker{}
	}
	return &Coordinator{
		predictor:   predictor,
		reranker:    reranker,
		generator:   generator,
		restaurants: restaurants,
		store:       store,
		ratios:      ratios,
	}
}

// Predict runs the full pipeline on one request:
//  1. Validate the request
//  2. Build the service context (almanac, overridden by stored events)
//  3. Retrieve similar patterns, optionally reranked
//  4. Weighted cover estimate and accuracy proxy
//  5. Staff recommendation against the restaurant profile
//  6. Reasoning (chat model, deterministic fallback)
//  7. Persist and return
//
// Retrieval and reasoning degrade rather than abort; a persistence failure
// is the only error path after validation.
func (c *Coordinator) Predict(ctx context.Context, req Request) (Prediction, Metadata, error) {
	var meta Metadata

	date, err := req.validate()
	if err != nil {
		return Prediction{}, meta, err
	}

	sc := ServiceContextFor(c.store, date)

	searchStart := time.Now()
	ret := c.predictor.FindSimilar(ctx, sc, req.ServiceType)
	patterns := ret.Patterns
	if ret.Degraded {
		meta.Degraded = append(meta.Degraded, "vector_search")
	}
	if !ret.Synthetic {
		// Only real retrievals are reranked; synthetic patterns carry
		// invented similarities.
		reranked, degraded := c.reranker.Rerank(ctx, predict.ContextString(sc, req.ServiceType), patterns)
		if degraded {
			meta.Degraded = append(meta.Degraded, "reranking")
		}
		patterns = reranked
	}
	meta.VectorSearchMs = time.Since(searchStart).Milliseconds()
	meta.PatternsFound = len(patterns)
	slog.Debug("retrieval stage complete",
		"patterns_found", meta.PatternsFound,
		"synthetic", ret.Synthetic,
		"duration_ms", meta.VectorSearchMs)

	est := predict.Calculate(patterns, ret.Synthetic)

	profile, err := c.restaurants.Get(req.RestaurantID)
	if err != nil {
		slog.Warn("restaurant profile unavailable, using defaults",
			"restaurant_id", req.RestaurantID,
			"error", err)
		profile = restaurant.DefaultProfile(req.RestaurantID)
	}
	staff := staffing.Recommend(est.PredictedCovers, c.ratios, profile.Usual())

	reasonStart := time.Now()
	expl, usedFallback := c.generator.Generate(ctx, reasoning.Input{
		PredictedCovers: est.PredictedCovers,
		Confidence:      est.Confidence,
		Patterns:        patterns,
		Context:         sc,
		ServiceType:     req.ServiceType,
	})
	meta.ReasoningMs = time.Since(reasonStart).Milliseconds()
	if usedFallback {
		meta.Degraded = append(meta.Degraded, "reasoning")
	}
	slog.Debug("reasoning stage complete",
		"fallback", usedFallback,
		"duration_ms", meta.ReasoningMs)

	now := time.Now().UTC()
	pred := Prediction{
		PredictionID:        uuid.New().String(),
		ServiceDate:         req.ServiceDate,
		ServiceType:         req.ServiceType,
		PredictedCovers:     est.PredictedCovers,
		Confidence:          est.Confidence,
		Reasoning:           expl,
		StaffRecommendation: staff,
		AccuracyMetrics:     est.Accuracy,
		CreatedAt:           now.Format(time.RFC3339),
	}

	if err := c.persist(req, pred, est.Method, sc, now); err != nil {
		return Prediction{}, meta, fmt.Errorf("persisting prediction: %w", err)
	}

	slog.Info("prediction served",
		"prediction_id", pred.PredictionID,
		"restaurant_id", req.RestaurantID,
		"service_date", req.ServiceDate,
		"service_type", req.ServiceType,
		"covers", pred.PredictedCovers,
		"confidence", pred.Confidence,
		"method", est.Method,
		"degraded", meta.Degraded)

	return pred, meta, nil
}

// ServiceContextFor builds the almanac context for the date, with stored
// events replacing the generated ones when any exist.
func ServiceContextFor(store *storage.Store, date time.Time) almanac.ServiceContext {
	sc := almanac.ContextFor(date)

	stored, err := store.EventsOn(date.Format("2006-01-02"))
	if err != nil {
		slog.Warn("stored events lookup failed, keeping generated events", "error", err)
		return sc
	}
	if len(stored) == 0 {
		return sc
	}

	events := make([]almanac.Event, 0, len(stored))
	for _, ev := range stored {
		events = append(events, almanac.Event{
			Type:               ev.Type,
			Name:               ev.Name,
			DistanceKM:         ev.DistanceKM,
			ExpectedAttendance: ev.ExpectedAttendance,
			StartTime:          ev.StartTime,
			Impact:             ev.Impact,
		})
	}
	sc.Events = events
	return sc
}

func (c *Coordinator) persist(req Request, pred Prediction, method string, sc almanac.ServiceContext, now time.Time) error {
	response, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return c.store.SavePrediction(storage.Prediction{
		ID:              pred.PredictionID,
		RestaurantID:    req.RestaurantID,
		ServiceDate:     req.ServiceDate,
		ServiceType:     req.ServiceType,
		PredictedCovers: pred.PredictedCovers,
		Confidence:      pred.Confidence,
		Method:          method,
		ContextText:     predict.ContextString(sc, req.ServiceType),
		ResponseJSON:    string(response),
		CreatedAt:       now,
	})
}
