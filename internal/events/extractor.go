// Package events pulls structured event fields out of imported document
// text. Extraction failures are returned as errors so the import job can
// retry with backoff.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/covercast/internal/engine"
)

const extractionTimeout = 10 * time.Second

// Extracted is one event pulled out of a document.
type Extracted struct {
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	Date               string  `json:"date"`
	StartTime          string  `json:"start_time"`
	Venue              string  `json:"venue"`
	DistanceKM         float64 `json:"distance_km"`
	ExpectedAttendance int     `json:"expected_attendance"`
	Impact             string  `json:"impact"`
}

var validImpacts = map[string]bool{"high": true, "medium": true, "low": true}

// Extractor turns document text into structured events with the LLM.
type Extractor struct {
	engine engine.Engine
	model  string
}

func NewExtractor(eng engine.Engine, model string) *Extractor {
	return &Extractor{engine: eng, model: model}
}

// Extract returns the events described in the text. dateHint (YYYY-MM-DD,
// may be empty) fills in events whose date the document does not state; an
// event left with no date at all is an error, since a dateless event can
// never influence a prediction.
func (e *Extractor) Extract(ctx context.Context, text, dateHint string) ([]Extracted, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	raw, err := e.engine.Chat(ctx, e.model, BuildPrompt(text), extractionSchema())
	if err != nil {
		return nil, fmt.Errorf("event extraction chat: %w", err)
	}

	var parsed struct {
		Events []Extracted `json:"events"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling extracted events: %w", err)
	}

	out := make([]Extracted, 0, len(parsed.Events))
	for _, ev := range parsed.Events {
		normalized, err := normalize(ev, dateHint)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

// normalize applies field defaults and resolves the event date against the
// hint.
func normalize(ev Extracted, dateHint string) (Extracted, error) {
	if ev.Type == "" {
		ev.Type = "Event"
	}
	if ev.Name == "" {
		ev.Name = ev.Type
	}
	if !validImpacts[ev.Impact] {
		ev.Impact = "medium"
	}
	if ev.DistanceKM < 0 {
		ev.DistanceKM = 0
	}
	if ev.ExpectedAttendance < 0 {
		ev.ExpectedAttendance = 0
	}

	if _, err := time.Parse("2006-01-02", ev.Date); err != nil {
		ev.Date = dateHint
	}
	if ev.Date == "" {
		return Extracted{}, fmt.Errorf("event %q has no date and the import has no date hint", ev.Name)
	}
	return ev, nil
}
