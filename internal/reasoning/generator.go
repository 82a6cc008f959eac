// Package reasoning turns a numeric prediction into a manager-readable
// explanation using the configured chat model, with a deterministic fallback
// so a prediction is never blocked on the LLM.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/covercast/internal/almanac"
	"github.com/kalambet/covercast/internal/engine"
	"github.com/kalambet/covercast/internal/predict"
)

const (
	reasoningTimeout       = 15 * time.Second
	defaultMaxPromptTokens = 4000
)

// Input is everything the generator needs to explain one prediction.
type Input struct {
	PredictedCovers int
	Confidence      float64
	Patterns        []predict.Pattern
	Context         almanac.ServiceContext
	ServiceType     string
}

// Reasoning is the explanation attached to a prediction response.
type Reasoning struct {
	Summary           string            `json:"summary"`
	PatternsUsed      []predict.Pattern `json:"patterns_used"`
	ConfidenceFactors []string          `json:"confidence_factors"`
}

// Generator produces reasoning via the chat model.
type Generator struct {
	engine    engine.Engine
	model     string
	maxTokens int
}

// NewGenerator creates a Generator. maxTokens <= 0 selects the default
// prompt budget of 4000 tokens.
func NewGenerator(eng engine.Engine, model string, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = defaultMaxPromptTokens
	}
	return &Generator{engine: eng, model: model, maxTokens: maxTokens}
}

// Generate explains the prediction. It never fails: on engine errors,
// timeouts, or unusable responses it falls back to a deterministic summary.
// The boolean reports whether the fallback was used.
func (g *Generator) Generate(ctx context.Context, in Input) (Reasoning, bool) {
	messages, dropped := BuildPrompt(in, g.maxTokens)
	if dropped > 0 {
		slog.Debug("reasoning prompt over budget", "dropped_patterns", dropped)
	}

	ctx, cancel := context.WithTimeout(ctx, reasoningTimeout)
	defer cancel()

	raw, err := g.engine.Chat(ctx, g.model, messages, reasoningSchema())
	if err != nil {
		slog.Warn("reasoning chat failed, using deterministic fallback", "error", err)
		return Fallback(in), true
	}

	var out struct {
		Summary           string   `json:"summary"`
		ConfidenceFactors []string `json:"confidence_factors"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out.Summary == "" {
		slog.Warn("reasoning response unusable, using deterministic fallback",
			"error", err,
			"response", raw)
		return Fallback(in), true
	}

	factors := out.ConfidenceFactors
	if len(factors) == 0 {
		factors = deriveFactors(in)
	}
	return Reasoning{
		Summary:           out.Summary,
		PatternsUsed:      patternsUsed(in.Patterns),
		ConfidenceFactors: factors,
	}, false
}

// Fallback is the deterministic explanation used when the chat model is
// unavailable.
func Fallback(in Input) Reasoning {
	summary := fmt.Sprintf("%d%% confidence based on %d similar %s %s services",
		pct(in.Confidence), len(in.Patterns), in.Context.DayOfWeek, in.ServiceType)
	return Reasoning{
		Summary:           summary,
		PatternsUsed:      patternsUsed(in.Patterns),
		ConfidenceFactors: deriveFactors(in),
	}
}

// deriveFactors reads confidence factors directly off the retrieval result
// and service context.
func deriveFactors(in Input) []string {
	factors := []string{}

	if len(in.Patterns) > 0 {
		var sum float64
		for _, p := range in.Patterns {
			sum += p.Similarity
		}
		if sum/float64(len(in.Patterns)) >= 0.85 {
			factors = append(factors, "High pattern similarity")
		}
		for _, p := range in.Patterns {
			if p.Metadata.DayOfWeek == in.Context.DayOfWeek {
				factors = append(factors, "Similar day of week")
				break
			}
		}
	}

	seen := map[string]bool{}
	for _, ev := range in.Context.Events {
		if seen[ev.Type] {
			continue
		}
		seen[ev.Type] = true
		factors = append(factors, "Nearby event: "+ev.Type)
	}

	if in.Context.IsHoliday && in.Context.HolidayName != "" {
		factors = append(factors, "Holiday: "+in.Context.HolidayName)
	}

	switch in.Context.Weather.Condition {
	case "Rain", "Heavy Rain", "Snow":
		factors = append(factors, "Adverse weather expected")
	}

	if len(in.Patterns) < 3 {
		factors = append(factors, "Limited pattern history")
	}

	return factors
}

func patternsUsed(patterns []predict.Pattern) []predict.Pattern {
	if patterns == nil {
		return []predict.Pattern{}
	}
	return patterns
}

func reasoningSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"summary": {
				Type:        "string",
				Description: "One sentence explaining the prediction, referencing the confidence percentage",
			},
			"confidence_factors": {
				Type:        "array",
				Description: "Short phrases naming the factors behind the confidence level",
				Items:       &engine.SchemaProperty{Type: "string"},
			},
		},
		Required: []string{"summary", "confidence_factors"},
	}
}
