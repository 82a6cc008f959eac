package reasoning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/covercast/internal/engine"
	"github.com/kalambet/covercast/internal/predict"
)

const systemPrompt = `You are a restaurant operations analyst. Given a demand prediction and the historical patterns supporting it, explain the prediction for a manager planning staffing. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- "summary" is one sentence that references the confidence percentage and the dominant demand drivers.
- "confidence_factors" lists short phrases, one per factor that strengthens or weakens the prediction.
- Ground every statement in the provided context and patterns. Never invent events, weather, or holidays.`

// BuildPrompt constructs the chat messages for reasoning generation, keeping
// the total prompt within maxTokens. Pattern lines are dropped lowest
// similarity first when over budget; the second return value is how many
// were dropped.
func BuildPrompt(in Input, maxTokens int) ([]engine.Message, int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Prediction: %d covers for %s on %s (%s), confidence %d%%.\n\n",
		in.PredictedCovers,
		in.ServiceType,
		in.Context.Date.Format("2006-01-02"),
		in.Context.DayOfWeek,
		pct(in.Confidence))
	sb.WriteString("Service context:\n")
	sb.WriteString(predict.ContextString(in.Context, in.ServiceType))
	sb.WriteString("\n\nSimilar past services:\n")

	sorted := make([]predict.Pattern, len(in.Patterns))
	copy(sorted, in.Patterns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Similarity > sorted[j].Similarity
	})

	remaining := maxTokens - EstimateTokens(systemPrompt) - EstimateTokens(sb.String())
	kept := 0
	for _, p := range sorted {
		line := fmt.Sprintf("- %s: %s, %d covers (similarity %.2f)\n",
			p.Date, p.EventType, p.ActualCovers, p.Similarity)
		tokens := EstimateTokens(line)
		if tokens > remaining {
			break
		}
		sb.WriteString(line)
		remaining -= tokens
		kept++
	}
	if kept == 0 {
		sb.WriteString("(none)\n")
	}

	messages := []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
	return messages, len(sorted) - kept
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func pct(confidence float64) int {
	return int(confidence*100 + 0.5)
}
