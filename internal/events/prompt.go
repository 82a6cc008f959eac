package events

import (
	"github.com/kalambet/covercast/internal/engine"
)

const systemPrompt = `You extract local events from documents for a restaurant demand forecasting system.
List every event the document describes: concerts, festivals, conferences, sports matches, markets, private functions.
Respond with ONLY the requested JSON object, no prose.`

// maxDocChars caps the document text included in the prompt. Function sheets
// fit easily; scraped event pages can run long.
const maxDocChars = 8000

// BuildPrompt renders the extraction conversation for a document's text.
func BuildPrompt(text string) []engine.Message {
	if len(text) > maxDocChars {
		text = text[:maxDocChars] + "\n[truncated]"
	}
	user := "Document:\n" + text + "\n\n" +
		"Extract every event with: name, type (Concert, Festival, Conference, ...), " +
		"date (YYYY-MM-DD), start_time (HH:MM, 24h), venue, distance_km from the restaurant " +
		"(0 if not stated), expected_attendance (0 if not stated), and impact (high, medium or low)."

	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

func extractionSchema() *engine.Schema {
	event := engine.SchemaProperty{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"name":                {Type: "string", Description: "Event name"},
			"type":                {Type: "string", Description: "Event category, e.g. Concert, Festival, Conference"},
			"date":                {Type: "string", Description: "Event date as YYYY-MM-DD, empty if not stated"},
			"start_time":          {Type: "string", Description: "Start time as HH:MM, empty if not stated"},
			"venue":               {Type: "string", Description: "Venue name"},
			"distance_km":         {Type: "number", Description: "Distance from the restaurant in km, 0 if unknown"},
			"expected_attendance": {Type: "number", Description: "Expected attendance, 0 if unknown"},
			"impact":              {Type: "string", Description: "Expected demand impact: high, medium or low"},
		},
		Required: []string{"name", "type", "date"},
	}

	return &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"events": {Type: "array", Description: "Events described in the document", Items: &event},
		},
		Required: []string{"events"},
	}
}
