package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kalambet/covercast/internal/storage"
)

// Pattern is a historical service retrieved as evidence for a prediction.
type Pattern struct {
	PatternID    string   `json:"pattern_id"`
	Date         string   `json:"date"`
	EventType    string   `json:"event_type"`
	ActualCovers int      `json:"actual_covers"`
	Similarity   float64  `json:"similarity"`
	Metadata     Metadata `json:"metadata"`
}

// Metadata carries the secondary attributes of a retrieved pattern.
type Metadata struct {
	DayOfWeek string  `json:"day_of_week"`
	Weather   string  `json:"weather"`
	Events    int     `json:"events"`
	Holiday   *string `json:"holiday"`
	Source    string  `json:"source"`
}

type patternEvent struct {
	Type string `json:"type"`
}

// FromStored converts a stored pattern plus its similarity score into the
// response shape.
func FromStored(p storage.Pattern, score float64) Pattern {
	var events []patternEvent
	if p.EventsJSON != "" {
		// Malformed event JSON degrades to "no events", never to an error.
		_ = json.Unmarshal([]byte(p.EventsJSON), &events)
	}
	types := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Type == "" {
			types = append(types, "Event")
			continue
		}
		types = append(types, ev.Type)
	}

	var holiday *string
	if p.IsHoliday && p.HolidayName != "" {
		name := p.HolidayName
		holiday = &name
	}

	source := p.Source
	if source == "" {
		source = "store"
	}

	return Pattern{
		PatternID:    p.ID,
		Date:         p.Date,
		EventType:    describeStored(types, p),
		ActualCovers: p.ActualCovers,
		Similarity:   round2(score),
		Metadata: Metadata{
			DayOfWeek: p.DayOfWeek,
			Weather:   p.WeatherCondition,
			Events:    len(events),
			Holiday:   holiday,
			Source:    source,
		},
	}
}

func describeStored(eventTypes []string, p storage.Pattern) string {
	switch {
	case len(eventTypes) == 1:
		return eventTypes[0] + " nearby"
	case len(eventTypes) > 1:
		desc := strings.Join(eventTypes[:2], ", ") + " nearby"
		if extra := len(eventTypes) - 2; extra > 0 {
			desc += fmt.Sprintf(" (+%d more)", extra)
		}
		return desc
	case p.IsHoliday:
		name := p.HolidayName
		if name == "" {
			name = "Holiday"
		}
		return name + " service"
	default:
		dayType := p.DayType
		if dayType == "" {
			dayType = "weekday"
		}
		return "Regular " + dayType + " service"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
