// Package almanac supplies the deterministic service-day context used for
// demand prediction: day classification, public holidays, and mock event,
// weather, and hotel occupancy data. Mock generators are seeded by the day
// ordinal so the same date always yields the same context, which keeps query
// embeddings reproducible. Stored events and live PMS feeds override these
// mocks upstream when available.
package almanac

import (
	"math"
	"math/rand"
	"time"
)

// Day types classify service dates for occupancy and demand heuristics.
const (
	DayTypeWeekend = "weekend"
	DayTypeFriday  = "friday"
	DayTypeWeekday = "weekday"
)

// Event is a nearby happening that can push covers up.
type Event struct {
	Type               string  `json:"type"`
	Name               string  `json:"name"`
	DistanceKM         float64 `json:"distance_km"`
	ExpectedAttendance int     `json:"expected_attendance"`
	StartTime          string  `json:"start_time"`
	Impact             string  `json:"impact"`
}

// Weather is the forecast snapshot for a service date.
type Weather struct {
	Condition     string `json:"condition"`
	Temperature   int    `json:"temperature"`
	Precipitation int    `json:"precipitation"`
	WindSpeed     int    `json:"wind_speed"`
}

// ServiceContext aggregates everything known about a service date.
type ServiceContext struct {
	Date           time.Time
	DayOfWeek      string
	DayType        string
	IsHoliday      bool
	HolidayName    string
	Events         []Event
	Weather        Weather
	HotelOccupancy float64
	GuestsInHouse  int
}

// holidays maps (month, day) to the holiday name.
var holidays = map[[2]int]string{
	{12, 24}: "Christmas Eve",
	{12, 25}: "Christmas",
	{12, 31}: "New Year's Eve",
	{1, 1}:   "New Year's Day",
	{7, 14}:  "Bastille Day",
	{11, 11}: "Armistice Day",
	{5, 1}:   "Labor Day",
}

// Holiday returns the holiday name for the date, or "" when it is none.
func Holiday(date time.Time) string {
	return holidays[[2]int{int(date.Month()), date.Day()}]
}

// DayType classifies a date as weekend, friday, or weekday.
func DayType(date time.Time) string {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return DayTypeWeekend
	case time.Friday:
		return DayTypeFriday
	default:
		return DayTypeWeekday
	}
}

// Ordinal returns the number of days since the Unix epoch for the date,
// ignoring any time-of-day component. It is the seed base for every
// deterministic generator keyed to a service date.
func Ordinal(date time.Time) int64 {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Unix() / 86400
}

// eventCatalog describes the kinds of mock events and their parameter ranges.
type eventKind struct {
	Type        string
	Names       []string
	MinAttend   int
	MaxAttend   int
	MinDistance float64
	MaxDistance float64
	Impact      string
}

var eventCatalog = []eventKind{
	{
		Type:        "Concert",
		Names:       []string{"Coldplay", "Taylor Swift", "Ed Sheeran", "Beyonce"},
		MinAttend:   30000,
		MaxAttend:   60000,
		MinDistance: 1.5,
		MaxDistance: 5.0,
		Impact:      "high",
	},
	{
		Type:        "Sports Match",
		Names:       []string{"PSG vs Marseille", "France vs England", "Champions League Final"},
		MinAttend:   40000,
		MaxAttend:   80000,
		MinDistance: 2.0,
		MaxDistance: 6.0,
		Impact:      "high",
	},
	{
		Type:        "Theater Show",
		Names:       []string{"Hamilton", "Les Miserables", "Phantom of the Opera"},
		MinAttend:   1000,
		MaxAttend:   3000,
		MinDistance: 0.5,
		MaxDistance: 2.0,
		Impact:      "medium",
	},
	{
		Type:        "Conference",
		Names:       []string{"Tech Summit", "Marketing Expo", "Healthcare Forum"},
		MinAttend:   500,
		MaxAttend:   2000,
		MinDistance: 0.2,
		MaxDistance: 1.5,
		Impact:      "medium",
	},
}

func (k eventKind) startTime() string {
	if k.Type == "Concert" || k.Type == "Theater Show" {
		return "20:00"
	}
	return "19:00"
}

func randInt(r *rand.Rand, lo, hi int) int {
	return lo + r.Intn(hi-lo+1)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Events generates the mock events for a date. Weekends carry a 70% event
// probability (30% otherwise) and a 20% chance of a second, later event.
// Seeded by the day ordinal, so repeated calls agree.
func Events(date time.Time) []Event {
	r := rand.New(rand.NewSource(Ordinal(date)))
	isWeekend := DayType(date) == DayTypeWeekend

	probability := 0.3
	if isWeekend {
		probability = 0.7
	}
	if r.Float64() >= probability {
		return nil
	}

	first := r.Intn(len(eventCatalog))
	events := []Event{makeEvent(r, eventCatalog[first], eventCatalog[first].startTime())}

	if isWeekend && r.Float64() < 0.2 {
		second := r.Intn(len(eventCatalog) - 1)
		if second >= first {
			second++
		}
		events = append(events, makeEvent(r, eventCatalog[second], "21:00"))
	}

	return events
}

func makeEvent(r *rand.Rand, kind eventKind, startTime string) Event {
	return Event{
		Type:               kind.Type,
		Name:               kind.Names[r.Intn(len(kind.Names))],
		DistanceKM:         roundTo(kind.MinDistance+r.Float64()*(kind.MaxDistance-kind.MinDistance), 1),
		ExpectedAttendance: randInt(r, kind.MinAttend, kind.MaxAttend),
		StartTime:          startTime,
		Impact:             kind.Impact,
	}
}

// weatherConditions pairs each condition with its probability mass.
var weatherConditions = []struct {
	Condition string
	Prob      float64
}{
	{"Clear", 0.40},
	{"Partly Cloudy", 0.30},
	{"Cloudy", 0.15},
	{"Rain", 0.10},
	{"Heavy Rain", 0.03},
	{"Snow", 0.02},
}

// Forecast generates the mock weather for a date. Seeded by the day ordinal
// offset from the events seed so the two streams stay independent.
func Forecast(date time.Time) Weather {
	r := rand.New(rand.NewSource(Ordinal(date) + 1000))

	roll := r.Float64()
	cumulative := 0.0
	condition := "Clear"
	for _, c := range weatherConditions {
		cumulative += c.Prob
		if roll <= cumulative {
			condition = c.Condition
			break
		}
	}

	var lo, hi int
	switch date.Month() {
	case time.December, time.January, time.February:
		lo, hi = 0, 10
	case time.March, time.April, time.May:
		lo, hi = 10, 20
	case time.June, time.July, time.August:
		lo, hi = 20, 30
	default:
		lo, hi = 10, 20
	}
	temperature := randInt(r, lo, hi)

	var precipitation int
	switch condition {
	case "Partly Cloudy":
		precipitation = randInt(r, 0, 10)
	case "Cloudy":
		precipitation = randInt(r, 10, 30)
	case "Rain":
		precipitation = randInt(r, 40, 70)
	case "Heavy Rain":
		precipitation = randInt(r, 70, 100)
	case "Snow":
		precipitation = randInt(r, 30, 60)
	}

	return Weather{
		Condition:     condition,
		Temperature:   temperature,
		Precipitation: precipitation,
		WindSpeed:     randInt(r, 5, 25),
	}
}

// Occupancy estimates hotel occupancy and guests in house for a day type.
// Values mirror the distribution the pattern library was derived with.
func Occupancy(dayType string, isHoliday bool) (float64, int) {
	if dayType == DayTypeWeekend || isHoliday {
		return 0.92, 240
	}
	if dayType == DayTypeFriday {
		return 0.88, 200
	}
	return 0.78, 175
}

// ContextFor assembles the full service context for a date.
func ContextFor(date time.Time) ServiceContext {
	dayType := DayType(date)
	holidayName := Holiday(date)
	isHoliday := holidayName != ""
	occupancy, guests := Occupancy(dayType, isHoliday)

	return ServiceContext{
		Date:           date,
		DayOfWeek:      date.Weekday().String(),
		DayType:        dayType,
		IsHoliday:      isHoliday,
		HolidayName:    holidayName,
		Events:         Events(date),
		Weather:        Forecast(date),
		HotelOccupancy: occupancy,
		GuestsInHouse:  guests,
	}
}
