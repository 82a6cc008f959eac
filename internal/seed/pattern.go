package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/covercast/internal/almanac"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/storage"
)

// Pattern is one derived historical service in the import wire format. The
// seed command produces these and posts them to the pattern import endpoint;
// the server turns them into stored patterns and queues embedding jobs.
type Pattern struct {
	PatternID      string  `json:"pattern_id"`
	Date           string  `json:"date"`
	DayOfWeek      string  `json:"day_of_week"`
	ServiceType    string  `json:"service_type"`
	HotelType      string  `json:"hotel_type"`
	HotelOccupancy float64 `json:"hotel_occupancy"`
	GuestsInHouse  int     `json:"guests_in_house"`
	ActualCovers   int     `json:"actual_covers"`
	MealPlan       string  `json:"meal_plan_dominant"`
	ADR            float64 `json:"adr"`
	Weather        Weather `json:"weather"`
	Events         []Event `json:"events"`
	IsHoliday      bool    `json:"is_holiday"`
	HolidayName    *string `json:"holiday_name"`
	DayType        string  `json:"day_type"`
}

type Weather struct {
	Condition   string `json:"condition"`
	Temperature int    `json:"temperature"`
	Humidity    int    `json:"humidity"`
}

type Event struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	DistanceKM float64 `json:"distance_km"`
	Attendance int     `json:"attendance"`
}

var validServiceTypes = map[string]bool{
	"breakfast": true,
	"lunch":     true,
	"dinner":    true,
}

// Validate checks the fields an import cannot repair itself.
func (p Pattern) Validate() error {
	if p.PatternID == "" {
		return errors.New("pattern_id is required")
	}
	if _, err := time.Parse("2006-01-02", p.Date); err != nil {
		return fmt.Errorf("date %q is not YYYY-MM-DD", p.Date)
	}
	if !validServiceTypes[p.ServiceType] {
		return fmt.Errorf("service_type %q must be breakfast, lunch or dinner", p.ServiceType)
	}
	if p.ActualCovers <= 0 {
		return errors.New("actual_covers must be positive")
	}
	return nil
}

// ToStored converts the wire pattern into a storage row, deriving the day
// fields from the date when the import left them empty and rendering the
// embeddable context text. The embedding itself is left to the worker.
func (p Pattern) ToStored(restaurantID string) (storage.Pattern, error) {
	date, err := time.Parse("2006-01-02", p.Date)
	if err != nil {
		return storage.Pattern{}, fmt.Errorf("date %q is not YYYY-MM-DD", p.Date)
	}

	dayOfWeek := p.DayOfWeek
	if dayOfWeek == "" {
		dayOfWeek = date.Weekday().String()
	}
	dayType := p.DayType
	if dayType == "" {
		dayType = almanac.DayType(date)
	}

	holidayName := ""
	if p.IsHoliday && p.HolidayName != nil {
		holidayName = *p.HolidayName
	}

	condition := p.Weather.Condition
	if condition == "" {
		condition = "Unknown"
	}

	events := make([]almanac.Event, len(p.Events))
	for i, ev := range p.Events {
		events[i] = almanac.Event{
			Type:               ev.Type,
			Name:               ev.Name,
			DistanceKM:         ev.DistanceKM,
			ExpectedAttendance: ev.Attendance,
		}
	}

	sc := almanac.ServiceContext{
		Date:           date,
		DayOfWeek:      dayOfWeek,
		DayType:        dayType,
		IsHoliday:      p.IsHoliday,
		HolidayName:    holidayName,
		Events:         events,
		Weather:        almanac.Weather{Condition: condition, Temperature: p.Weather.Temperature},
		HotelOccupancy: p.HotelOccupancy,
		GuestsInHouse:  p.GuestsInHouse,
	}

	eventsJSON := "[]"
	if len(p.Events) > 0 {
		raw, err := json.Marshal(p.Events)
		if err != nil {
			return storage.Pattern{}, fmt.Errorf("encoding events: %w", err)
		}
		eventsJSON = string(raw)
	}

	return storage.Pattern{
		ID:               p.PatternID,
		RestaurantID:     restaurantID,
		Date:             p.Date,
		DayOfWeek:        dayOfWeek,
		ServiceType:      p.ServiceType,
		DayType:          dayType,
		HotelOccupancy:   p.HotelOccupancy,
		GuestsInHouse:    p.GuestsInHouse,
		ActualCovers:     p.ActualCovers,
		WeatherCondition: condition,
		WeatherTemp:      p.Weather.Temperature,
		EventsJSON:       eventsJSON,
		IsHoliday:        p.IsHoliday,
		HolidayName:      holidayName,
		Source:           "dataset",
		ContextText:      predict.ContextString(sc, p.ServiceType),
	}, nil
}
