package predict

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/covercast/internal/almanac"
)

// ContextString renders the embeddable description of a service. The format
// must stay byte-identical to the one used when indexing patterns, and must
// not mention actual covers: that is the value being predicted, not a
// feature.
func ContextString(sc almanac.ServiceContext, serviceType string) string {
	eventTypes := make([]string, 0, len(sc.Events))
	for _, ev := range sc.Events {
		eventTypes = append(eventTypes, ev.Type)
	}
	eventsLine := "None"
	if len(eventTypes) > 0 {
		eventsLine = strings.Join(eventTypes, ", ")
	}

	holidayLine := "None"
	if sc.IsHoliday && sc.HolidayName != "" {
		holidayLine = sc.HolidayName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s (%s)\n", sc.Date.Format("2006-01-02"), sc.DayOfWeek)
	fmt.Fprintf(&b, "Service: %s\n", serviceType)
	fmt.Fprintf(&b, "Day type: %s\n", sc.DayType)
	fmt.Fprintf(&b, "Hotel occupancy: %s\n", strconv.FormatFloat(sc.HotelOccupancy, 'g', -1, 64))
	fmt.Fprintf(&b, "Guests in house: %d\n", sc.GuestsInHouse)
	fmt.Fprintf(&b, "Weather: %s, %d°C\n", sc.Weather.Condition, sc.Weather.Temperature)
	fmt.Fprintf(&b, "Events nearby: %s\n", eventsLine)
	fmt.Fprintf(&b, "Holiday: %s", holidayLine)
	return b.String()
}

// SearchServiceType maps a requested service type to the value stored with
// indexed patterns. Brunch services match breakfast patterns, the closest
// seeded service.
func SearchServiceType(serviceType string) string {
	if serviceType == "brunch" {
		return "breakfast"
	}
	return serviceType
}
