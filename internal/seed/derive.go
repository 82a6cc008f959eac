package seed

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/kalambet/covercast/internal/almanac"
)

// Share of guests that dine at the hotel restaurant, by meal plan.
var mealPlanFactors = map[string]float64{
	"BB":        0.25, // bed & breakfast: mostly breakfast, some dinner
	"HB":        0.70, // half board: breakfast + dinner included
	"FB":        1.00, // full board: all meals included
	"SC":        0.15, // self catering: occasional dining
	"Undefined": 0.20,
}

const unknownMealFactor = 0.20

var dayTypeFactors = map[string]float64{
	almanac.DayTypeWeekend: 1.20,
	almanac.DayTypeFriday:  1.15,
	almanac.DayTypeWeekday: 1.00,
}

// Share of the day's covers served at each service, in derivation order.
var serviceSplit = []struct {
	name  string
	share float64
}{
	{"breakfast", 0.35},
	{"lunch", 0.25},
	{"dinner", 0.40},
}

// monthWeather drives the simulated historical weather: three candidate
// conditions with pick weights and a temperature band per month.
var monthWeather = map[time.Month]struct {
	conditions [3]string
	weights    [3]float64
	tempLo     int
	tempHi     int
}{
	time.January:   {[3]string{"Clear", "Cloudy", "Rain"}, [3]float64{0.3, 0.4, 0.3}, 5, 12},
	time.February:  {[3]string{"Clear", "Cloudy", "Rain"}, [3]float64{0.3, 0.4, 0.3}, 6, 14},
	time.March:     {[3]string{"Clear", "Partly Cloudy", "Rain"}, [3]float64{0.4, 0.4, 0.2}, 10, 18},
	time.April:     {[3]string{"Clear", "Partly Cloudy", "Rain"}, [3]float64{0.5, 0.3, 0.2}, 12, 20},
	time.May:       {[3]string{"Clear", "Partly Cloudy", "Cloudy"}, [3]float64{0.6, 0.3, 0.1}, 16, 24},
	time.June:      {[3]string{"Clear", "Partly Cloudy", "Hot"}, [3]float64{0.7, 0.2, 0.1}, 20, 30},
	time.July:      {[3]string{"Clear", "Hot", "Partly Cloudy"}, [3]float64{0.6, 0.3, 0.1}, 22, 35},
	time.August:    {[3]string{"Clear", "Hot", "Partly Cloudy"}, [3]float64{0.6, 0.3, 0.1}, 22, 34},
	time.September: {[3]string{"Clear", "Partly Cloudy", "Rain"}, [3]float64{0.5, 0.3, 0.2}, 18, 28},
	time.October:   {[3]string{"Clear", "Cloudy", "Rain"}, [3]float64{0.4, 0.3, 0.3}, 14, 22},
	time.November:  {[3]string{"Cloudy", "Rain", "Clear"}, [3]float64{0.4, 0.3, 0.3}, 8, 16},
	time.December:  {[3]string{"Cloudy", "Rain", "Clear"}, [3]float64{0.4, 0.4, 0.2}, 5, 12},
}

// eventChances drives the simulated events: one event at most per day, with
// probability and candidate types by day type.
var eventChances = map[string]struct {
	probability float64
	types       []string
}{
	almanac.DayTypeWeekend: {0.4, []string{"Concert", "Sports Match", "Festival", "Market"}},
	almanac.DayTypeFriday:  {0.3, []string{"Concert", "Theater", "Sports Match"}},
	almanac.DayTypeWeekday: {0.15, []string{"Conference", "Business Event", "Theater"}},
}

// weatherFor generates deterministic weather for a derivation date. The seed
// is the date ordinal, so reruns produce identical patterns.
func weatherFor(month time.Month, seed int64) Weather {
	r := rand.New(rand.NewSource(seed))
	cfg := monthWeather[month]

	roll := r.Float64()
	condition := cfg.conditions[len(cfg.conditions)-1]
	acc := 0.0
	for i, w := range cfg.weights {
		acc += w
		if roll < acc {
			condition = cfg.conditions[i]
			break
		}
	}

	return Weather{
		Condition:   condition,
		Temperature: randInt(r, cfg.tempLo, cfg.tempHi),
		Humidity:    randInt(r, 40, 80),
	}
}

// eventsFor generates at most one deterministic event for a derivation date.
func eventsFor(dayType string, seed int64) []Event {
	r := rand.New(rand.NewSource(seed))
	cfg := eventChances[dayType]

	if r.Float64() > cfg.probability {
		return nil
	}

	kind := cfg.types[r.Intn(len(cfg.types))]
	return []Event{{
		Type:       kind,
		Name:       kind + " Event",
		DistanceKM: roundTo(0.5+r.Float64()*4.5, 1),
		Attendance: randInt(r, 500, 5000),
	}}
}

// deriveCovers turns a service's guest share into covers by stacking the
// meal plan, day type, holiday, weather and event factors. Result is floored
// at 10.
func deriveCovers(guests int, mealPlan, dayType string, isHoliday bool, holidayName string, weather Weather, events []Event) int {
	factor, ok := mealPlanFactors[mealPlan]
	if !ok {
		factor = unknownMealFactor
	}
	covers := float64(guests) * factor * dayTypeFactors[dayType]

	if isHoliday {
		switch holidayName {
		case "Christmas Eve", "Christmas":
			covers *= 0.4
		case "New Year's Eve":
			covers *= 1.8
		case "New Year's Day":
			covers *= 0.5
		default:
			covers *= 0.7
		}
	}

	switch {
	case weather.Condition == "Rain":
		covers *= 0.92
	case weather.Condition == "Heavy Rain":
		covers *= 0.85
	case weather.Condition == "Hot" && weather.Temperature > 32:
		covers *= 0.95
	}

	for _, ev := range events {
		if ev.DistanceKM < 2 {
			covers *= 1.15
		} else if ev.DistanceKM < 5 {
			covers *= 1.08
		}
	}

	n := int(math.Round(covers))
	if n < 10 {
		return 10
	}
	return n
}

// Derive reads the hotel bookings CSV and produces F&B demand patterns:
// bookings are aggregated per arrival date, split across the three services,
// and adjusted by the factor tables above. Services deriving fewer than 15
// covers are dropped. When more than max patterns result, a stratified
// sample capped at max/9 per (service, day type) stratum is kept.
func Derive(r io.Reader, max int) ([]Pattern, Stats, error) {
	days, stats, err := readBookings(r)
	if err != nil {
		return nil, stats, err
	}
	stats.Days = len(days)

	var patterns []Pattern
	for _, day := range days {
		seed := almanac.Ordinal(day.date)
		dayType := almanac.DayType(day.date)
		weather := weatherFor(day.date.Month(), seed)
		events := eventsFor(dayType, seed)
		holidayName := almanac.Holiday(day.date)
		isHoliday := holidayName != ""
		meal := day.modalMeal()
		adr := day.meanADR()
		occupancy := roundTo(math.Min(1.0, float64(day.guests)/200), 2)

		for _, svc := range serviceSplit {
			guests := int(float64(day.guests) * svc.share)
			covers := deriveCovers(guests, meal, dayType, isHoliday, holidayName, weather, events)
			if covers < 15 {
				continue
			}

			var holiday *string
			if isHoliday {
				name := holidayName
				holiday = &name
			}

			patterns = append(patterns, Pattern{
				PatternID:      fmt.Sprintf("pat_%05d", len(patterns)+1),
				Date:           day.date.Format("2006-01-02"),
				DayOfWeek:      day.date.Weekday().String(),
				ServiceType:    svc.name,
				HotelType:      day.hotel,
				HotelOccupancy: occupancy,
				GuestsInHouse:  day.guests,
				ActualCovers:   covers,
				MealPlan:       meal,
				ADR:            adr,
				Weather:        weather,
				Events:         events,
				IsHoliday:      isHoliday,
				HolidayName:    holiday,
				DayType:        dayType,
			})
		}
	}
	stats.Derived = len(patterns)

	patterns = capStratified(patterns, max)
	stats.Kept = len(patterns)
	return patterns, stats, nil
}

// capStratified samples down to roughly max patterns, splitting the quota
// evenly across the nine (service, day type) strata so quiet weekday
// breakfasts are not drowned out by busy weekend dinners. The shuffle seed
// is fixed, so the sample is stable across runs. Output stays in date order.
func capStratified(patterns []Pattern, max int) []Pattern {
	if max <= 0 || len(patterns) <= max {
		return patterns
	}
	perStratum := max / 9
	if perStratum < 1 {
		perStratum = 1
	}

	type stratum struct{ service, dayType string }
	groups := make(map[stratum][]int)
	for i, p := range patterns {
		key := stratum{p.ServiceType, p.DayType}
		groups[key] = append(groups[key], i)
	}

	order := make([]stratum, 0, len(groups))
	for key := range groups {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].service != order[j].service {
			return order[i].service < order[j].service
		}
		return order[i].dayType < order[j].dayType
	})

	rng := rand.New(rand.NewSource(42))
	keep := make([]int, 0, max)
	for _, key := range order {
		idxs := groups[key]
		rng.Shuffle(len(idxs), func(i, j int) { idxs[i], idxs[j] = idxs[j], idxs[i] })
		n := perStratum
		if n > len(idxs) {
			n = len(idxs)
		}
		keep = append(keep, idxs[:n]...)
	}
	sort.Ints(keep)

	out := make([]Pattern, len(keep))
	for i, idx := range keep {
		out[i] = patterns[idx]
	}
	return out
}

func randInt(r *rand.Rand, lo, hi int) int {
	return lo + r.Intn(hi-lo+1)
}

func roundTo(v float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(v*shift) / shift
}
