package seed

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Stats summarizes a derivation run for CLI reporting.
type Stats struct {
	Rows      int // data rows read
	Canceled  int // rows skipped as canceled bookings
	Malformed int // rows skipped as unparseable
	Days      int // distinct arrival dates
	Derived   int // patterns before sampling
	Kept      int // patterns after sampling
}

// dayBookings aggregates all non-canceled bookings arriving on one date.
type dayBookings struct {
	date     time.Time
	guests   int
	meals    map[string]int
	hotel    string
	adrSum   float64
	adrCount int
}

// modalMeal returns the most common meal plan for the day, ties broken
// alphabetically so the derivation is deterministic.
func (d *dayBookings) modalMeal() string {
	names := make([]string, 0, len(d.meals))
	for name := range d.meals {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestCount := "BB", 0
	for _, name := range names {
		if d.meals[name] > bestCount {
			best, bestCount = name, d.meals[name]
		}
	}
	return best
}

func (d *dayBookings) meanADR() float64 {
	if d.adrCount == 0 {
		return 100.0
	}
	return roundTo(d.adrSum/float64(d.adrCount), 2)
}

var requiredColumns = []string{
	"is_canceled",
	"arrival_date_year",
	"arrival_date_month",
	"arrival_date_day_of_month",
	"adults",
	"children",
	"babies",
	"meal",
	"hotel",
	"adr",
}

// readBookings parses the hotel bookings CSV and aggregates guest totals per
// arrival date. Columns are located by header name, so column order does not
// matter. Canceled and unparseable rows are skipped and counted.
func readBookings(r io.Reader) ([]*dayBookings, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("reading csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, Stats{}, fmt.Errorf("csv missing column %q", name)
		}
	}

	var stats Stats
	days := make(map[string]*dayBookings)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Malformed++
			continue
		}
		stats.Rows++

		field := func(name string) string {
			i := col[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		canceled, err := strconv.Atoi(field("is_canceled"))
		if err != nil {
			stats.Malformed++
			continue
		}
		if canceled != 0 {
			stats.Canceled++
			continue
		}

		year, errYear := strconv.Atoi(field("arrival_date_year"))
		monthTime, errMonth := time.Parse("January", field("arrival_date_month"))
		day, errDay := strconv.Atoi(field("arrival_date_day_of_month"))
		adults, errAdults := strconv.Atoi(field("adults"))
		if errYear != nil || errMonth != nil || errDay != nil || errAdults != nil {
			stats.Malformed++
			continue
		}

		date := time.Date(year, monthTime.Month(), day, 0, 0, 0, 0, time.UTC)
		if date.Day() != day || date.Month() != monthTime.Month() {
			// time.Date normalizes impossible dates like February 31.
			stats.Malformed++
			continue
		}

		guests := adults + intOrZero(field("children")) + intOrZero(field("babies"))

		key := date.Format("2006-01-02")
		d := days[key]
		if d == nil {
			d = &dayBookings{date: date, meals: make(map[string]int), hotel: field("hotel")}
			days[key] = d
		}
		d.guests += guests
		if meal := field("meal"); meal != "" {
			d.meals[meal]++
		}
		if adr, err := strconv.ParseFloat(field("adr"), 64); err == nil {
			d.adrSum += adr
			d.adrCount++
		}
	}

	out := make([]*dayBookings, 0, len(days))
	for _, d := range days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out, stats, nil
}

// intOrZero parses guest counts that the dataset stores as ints, floats
// ("1.0") or NA markers. Anything unparseable counts as zero.
func intOrZero(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v)
}
