package predict

import (
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/covercast/internal/almanac"
)

func mockContext(date time.Time) almanac.ServiceContext {
	sc := almanac.ContextFor(date)
	return sc
}

func TestMockPatterns_Deterministic(t *testing.T) {
	sc := mockContext(time.Date(2025, time.April, 12, 0, 0, 0, 0, time.UTC))
	first := MockPatterns(sc)
	for range 3 {
		if got := MockPatterns(sc); !reflect.DeepEqual(got, first) {
			t.Fatalf("MockPatterns not deterministic:\n%v\nvs\n%v", got, first)
		}
	}
}

func TestMockPatterns_Shape(t *testing.T) {
	sc := mockContext(time.Date(2025, time.April, 12, 0, 0, 0, 0, time.UTC))
	patterns := MockPatterns(sc)

	if len(patterns) != 3 {
		t.Fatalf("got %d patterns, want 3", len(patterns))
	}
	ids := map[string]bool{}
	for i, p := range patterns {
		ids[p.PatternID] = true
		if p.Similarity < 0.85 || p.Similarity > 0.95 {
			t.Errorf("pattern %d similarity %v outside [0.85, 0.95]", i, p.Similarity)
		}
		if p.ActualCovers < 30 {
			t.Errorf("pattern %d covers %d below floor", i, p.ActualCovers)
		}
		if p.Metadata.Source != "mock" {
			t.Errorf("pattern %d source %q, want mock", i, p.Metadata.Source)
		}
		if p.Metadata.DayOfWeek != sc.DayOfWeek {
			t.Errorf("pattern %d day %q, want %q", i, p.Metadata.DayOfWeek, sc.DayOfWeek)
		}
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			t.Fatalf("pattern %d date %q: %v", i, p.Date, err)
		}
		daysAgo := int(sc.Date.Sub(date).Hours() / 24)
		if daysAgo < 90 || daysAgo > 360 {
			t.Errorf("pattern %d is %d days old, want between 90 and 360", i, daysAgo)
		}
		if i > 0 && patterns[i-1].Similarity < p.Similarity {
			t.Errorf("patterns not sorted by similarity: %v before %v", patterns[i-1].Similarity, p.Similarity)
		}
	}
	for _, want := range []string{"mock_001", "mock_002", "mock_003"} {
		if !ids[want] {
			t.Errorf("missing pattern id %q, got %v", want, ids)
		}
	}
}

func TestMockPatterns_HolidayOverrides(t *testing.T) {
	cases := []struct {
		date   time.Time
		lo, hi int
	}{
		// Base override range widened by the per-pattern ±10 jitter.
		{time.Date(2025, time.December, 25, 0, 0, 0, 0, time.UTC), 30, 80},
		{time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), 170, 230},
		{time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), 40, 90},
	}
	for _, tc := range cases {
		for _, p := range MockPatterns(mockContext(tc.date)) {
			if p.ActualCovers < tc.lo || p.ActualCovers > tc.hi {
				t.Errorf("%s: covers %d outside [%d, %d]",
					tc.date.Format("2006-01-02"), p.ActualCovers, tc.lo, tc.hi)
			}
		}
	}
}

func TestMockPatterns_Description(t *testing.T) {
	sc := mockContext(time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC))

	sc.Events = []almanac.Event{{Type: "Concert"}}
	if got := MockPatterns(sc)[0].EventType; got != "Concert nearby" {
		t.Errorf("event description = %q, want Concert nearby", got)
	}

	sc.Events = nil
	sc.IsHoliday = true
	sc.HolidayName = "Bastille Day"
	if got := MockPatterns(sc)[0].EventType; got != "Bastille Day service" {
		t.Errorf("holiday description = %q, want Bastille Day service", got)
	}

	sc.IsHoliday = false
	sc.HolidayName = ""
	sc.Weather.Condition = "Heavy Rain"
	if got := MockPatterns(sc)[0].EventType; got != "Rainy "+sc.DayOfWeek {
		t.Errorf("rain description = %q, want Rainy %s", got, sc.DayOfWeek)
	}

	sc.Weather.Condition = "Clear"
	if got := MockPatterns(sc)[0].EventType; got != "Regular "+sc.DayType+" service" {
		t.Errorf("regular description = %q, want Regular %s service", got, sc.DayType)
	}
}

func TestMockPatterns_WeekdayRange(t *testing.T) {
	// A plain weekday without events or rain stays near the weekday base.
	sc := mockContext(time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC))
	sc.Events = nil
	sc.Weather.Condition = "Clear"
	for _, p := range MockPatterns(sc) {
		if p.ActualCovers < 90 || p.ActualCovers > 140 {
			t.Errorf("weekday covers %d outside [90, 140]", p.ActualCovers)
		}
	}
}
