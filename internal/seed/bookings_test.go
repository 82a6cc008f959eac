package seed

import (
	"strings"
	"testing"
)

const bookingsHeader = "hotel,is_canceled,arrival_date_year,arrival_date_month,arrival_date_day_of_month,adults,children,babies,meal,adr\n"

func TestReadBookings_AggregatesByDate(t *testing.T) {
	csv := bookingsHeader +
		"Resort Hotel,0,2015,July,4,2,1,0,BB,120.50\n" +
		"Resort Hotel,0,2015,July,4,3,0,1,HB,80.00\n" +
		"Resort Hotel,0,2015,July,5,2,0,0,BB,95.00\n"

	days, stats, err := readBookings(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("readBookings: %v", err)
	}
	if stats.Rows != 3 || stats.Canceled != 0 || stats.Malformed != 0 {
		t.Errorf("stats = %+v, want 3 rows, 0 canceled, 0 malformed", stats)
	}
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}

	first := days[0]
	if got := first.date.Format("2006-01-02"); got != "2015-07-04" {
		t.Errorf("days[0].date = %s, want 2015-07-04 (sorted ascending)", got)
	}
	if first.guests != 7 {
		t.Errorf("guests = %d, want 7 (2+1+0 and 3+0+1 summed)", first.guests)
	}
	if first.hotel != "Resort Hotel" {
		t.Errorf("hotel = %q, want Resort Hotel", first.hotel)
	}
	if got := first.meanADR(); got != 100.25 {
		t.Errorf("meanADR = %g, want 100.25", got)
	}
}

func TestReadBookings_SkipsCanceledAndMalformed(t *testing.T) {
	csv := bookingsHeader +
		"City Hotel,1,2016,March,10,2,0,0,BB,100\n" + // canceled
		"City Hotel,0,2016,March,banana,2,0,0,BB,100\n" + // unparseable day
		"City Hotel,0,2016,February,31,2,0,0,BB,100\n" + // impossible date
		"City Hotel,0,2016,March,10,2,0,0,BB,100\n"

	days, stats, err := readBookings(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("readBookings: %v", err)
	}
	if stats.Canceled != 1 {
		t.Errorf("Canceled = %d, want 1", stats.Canceled)
	}
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", stats.Malformed)
	}
	if len(days) != 1 {
		t.Fatalf("got %d days, want 1", len(days))
	}
	if days[0].guests != 2 {
		t.Errorf("guests = %d, want 2", days[0].guests)
	}
}

func TestReadBookings_NAGuestCounts(t *testing.T) {
	// The public dataset stores children as floats with NA gaps.
	csv := bookingsHeader +
		"City Hotel,0,2016,May,1,2,NA,0,BB,100\n" +
		"City Hotel,0,2016,May,1,2,1.0,0,BB,100\n"

	days, _, err := readBookings(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("readBookings: %v", err)
	}
	if days[0].guests != 5 {
		t.Errorf("guests = %d, want 5 (NA counts as zero, 1.0 as one)", days[0].guests)
	}
}

func TestReadBookings_MissingColumn(t *testing.T) {
	csv := "hotel,is_canceled,arrival_date_year\nCity Hotel,0,2016\n"
	_, _, err := readBookings(strings.NewReader(csv))
	if err == nil {
		t.Fatal("expected error for missing columns, got nil")
	}
	if !strings.Contains(err.Error(), "missing column") {
		t.Errorf("error = %v, want mention of missing column", err)
	}
}

func TestReadBookings_ColumnOrderIndependent(t *testing.T) {
	// Same data, shuffled column order.
	csv := "adr,meal,babies,children,adults,arrival_date_day_of_month,arrival_date_month,arrival_date_year,is_canceled,hotel\n" +
		"100,HB,0,0,4,4,July,2015,0,Resort Hotel\n"

	days, _, err := readBookings(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("readBookings: %v", err)
	}
	if len(days) != 1 || days[0].guests != 4 {
		t.Fatalf("days = %d, guests = %d; want 1 day with 4 guests", len(days), days[0].guests)
	}
}

func TestModalMeal(t *testing.T) {
	tests := []struct {
		name  string
		meals map[string]int
		want  string
	}{
		{"clear winner", map[string]int{"SC": 3, "BB": 1}, "SC"},
		{"tie broken alphabetically", map[string]int{"HB": 2, "BB": 2}, "BB"},
		{"empty defaults to BB", map[string]int{}, "BB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &dayBookings{meals: tt.meals}
			if got := d.modalMeal(); got != tt.want {
				t.Errorf("modalMeal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMeanADR_Empty(t *testing.T) {
	d := &dayBookings{}
	if got := d.meanADR(); got != 100.0 {
		t.Errorf("meanADR() = %g, want default 100.0 when no rates parsed", got)
	}
}
