package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/covercast/internal/restaurant"
)

func TestGetRestaurant_CreatesDefault(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	rr := serve(h, authReq(http.MethodGet, "/restaurants/default", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var p restaurant.Profile
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if p.Name != "Main Restaurant" || p.CoversCapacity != 180 {
		t.Errorf("profile = %+v, want defaults", p)
	}
	if p.UsualStaffing != (restaurant.UsualStaffing{Servers: 7, Hosts: 2, Kitchen: 3}) {
		t.Errorf("usual staffing = %+v, want 7/2/3", p.UsualStaffing)
	}
}

func TestPatchRestaurant(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	rr := serve(h, authReq(http.MethodPatch, "/restaurants/default",
		`{"name":"Terrace","covers_capacity":220,"usual_staffing.servers":9}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var p restaurant.Profile
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding profile: %v", err)
	}
	if p.Name != "Terrace" || p.CoversCapacity != 220 || p.UsualStaffing.Servers != 9 {
		t.Errorf("updated profile = %+v", p)
	}

	// Untouched fields keep their defaults.
	if p.UsualStaffing.Hosts != 2 {
		t.Errorf("hosts = %d, want 2", p.UsualStaffing.Hosts)
	}
}

func TestPatchRestaurant_Validation(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	cases := map[string]string{
		"unknown key":     `{"stars":3}`,
		"bad value":       `{"covers_capacity":"lots"}`,
		"empty body":      `{}`,
		"not an object":   `[1,2,3]`,
		"unknown cuisine": `{"service_types":["midnight-snack"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodPatch, "/restaurants/default", body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestExportData(t *testing.T) {
	h, deps := setupHandler(t, onlineEngine(), testToken)
	seedDinnerData(t, deps)
	seedEvents(t, deps.Store)

	pred := predictOnce(t, h,
		`{"restaurant_id":"default","service_date":"2025-01-18","service_type":"dinner"}`)
	rr := serve(h, authReq(http.MethodPost, "/feedback",
		`{"prediction_id":"`+pred.PredictionID+`","actual_covers":150}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("feedback status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodGet, "/data/export", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var out struct {
		ExportedAt  string                     `json:"exported_at"`
		Patterns    []map[string]any           `json:"patterns"`
		Predictions []exportPrediction         `json:"predictions"`
		Feedback    []exportFeedback           `json:"feedback"`
		Events      []eventRow                 `json:"events"`
		Restaurants map[string]json.RawMessage `json:"restaurants"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding export: %v", err)
	}

	if out.ExportedAt == "" {
		t.Error("exported_at missing")
	}
	// Two seeded patterns plus the one derived from feedback.
	if len(out.Patterns) != 3 {
		t.Errorf("patterns = %d, want 3", len(out.Patterns))
	}
	for _, p := range out.Patterns {
		if _, ok := p["vector_id"]; ok {
			t.Error("export must not carry vector ids")
		}
		if _, ok := p["context_text"]; !ok {
			t.Error("export pattern missing context_text")
		}
	}
	if len(out.Predictions) != 1 || out.Predictions[0].PredictionID != pred.PredictionID {
		t.Errorf("predictions = %+v", out.Predictions)
	}
	if len(out.Feedback) != 1 || out.Feedback[0].ActualCovers != 150 {
		t.Errorf("feedback = %+v", out.Feedback)
	}
	if len(out.Events) != 3 {
		t.Errorf("events = %d, want 3", len(out.Events))
	}
	if _, ok := out.Restaurants["default"]; !ok {
		t.Errorf("restaurants = %v, want default profile", out.Restaurants)
	}
}

func TestPurgeData(t *testing.T) {
	h, deps := setupHandler(t, onlineEngine(), testToken)
	seedDinnerData(t, deps)
	seedEvents(t, deps.Store)

	rr := serve(h, authReq(http.MethodDelete, "/data", ""))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed purge status = %d, want 400: %s", rr.Code, rr.Body.String())
	}

	rr = serve(h, authReq(http.MethodDelete, "/data?confirm=true", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "purged") {
		t.Errorf("body = %s", rr.Body.String())
	}

	count, err := deps.Store.CountPatterns()
	if err != nil {
		t.Fatalf("CountPatterns: %v", err)
	}
	if count != 0 {
		t.Errorf("patterns after purge = %d, want 0", count)
	}
	vecCount, err := deps.Vectors.Count(context.Background())
	if err != nil {
		t.Fatalf("vectors.Count: %v", err)
	}
	if vecCount != 0 {
		t.Errorf("vectors after purge = %d, want 0", vecCount)
	}
	events, err := deps.Store.ListEvents("", "", 10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events after purge = %d, want 0", len(events))
	}
}
