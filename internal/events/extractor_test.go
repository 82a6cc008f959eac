package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/covercast/internal/engine"
)

type stubEngine struct {
	chatFn func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error)
}

func (s *stubEngine) Chat(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
	return s.chatFn(ctx, model, msgs, schema)
}

func (s *stubEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, fmt.Errorf("not implemented")
}
func (s *stubEngine) IsRunning(ctx context.Context) bool               { return true }
func (s *stubEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (s *stubEngine) HasModel(ctx context.Context, name string) bool   { return true }
func (s *stubEngine) PullModel(ctx context.Context, name string, fn func(engine.PullProgress)) error {
	return nil
}

func TestExtract(t *testing.T) {
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			if model != "qwen2.5" {
				t.Errorf("model = %q, want qwen2.5", model)
			}
			if schema == nil || len(schema.Required) != 1 || schema.Required[0] != "events" {
				t.Errorf("schema should require events, got %+v", schema)
			}
			if len(msgs) != 2 || msgs[0].Role != "system" {
				t.Errorf("want system+user messages, got %d", len(msgs))
			}
			if !strings.Contains(msgs[1].Content, "Wine fair on the main square") {
				t.Errorf("document text missing from prompt:\n%s", msgs[1].Content)
			}
			return `{"events": [
				{"name": "Annual Wine Fair", "type": "Festival", "date": "2025-06-14", "start_time": "11:00", "venue": "Main Square", "distance_km": 0.8, "expected_attendance": 4000, "impact": "high"},
				{"name": "Jazz Evening", "type": "Concert", "date": "2025-06-14", "start_time": "20:00", "venue": "River Club", "distance_km": 3.2, "expected_attendance": 300, "impact": "low"}
			]}`, nil
		},
	}

	ext := NewExtractor(eng, "qwen2.5")
	events, err := ext.Extract(context.Background(), "Wine fair on the main square...", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	first := events[0]
	if first.Name != "Annual Wine Fair" || first.Type != "Festival" || first.Date != "2025-06-14" {
		t.Errorf("first event = %+v", first)
	}
	if first.DistanceKM != 0.8 || first.ExpectedAttendance != 4000 || first.Impact != "high" {
		t.Errorf("first event numbers = %+v", first)
	}
}

func TestExtract_AppliesDefaults(t *testing.T) {
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `{"events": [{"name": "", "type": "", "date": "2025-03-01", "impact": "catastrophic", "distance_km": -2, "expected_attendance": -5}]}`, nil
		},
	}

	events, err := NewExtractor(eng, "qwen2.5").Extract(context.Background(), "doc", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	ev := events[0]
	if ev.Type != "Event" {
		t.Errorf("Type = %q, want default Event", ev.Type)
	}
	if ev.Name != "Event" {
		t.Errorf("Name = %q, want type fallback", ev.Name)
	}
	if ev.Impact != "medium" {
		t.Errorf("Impact = %q, want medium for unknown values", ev.Impact)
	}
	if ev.DistanceKM != 0 || ev.ExpectedAttendance != 0 {
		t.Errorf("negative numbers not clamped: %+v", ev)
	}
}

func TestExtract_DateHint(t *testing.T) {
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `{"events": [
				{"name": "Gala Dinner", "type": "Private Function", "date": ""},
				{"name": "Tasting", "type": "Private Function", "date": "not a date"}
			]}`, nil
		},
	}

	events, err := NewExtractor(eng, "qwen2.5").Extract(context.Background(), "doc", "2025-09-20")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for i, ev := range events {
		if ev.Date != "2025-09-20" {
			t.Errorf("events[%d].Date = %q, want hint 2025-09-20", i, ev.Date)
		}
	}
}

func TestExtract_MissingDateNoHint(t *testing.T) {
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `{"events": [{"name": "Gala Dinner", "type": "Private Function", "date": ""}]}`, nil
		},
	}

	_, err := NewExtractor(eng, "qwen2.5").Extract(context.Background(), "doc", "")
	if err == nil {
		t.Fatal("expected error for dateless event without hint, got nil")
	}
	if !strings.Contains(err.Error(), "no date") {
		t.Errorf("error = %v, want mention of missing date", err)
	}
}

func TestExtract_ChatError(t *testing.T) {
	chatErr := errors.New("model not loaded")
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return "", chatErr
		},
	}

	_, err := NewExtractor(eng, "qwen2.5").Extract(context.Background(), "doc", "")
	if !errors.Is(err, chatErr) {
		t.Errorf("error = %v, want wrapped chat error", err)
	}
}

func TestExtract_BadJSON(t *testing.T) {
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return "the document mentions a wine fair", nil
		},
	}

	if _, err := NewExtractor(eng, "qwen2.5").Extract(context.Background(), "doc", ""); err == nil {
		t.Fatal("expected error for unparseable response, got nil")
	}
}

func TestExtract_NoEvents(t *testing.T) {
	eng := &stubEngine{
		chatFn: func(ctx context.Context, model string, msgs []engine.Message, schema *engine.Schema) (string, error) {
			return `{"events": []}`, nil
		},
	}

	events, err := NewExtractor(eng, "qwen2.5").Extract(context.Background(), "a menu with no events", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestBuildPrompt_TruncatesLongDocuments(t *testing.T) {
	text := strings.Repeat("x", maxDocChars+500)
	msgs := BuildPrompt(text)
	if !strings.Contains(msgs[1].Content, "[truncated]") {
		t.Error("long document should be truncated with a marker")
	}
	if len(msgs[1].Content) > maxDocChars+300 {
		t.Errorf("prompt is %d chars, should be capped near %d", len(msgs[1].Content), maxDocChars)
	}
}
