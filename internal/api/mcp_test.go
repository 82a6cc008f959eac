package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/covercast/internal/engine"
	"github.com/kalambet/covercast/internal/ingest"
	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/restaurant"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, eng engine.Engine) (MCPDeps, Deps) {
	t.Helper()
	deps := newTestDeps(t, eng, "")
	return MCPDeps{
		Store:       deps.Store,
		Coordinator: deps.Coordinator,
		Predictor:   deps.Predictor,
		Restaurants: deps.Restaurants,
	}, deps
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

// --- tests ---

func TestMCPTool_PredictDemand(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, onlineEngine())
	seedDinnerData(t, deps)
	handler := mcpPredictDemand(mcpDeps)

	req := makeCallToolRequest("predict_demand", map[string]interface{}{
		"service_date": "2025-01-18",
		"service_type": "dinner",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var pred pipeline.Prediction
	if err := json.Unmarshal([]byte(toolText(t, result)), &pred); err != nil {
		t.Fatalf("failed to parse prediction: %v", err)
	}
	if pred.PredictedCovers != 141 {
		t.Errorf("predicted covers = %d, want 141", pred.PredictedCovers)
	}
	if pred.Reasoning.Summary != "Steady demand expected." {
		t.Errorf("reasoning summary = %q", pred.Reasoning.Summary)
	}
	if pred.StaffRecommendation.Servers.Recommended != 8 {
		t.Errorf("servers = %d, want 8", pred.StaffRecommendation.Servers.Recommended)
	}

	// Tool predictions persist the same way HTTP predictions do.
	stored, err := deps.Store.GetPrediction(pred.PredictionID)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if stored.PredictedCovers != 141 {
		t.Errorf("stored covers = %d, want 141", stored.PredictedCovers)
	}
}

func TestMCPTool_PredictDemand_MissingArgs(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, onlineEngine())
	handler := mcpPredictDemand(mcpDeps)

	req := makeCallToolRequest("predict_demand", map[string]interface{}{
		"service_type": "dinner",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error when service_date is missing")
	}
}

func TestMCPTool_PredictDemand_InvalidRequest(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, onlineEngine())
	handler := mcpPredictDemand(mcpDeps)

	req := makeCallToolRequest("predict_demand", map[string]interface{}{
		"service_date": "2025-01-18",
		"service_type": "breakfast",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unsupported service type")
	}
	if !strings.Contains(toolText(t, result), "prediction failed") {
		t.Fatalf("unexpected message: %s", toolText(t, result))
	}
}

func TestMCPTool_FindPatterns_ByQuery(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, onlineEngine())
	seedDinnerData(t, deps)
	handler := mcpFindPatterns(mcpDeps)

	req := makeCallToolRequest("find_patterns", map[string]interface{}{
		"query":        "busy Saturday dinner",
		"service_type": "dinner",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var patterns []predict.Pattern
	if err := json.Unmarshal([]byte(toolText(t, result)), &patterns); err != nil {
		t.Fatalf("failed to parse patterns: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].PatternID != "pat_00001" {
		t.Errorf("top hit = %s, want pat_00001", patterns[0].PatternID)
	}
}

func TestMCPTool_FindPatterns_ByDate(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, onlineEngine())
	seedDinnerData(t, deps)
	handler := mcpFindPatterns(mcpDeps)

	req := makeCallToolRequest("find_patterns", map[string]interface{}{
		"service_date": "2025-01-18",
		"service_type": "dinner",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var patterns []predict.Pattern
	if err := json.Unmarshal([]byte(toolText(t, result)), &patterns); err != nil {
		t.Fatalf("failed to parse patterns: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
}

func TestMCPTool_FindPatterns_NoArgs(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, onlineEngine())
	handler := mcpFindPatterns(mcpDeps)

	result, err := handler(context.Background(), makeCallToolRequest("find_patterns", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error when neither query nor date is given")
	}
	if got := toolText(t, result); got != "either query or service_date and service_type are required" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestMCPTool_FindPatterns_EmptyResult(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, onlineEngine())
	handler := mcpFindPatterns(mcpDeps)

	req := makeCallToolRequest("find_patterns", map[string]interface{}{
		"query": "anything",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "[]" {
		t.Fatalf("expected empty array, got: %s", got)
	}
}

func TestMCPTool_RecordActuals(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, onlineEngine())
	seedDinnerData(t, deps)

	pred, _, err := mcpDeps.Coordinator.Predict(context.Background(), pipeline.Request{
		RestaurantID: "default",
		ServiceDate:  "2025-01-18",
		ServiceType:  "dinner",
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	handler := mcpRecordActuals(mcpDeps)
	req := makeCallToolRequest("record_actuals", map[string]interface{}{
		"prediction_id": pred.PredictionID,
		"actual_covers": 150,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	if !strings.Contains(text, "Recorded 150 covers") {
		t.Errorf("unexpected response: %s", text)
	}
	if !strings.Contains(text, "Derived pattern fb_") {
		t.Errorf("expected derived pattern id in response: %s", text)
	}

	// The two seeded patterns plus the derived one.
	count, err := deps.Store.CountPatterns()
	if err != nil {
		t.Fatalf("CountPatterns: %v", err)
	}
	if count != 3 {
		t.Errorf("patterns = %d, want 3", count)
	}

	// Recording twice for the same prediction is rejected.
	result, err = handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error on duplicate feedback")
	}
	if !strings.Contains(toolText(t, result), "already recorded") {
		t.Fatalf("unexpected message: %s", toolText(t, result))
	}
}

func TestMCPTool_RecordActuals_UnknownPrediction(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, onlineEngine())
	handler := mcpRecordActuals(mcpDeps)

	req := makeCallToolRequest("record_actuals", map[string]interface{}{
		"prediction_id": "nope",
		"actual_covers": 120,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown prediction")
	}
	if !strings.Contains(toolText(t, result), "not found") {
		t.Fatalf("unexpected message: %s", toolText(t, result))
	}
}

func TestMCPTool_RecordActuals_RejectsZeroCovers(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, onlineEngine())
	handler := mcpRecordActuals(mcpDeps)

	req := makeCallToolRequest("record_actuals", map[string]interface{}{
		"prediction_id": "whatever",
		"actual_covers": 0,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for zero covers")
	}
	if !strings.Contains(toolText(t, result), "must be positive") {
		t.Fatalf("unexpected message: %s", toolText(t, result))
	}
}

func TestMCPTool_ImportEvent(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, &fakeEngine{})
	handler := mcpImportEvent(mcpDeps)

	req := makeCallToolRequest("import_event", map[string]interface{}{
		"content":      "Jazz Quartet at the Blue Note, Friday 8pm, 300 expected.",
		"service_date": "2025-11-07",
		"title":        "Blue Note newsletter",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	text := toolText(t, result)
	docID := strings.TrimSuffix(strings.TrimPrefix(text, "Queued document "), " for event extraction.")
	if docID == text {
		t.Fatalf("unexpected response: %s", text)
	}

	doc, err := deps.Store.GetDoc(docID)
	if err != nil {
		t.Fatalf("GetDoc: %v", err)
	}
	if doc.Source != "text" || doc.ContentType != "text/plain" {
		t.Errorf("doc = %s/%s, want text/text/plain", doc.Source, doc.ContentType)
	}
	if doc.Title != "Blue Note newsletter" || doc.ServiceDate != "2025-11-07" {
		t.Errorf("doc metadata = %q %q", doc.Title, doc.ServiceDate)
	}

	job, err := deps.Store.ClaimNextJob([]string{ingest.JobImportEvent})
	if err != nil || job == nil {
		t.Fatalf("ClaimNextJob = %v, %v, want an import job", job, err)
	}
	if !strings.Contains(job.PayloadJSON, docID) {
		t.Errorf("job payload = %s, want doc id", job.PayloadJSON)
	}
}

func TestMCPTool_ImportEvent_Validation(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, &fakeEngine{})
	handler := mcpImportEvent(mcpDeps)

	cases := map[string]map[string]interface{}{
		"missing content": {"service_date": "2025-11-07"},
		"bad date":        {"content": "some event", "service_date": "soon"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("import_event", args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
		})
	}
}

func TestMCPResource_Restaurant(t *testing.T) {
	mcpDeps, _ := newTestMCPDeps(t, &fakeEngine{})
	handler := mcpResourceRestaurant(mcpDeps)

	contents, err := handler(context.Background(), makeReadResourceRequest("covercast://restaurant/default"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var p restaurant.Profile
	if err := json.Unmarshal([]byte(tc.Text), &p); err != nil {
		t.Fatalf("failed to parse profile JSON: %v", err)
	}
	if p.CoversCapacity != 180 {
		t.Errorf("covers capacity = %d, want 180", p.CoversCapacity)
	}
}

func TestMCPResource_Recent(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, onlineEngine())
	seedDinnerData(t, deps)

	pred, _, err := mcpDeps.Coordinator.Predict(context.Background(), pipeline.Request{
		RestaurantID: "default",
		ServiceDate:  "2025-01-18",
		ServiceType:  "dinner",
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	handler := mcpResourceRecent(mcpDeps)
	contents, err := handler(context.Background(), makeReadResourceRequest("covercast://predictions/recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []predictionSummary
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(summaries))
	}
	if summaries[0].PredictionID != pred.PredictionID {
		t.Errorf("summary id = %s, want %s", summaries[0].PredictionID, pred.PredictionID)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	mcpDeps, deps := newTestMCPDeps(t, onlineEngine())
	seedDinnerData(t, deps)

	predictHandler := mcpPredictDemand(mcpDeps)
	findHandler := mcpFindPatterns(mcpDeps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("predict_demand", map[string]interface{}{
				"service_date": "2025-01-18",
				"service_type": "dinner",
			})
			if _, err := predictHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("find_patterns", map[string]interface{}{
				"query": "Saturday dinner",
			})
			if _, err := findHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}
