package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/covercast/internal/engine"
	"github.com/kalambet/covercast/internal/pipeline"
	"github.com/kalambet/covercast/internal/predict"
	"github.com/kalambet/covercast/internal/reasoning"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/retrieval"
	"github.com/kalambet/covercast/internal/staffing"
	"github.com/kalambet/covercast/internal/storage"
)

const testToken = "test-token-123"

// --- engine fakes ---

type fakeEngine struct {
	chatFn  func(ctx context.Context, model string, messages []engine.Message, schema *engine.Schema) (string, error)
	embedFn func(ctx context.Context, model, text string) ([]float32, error)
}

func (f *fakeEngine) Chat(ctx context.Context, model string, messages []engine.Message, schema *engine.Schema) (string, error) {
	if f.chatFn == nil {
		return "", errors.New("chat unavailable")
	}
	return f.chatFn(ctx, model, messages, schema)
}

func (f *fakeEngine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if f.embedFn == nil {
		return nil, errors.New("embeddings unavailable")
	}
	return f.embedFn(ctx, model, text)
}

func (f *fakeEngine) IsRunning(ctx context.Context) bool               { return true }
func (f *fakeEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeEngine) HasModel(ctx context.Context, name string) bool   { return true }
func (f *fakeEngine) PullModel(ctx context.Context, name string, onProgress func(engine.PullProgress)) error {
	return nil
}

// onlineEngine fakes a healthy model server: fixed embeddings and a valid
// reasoning response.
func onlineEngine() *fakeEngine {
	return &fakeEngine{
		embedFn: func(_ context.Context, _, _ string) ([]float32, error) {
			return []float32{1, 0, 0}, nil
		},
		chatFn: func(_ context.Context, _ string, _ []engine.Message, _ *engine.Schema) (string, error) {
			return `{"summary":"Steady demand expected.","confidence_factors":["High pattern similarity"]}`, nil
		},
	}
}

// --- setup helpers ---

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestDeps(t *testing.T, eng engine.Engine, token string) Deps {
	t.Helper()
	store := openTestStore(t)
	vectors := retrieval.NewSQLiteStore(store.DB())
	predictor := predict.NewPredictor(store, vectors, retrieval.NewEmbedder(eng, "nomic-embed-text"), 5)
	generator := reasoning.NewGenerator(eng, "qwen2.5", 0)
	restaurants := restaurant.NewManager(store)
	coordinator := pipeline.NewCoordinator(predictor, nil, generator, restaurants, store, staffing.DefaultRatios())

	return Deps{
		Store:       store,
		Coordinator: coordinator,
		Predictor:   predictor,
		Vectors:     vectors,
		Restaurants: restaurants,
		Token:       token,
	}
}

func setupHandler(t *testing.T, eng engine.Engine, token string) (http.Handler, Deps) {
	t.Helper()
	deps := newTestDeps(t, eng, token)
	return NewHandler(deps), deps
}

// seedDinnerData stores two Saturday dinner patterns with embeddings so
// vector search against the fixed test embedding returns them in order.
func seedDinnerData(t *testing.T, deps Deps) {
	t.Helper()
	patterns := []storage.Pattern{
		{
			ID: "pat_00001", RestaurantID: "default", Date: "2025-01-11",
			DayOfWeek: "Saturday", ServiceType: "dinner", DayType: "weekend",
			ActualCovers: 150, WeatherCondition: "Clear", Source: "dataset",
			ContextText: "context one",
		},
		{
			ID: "pat_00002", RestaurantID: "default", Date: "2025-01-04",
			DayOfWeek: "Saturday", ServiceType: "dinner", DayType: "weekend",
			ActualCovers: 130, WeatherCondition: "Rain", Source: "dataset",
			ContextText: "context two",
		},
	}
	if err := deps.Store.SavePatterns(patterns); err != nil {
		t.Fatalf("SavePatterns: %v", err)
	}
	recs := []retrieval.Record{
		{ID: "vec-1", PatternID: "pat_00001", ServiceType: "dinner", Embedding: []float32{1, 0, 0}},
		{ID: "vec-2", PatternID: "pat_00002", ServiceType: "dinner", Embedding: []float32{0.8, 0.6, 0}},
	}
	if err := deps.Vectors.Insert(context.Background(), recs); err != nil {
		t.Fatalf("vectors.Insert: %v", err)
	}
}

// --- request helpers ---

func authReq(method, target, body string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Type
}

// --- tests ---

func TestHealth(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"status":"ok"}` {
		t.Fatalf("body = %q", got)
	}
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/predictions", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if typ := errType(t, rr); typ != "authentication_error" {
		t.Fatalf("error type = %q, want authentication_error", typ)
	}
}

func TestAuth_RejectsWrongToken(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	req := httptest.NewRequest(http.MethodGet, "/predictions", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr := serve(h, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuth_AcceptsValidToken(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, testToken)

	rr := serve(h, authReq(http.MethodGet, "/predictions", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

func TestAuth_DisabledWhenTokenEmpty(t *testing.T) {
	h, _ := setupHandler(t, &fakeEngine{}, "")

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/predictions", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}
