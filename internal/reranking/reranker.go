package reranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/covercast/internal/engine"
	"github.com/kalambet/covercast/internal/predict"
)

const (
	scoreConcurrency = 3
	defaultTimeout   = 10 * time.Second
)

// Reranker re-scores retrieved demand patterns by relevance to the upcoming
// service. The boolean reports degradation: when scoring cannot finish in
// time the original pattern order is returned unchanged and the flag is true.
type Reranker interface {
	Rerank(ctx context.Context, contextText string, patterns []predict.Pattern) ([]predict.Pattern, bool)
}

// NewReranker returns an LLMReranker if enabled, NoOpReranker otherwise.
//
// topK sets the score quota: once that many patterns have been scored the
// reranker returns the subset without waiting for the rest. Zero (or a value
// >= len(patterns)) means score everything.
func NewReranker(eng engine.Engine, model string, enabled bool, timeout time.Duration, threshold float64, topK int) Reranker {
	if !enabled || eng == nil {
		return &NoOpReranker{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LLMReranker{
		engine:    eng,
		model:     model,
		timeout:   timeout,
		threshold: threshold,
		topK:      topK,
	}
}

// LLMReranker asks the model to rate each (context, pattern) pair on a 0-10
// relevance scale, at most scoreConcurrency requests in flight. Patterns
// below threshold are dropped and the rest sorted by relevance descending.
// Cosine similarity on each pattern is left untouched so downstream
// weighting still uses the vector scores.
type LLMReranker struct {
	engine    engine.Engine
	model     string
	timeout   time.Duration
	threshold float64
	topK      int // score quota; 0 = score all
}

type scoredPattern struct {
	pat   predict.Pattern
	score float64
}

// Rerank scores each pattern against the service context and returns a
// filtered, reordered set. A timeout before enough scores land returns the
// original order with the degraded flag set.
func (r *LLMReranker) Rerank(ctx context.Context, contextText string, patterns []predict.Pattern) ([]predict.Pattern, bool) {
	if len(patterns) == 0 {
		return patterns, false
	}

	scoreCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	quota := len(patterns)
	if r.topK > 0 && r.topK < quota {
		quota = r.topK
	}

	incoming := r.scoreAll(scoreCtx, contextText, patterns)

	scored := make([]scoredPattern, 0, len(patterns))
collect:
	for len(scored) < quota {
		select {
		case sp, ok := <-incoming:
			if !ok {
				break collect
			}
			scored = append(scored, sp)
		case <-scoreCtx.Done():
			return patterns, true
		}
	}
	// Quota met or every scorer done; stop any stragglers.
	cancel()

	if len(scored) == 0 {
		return patterns, true
	}

	kept := make([]scoredPattern, 0, len(scored))
	for _, sp := range scored {
		if sp.score >= r.threshold {
			kept = append(kept, sp)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	out := make([]predict.Pattern, len(kept))
	for i, sp := range kept {
		out[i] = sp.pat
	}
	return out, false
}

// scoreAll fans patterns out to bounded scorer goroutines and returns the
// channel their scores arrive on. The channel buffers every result, so a
// scorer never blocks once the caller stops reading; it closes after the
// last scorer returns.
func (r *LLMReranker) scoreAll(ctx context.Context, contextText string, patterns []predict.Pattern) <-chan scoredPattern {
	out := make(chan scoredPattern, len(patterns))
	slots := make(chan struct{}, scoreConcurrency)

	var wg sync.WaitGroup
	for _, pat := range patterns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-slots }()

			score, err := r.scorePattern(ctx, contextText, pat)
			switch {
			case err == nil:
				out <- scoredPattern{pat: pat, score: score}
			case ctx.Err() != nil:
				// Cancelled mid-flight; no partial result.
			default:
				slog.Debug("reranker: score failed, retaining pattern", "pattern", pat.PatternID, "error", err)
				// A pattern the model could not score keeps its place via
				// cosine similarity mapped onto the 0-10 scale.
				out <- scoredPattern{pat: pat, score: pat.Similarity * 10}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (r *LLMReranker) scorePattern(ctx context.Context, contextText string, pat predict.Pattern) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate how relevant this past restaurant service is to the upcoming one on a scale of 0 to 10.\n"+
			"Upcoming service:\n%s\n"+
			"Past service: %s: %s, %d covers\n"+
			"Respond with only a JSON object: {\"score\": <number>}",
		contextText, pat.Date, pat.EventType, pat.ActualCovers)

	schema := &engine.Schema{
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0 to 10"},
		},
		Required: []string{"score"},
	}

	resp, err := r.engine.Chat(ctx, r.model, []engine.Message{
		{Role: "user", Content: prompt},
	}, schema)
	if err != nil {
		return 0, err
	}

	score, parseErr := parseScore(resp)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using similarity", "resp", resp, "error", parseErr)
		return pat.Similarity * 10, nil
	}
	return score, nil
}

// parseScore pulls the relevance score out of a model response. Small local
// models wrap the JSON in code fences or lead with conversational filler,
// so the response is cut down to its outermost braces before unmarshalling.
func parseScore(resp string) (float64, error) {
	s := stripFences(strings.TrimSpace(resp))

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

// stripFences removes a markdown ``` or ```json fence around s, if present.
func stripFences(s string) string {
	idx := strings.Index(s, "```")
	if idx == -1 {
		return s
	}
	s = s[idx+3:]
	s = strings.TrimPrefix(s, "json")
	if end := strings.Index(s, "```"); end != -1 {
		s = s[:end]
	}
	return s
}

// NoOpReranker passes patterns through unchanged. Used when reranking is
// disabled or no scoring engine is available.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, patterns []predict.Pattern) ([]predict.Pattern, bool) {
	return patterns, false
}
