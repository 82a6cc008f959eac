package predict

import (
	"context"
	"log/slog"

	"github.com/kalambet/covercast/internal/almanac"
	"github.com/kalambet/covercast/internal/retrieval"
	"github.com/kalambet/covercast/internal/storage"
)

const defaultTopK = 5

// Predictor finds historical patterns similar to a service context and
// turns them into a covers estimate.
type Predictor struct {
	store    *storage.Store
	vectors  retrieval.VectorStore
	embedder *retrieval.Embedder
	topK     int
}

// NewPredictor creates a Predictor. topK <= 0 selects the default of 5.
func NewPredictor(store *storage.Store, vectors retrieval.VectorStore, embedder *retrieval.Embedder, topK int) *Predictor {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Predictor{store: store, vectors: vectors, embedder: embedder, topK: topK}
}

// Retrieval is the outcome of a similarity search. Synthetic marks patterns
// generated locally because the vector store had nothing usable; Degraded
// marks any deviation from a clean filtered search.
type Retrieval struct {
	Patterns  []Pattern
	Synthetic bool
	Degraded  bool
}

// FindSimilar retrieves the patterns most similar to the service context.
// It never fails: when embedding or search is unavailable, or yields
// nothing, it degrades to deterministic synthetic patterns.
func (p *Predictor) FindSimilar(ctx context.Context, sc almanac.ServiceContext, serviceType string) Retrieval {
	patterns, degraded := p.Search(ctx, ContextString(sc, serviceType), serviceType)
	if len(patterns) > 0 {
		slog.Debug("patterns retrieved",
			"count", len(patterns),
			"top_similarity", patterns[0].Similarity)
		return Retrieval{Patterns: patterns, Degraded: degraded}
	}

	slog.Info("no patterns retrieved, generating synthetic fallback",
		"date", sc.Date.Format("2006-01-02"),
		"service_type", serviceType)
	return Retrieval{Patterns: MockPatterns(sc), Synthetic: true, Degraded: true}
}

// Search embeds the context text and queries the vector store, then joins
// the hits back to stored patterns. serviceType filters the search; empty
// means unfiltered. A failed filtered search is retried once without the
// filter at twice the depth, filtering manually. The bool reports whether
// the search degraded from a clean filtered run.
func (p *Predictor) Search(ctx context.Context, contextText, serviceType string) ([]Pattern, bool) {
	vec, err := p.embedder.Embed(ctx, contextText)
	if err != nil {
		slog.Warn("context embedding failed", "error", err)
		return nil, true
	}

	filter := SearchServiceType(serviceType)
	degraded := false
	scored, err := p.vectors.Search(ctx, vec, p.topK, filter)
	if err != nil {
		slog.Warn("filtered vector search failed, retrying unfiltered",
			"service_type", filter,
			"error", err)
		degraded = true
		wide, retryErr := p.vectors.Search(ctx, vec, 2*p.topK, "")
		if retryErr != nil {
			slog.Warn("unfiltered vector search failed", "error", retryErr)
			return nil, true
		}
		scored = scored[:0]
		for _, rec := range wide {
			if rec.ServiceType == filter {
				scored = append(scored, rec)
			}
		}
		if len(scored) > p.topK {
			scored = scored[:p.topK]
		}
	}
	if len(scored) == 0 {
		return nil, degraded
	}

	ids := make([]string, 0, len(scored))
	for _, rec := range scored {
		ids = append(ids, rec.PatternID)
	}
	stored, err := p.store.GetPatternsByIDs(ids)
	if err != nil {
		slog.Warn("pattern fetch failed", "error", err)
		return nil, true
	}
	byID := make(map[string]storage.Pattern, len(stored))
	for _, sp := range stored {
		byID[sp.ID] = sp
	}

	patterns := make([]Pattern, 0, len(scored))
	for _, rec := range scored {
		sp, ok := byID[rec.PatternID]
		if !ok {
			slog.Warn("vector hit without stored pattern, skipping",
				"vector_id", rec.ID,
				"pattern_id", rec.PatternID)
			continue
		}
		patterns = append(patterns, FromStored(sp, float64(rec.Score)))
	}
	return patterns, degraded
}
