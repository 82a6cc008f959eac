package retrieval

import (
	"context"
	"fmt"

	"github.com/kalambet/covercast/internal/engine"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds how many embedding requests EmbedBatch keeps in
// flight against the engine at once.
const embedConcurrency = 4

// Embedder turns context text into vectors using the engine's embedding
// model. The model name is fixed at construction; mixing models in one
// vector store would make the stored distances meaningless.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder bound to the given engine and model.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Embed returns the embedding vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch embeds several texts concurrently and returns the vectors in
// input order. A nil or empty input yields nil with no engine calls; any
// failed text fails the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.engine.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}
