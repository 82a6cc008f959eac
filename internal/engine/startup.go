package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the Engine is reachable and pulls any missing
// models, writing progress to w. The chat and embed models are deduplicated
// so a shared model is only checked once.
func EnsureReady(ctx context.Context, e Engine, chatModel, embedModel string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("inference engine is not reachable; check the backend configuration")
	}

	models := make([]string, 0, 2)
	if chatModel != "" {
		models = append(models, chatModel)
	}
	if embedModel != "" && embedModel != chatModel {
		models = append(models, embedModel)
	}

	for _, model := range models {
		if !e.HasModel(ctx, model) {
			if err := pull(ctx, e, model, w); err != nil {
				return fmt.Errorf("pulling model %s: %w", model, err)
			}
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}

func pull(ctx context.Context, e Engine, model string, w io.Writer) error {
	fmt.Fprintf(w, "model %s: pulling...\n", model)
	return e.PullModel(ctx, model, func(p PullProgress) {
		if p.Total > 0 {
			pct := float64(p.Completed) / float64(p.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			return
		}
		fmt.Fprintf(w, "  %s\n", p.Status)
	})
}
