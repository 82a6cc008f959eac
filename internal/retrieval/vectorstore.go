package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for vector storage and similarity search backends.
// Two implementations exist: SQLite with brute-force cosine similarity (default,
// zero-dependency deployment) and Postgres with pgvector (for larger pattern
// libraries where ANN indexes pay off).
//
// Both backends store one embedding per historical service pattern and filter
// by service type at query time, so a dinner query never matches a breakfast
// pattern no matter how similar the context text reads.
type VectorStore interface {
	// Insert adds pattern embeddings.
	Insert(ctx context.Context, records []Record) error

	// Search returns the top-K records most similar to vector, ordered by
	// similarity descending. serviceType filters when non-empty.
	Search(ctx context.Context, vector []float32, topK int, serviceType string) ([]ScoredRecord, error)

	// DeleteByPatterns removes all embeddings belonging to the given pattern IDs.
	// Missing IDs are ignored.
	DeleteByPatterns(ctx context.Context, patternIDs []string) error

	// Count returns the number of stored embeddings.
	Count(ctx context.Context) (int, error)
}

// Record represents one embedded service pattern in the vector store.
type Record struct {
	ID          string
	PatternID   string
	ServiceType string
	Embedding   []float32
	CreatedAt   time.Time
}

// ScoredRecord is a Record with a cosine similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
