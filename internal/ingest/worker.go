package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/covercast/internal/events"
	"github.com/kalambet/covercast/internal/extract"
	"github.com/kalambet/covercast/internal/restaurant"
	"github.com/kalambet/covercast/internal/retrieval"
	"github.com/kalambet/covercast/internal/storage"
)

// Job types the worker claims. Producers enqueue with these names.
const (
	JobEmbedPattern = "embed_pattern"
	JobImportEvent  = "import_event"
)

// embedBatchSize caps how many embedding jobs one drain claims. A single
// engine round trip then indexes up to this many patterns.
const embedBatchSize = 8

var jobTypes = []string{JobEmbedPattern, JobImportEvent}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetPattern(id string) (storage.Pattern, error)
	SetPatternVectorID(patternID, vectorID string) error
	GetDoc(id string) (storage.Doc, error)
	SaveEvents(events []storage.Event) error
}

// ContentEmbedder turns pattern context texts into vectors.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into the vector store.
type VectorInserter interface {
	Insert(ctx context.Context, records []retrieval.Record) error
}

// EventExtractor pulls structured events out of document text.
type EventExtractor interface {
	Extract(ctx context.Context, text, dateHint string) ([]events.Extracted, error)
}

// Worker drains the SQLite job queue. Embedding jobs index a stored
// pattern's context text into the vector store and are processed in
// batches; an import job turns one uploaded document into stored events.
type Worker struct {
	store     JobStore
	embedder  ContentEmbedder
	vectors   VectorInserter
	extractor EventExtractor
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, extractor EventExtractor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		extractor: extractor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled. An iteration that found work
// loops again immediately so a backlog drains without poll delays.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if claimed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes one unit of work: a batch of embedding jobs
// or a single import job. It reports whether anything was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(jobTypes)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	switch job.Type {
	case JobEmbedPattern:
		w.indexPatterns(ctx, w.drainEmbedJobs(job))
	case JobImportEvent:
		if err := w.importEvents(ctx, job); err != nil {
			w.fail(job, err)
		} else {
			w.complete(job)
		}
	default:
		w.fail(job, fmt.Errorf("unknown job type %q", job.Type))
	}
	return true, nil
}

// drainEmbedJobs claims queued embedding jobs behind first, up to the
// batch cap.
func (w *Worker) drainEmbedJobs(first *storage.Job) []*storage.Job {
	batch := []*storage.Job{first}
	for len(batch) < embedBatchSize {
		job, err := w.store.ClaimNextJob([]string{JobEmbedPattern})
		if err != nil {
			w.logger.Error("claiming embed job", "error", err)
			break
		}
		if job == nil {
			break
		}
		batch = append(batch, job)
	}
	return batch
}

type embedPayload struct {
	PatternID string `json:"pattern_id"`
}

// indexPatterns resolves each job to its pattern, embeds every context text
// in one engine call, and stores the vectors. A bad payload or missing
// pattern fails that job alone; an embed or insert error is not specific to
// one text, so it sends the whole batch back for retry.
func (w *Worker) indexPatterns(ctx context.Context, jobs []*storage.Job) {
	type pending struct {
		job     *storage.Job
		pattern storage.Pattern
	}
	batch := make([]pending, 0, len(jobs))
	for _, job := range jobs {
		var payload embedPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			w.fail(job, fmt.Errorf("parsing payload: %w", err))
			continue
		}
		pattern, err := w.store.GetPattern(payload.PatternID)
		if err != nil {
			w.fail(job, fmt.Errorf("loading pattern %s: %w", payload.PatternID, err))
			continue
		}
		batch = append(batch, pending{job: job, pattern: pattern})
	}
	if len(batch) == 0 {
		return
	}

	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.pattern.ContextText
	}
	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		for _, p := range batch {
			w.fail(p.job, fmt.Errorf("embedding context: %w", err))
		}
		return
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(batch))
	for i, p := range batch {
		records[i] = retrieval.Record{
			ID:          uuid.New().String(),
			PatternID:   p.pattern.ID,
			ServiceType: p.pattern.ServiceType,
			Embedding:   vecs[i],
			CreatedAt:   now,
		}
	}
	if err := w.vectors.Insert(ctx, records); err != nil {
		for _, p := range batch {
			w.fail(p.job, fmt.Errorf("inserting vectors: %w", err))
		}
		return
	}

	for i, p := range batch {
		if err := w.store.SetPatternVectorID(p.pattern.ID, records[i].ID); err != nil {
			w.fail(p.job, fmt.Errorf("updating vector_id: %w", err))
			continue
		}
		w.complete(p.job)
	}
	w.logger.Debug("indexed patterns", "count", len(batch))
}

type importPayload struct {
	DocID string `json:"doc_id"`
}

func (w *Worker) importEvents(ctx context.Context, job *storage.Job) error {
	var payload importPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDoc(payload.DocID)
	if err != nil {
		return fmt.Errorf("loading doc %s: %w", payload.DocID, err)
	}

	content, contentType, err := docContent(doc)
	if err != nil {
		return err
	}

	text, err := extract.Text(content, contentType, doc.Title)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}

	found, err := w.extractor.Extract(ctx, text, doc.ServiceDate)
	if err != nil {
		return fmt.Errorf("extracting events: %w", err)
	}
	if len(found) == 0 {
		w.logger.Info("no events found in document", "doc_id", doc.ID)
		return nil
	}

	now := time.Now().UTC()
	rows := make([]storage.Event, 0, len(found))
	for _, ev := range found {
		rows = append(rows, storage.Event{
			ID:                 uuid.New().String(),
			RestaurantID:       restaurant.DefaultID,
			Date:               ev.Date,
			Type:               ev.Type,
			Name:               ev.Name,
			Venue:              ev.Venue,
			StartTime:          ev.StartTime,
			DistanceKM:         ev.DistanceKM,
			ExpectedAttendance: ev.ExpectedAttendance,
			Impact:             ev.Impact,
			Source:             "import",
			CreatedAt:          now,
		})
	}

	if err := w.store.SaveEvents(rows); err != nil {
		return fmt.Errorf("saving events: %w", err)
	}

	w.logger.Info("imported events", "doc_id", doc.ID, "count", len(rows))
	return nil
}

func (w *Worker) fail(job *storage.Job, err error) {
	w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
	if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
	}
}

func (w *Worker) complete(job *storage.Job) {
	if err := w.store.CompleteJob(job.ID); err != nil {
		w.logger.Error("failed to mark job complete", "job_id", job.ID, "error", err)
	}
}

// docContent returns the raw document bytes plus the content type to sniff
// with. Binary uploads arrive base64-encoded, marked by a ";base64" suffix
// on the stored content type.
func docContent(doc storage.Doc) ([]byte, string, error) {
	const marker = ";base64"
	if strings.HasSuffix(doc.ContentType, marker) {
		raw, err := base64.StdEncoding.DecodeString(doc.Content)
		if err != nil {
			return nil, "", fmt.Errorf("decoding doc %s: %w", doc.ID, err)
		}
		return raw, strings.TrimSuffix(doc.ContentType, marker), nil
	}
	return []byte(doc.Content), doc.ContentType, nil
}
