package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/covercast/internal/extract"
	"github.com/kalambet/covercast/internal/ingest"
	"github.com/kalambet/covercast/internal/storage"
)

const (
	urlFetchTimeout = 10 * time.Second
	maxURLFetchSize = 5 << 20 // 5MB
)

type importEventRequest struct {
	Source      string `json:"source"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ServiceDate string `json:"service_date"`
}

func handleImportEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBodySize)
		defer r.Body.Close()

		var req importEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: %v", err)
			return
		}
		if req.ServiceDate != "" {
			if _, err := time.Parse("2006-01-02", req.ServiceDate); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"service_date %q is not a YYYY-MM-DD date", req.ServiceDate)
				return
			}
		}

		doc, err := resolveDocument(r.Context(), deps.HTTPClient, req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if err := queueImport(deps.Store, doc); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing import: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     doc.ID,
			"status": "queued",
		})
	}
}

// resolveDocument materializes the import request into a storable document.
// Binary payloads stay base64-encoded with a ";base64" marker on the
// content type; the extraction worker decodes them.
func resolveDocument(ctx context.Context, client *http.Client, req importEventRequest) (storage.Doc, error) {
	doc := storage.Doc{
		ID:          uuid.New().String(),
		Source:      req.Source,
		ServiceDate: req.ServiceDate,
		CreatedAt:   time.Now().UTC(),
	}

	switch req.Source {
	case "text":
		if strings.TrimSpace(req.Content) == "" {
			return storage.Doc{}, errors.New("content is required for text source")
		}
		doc.Title = req.FileName
		if doc.Title == "" {
			doc.Title = "pasted text"
		}
		doc.ContentType = "text/plain"
		doc.Content = req.Content

	case "url":
		if req.URL == "" {
			return storage.Doc{}, errors.New("url is required for url source")
		}
		body, contentType, err := fetchURL(ctx, client, req.URL)
		if err != nil {
			return storage.Doc{}, fmt.Errorf("fetching %s: %w", req.URL, err)
		}
		doc.Title = req.FileName
		if doc.Title == "" {
			doc.Title = req.URL
		}
		if extract.Kind(body, contentType, req.URL) == extract.KindPDF {
			doc.ContentType = "application/pdf;base64"
			doc.Content = base64.StdEncoding.EncodeToString(body)
		} else {
			doc.ContentType = contentType
			if doc.ContentType == "" {
				doc.ContentType = "text/plain"
			}
			doc.Content = string(body)
		}

	case "file":
		if req.Content == "" {
			return storage.Doc{}, errors.New("content is required for file source")
		}
		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return storage.Doc{}, fmt.Errorf("content is not valid base64: %w", err)
		}
		doc.Title = req.FileName
		if doc.Title == "" {
			doc.Title = "uploaded file"
		}
		doc.ContentType = mimeForKind(extract.Kind(raw, "", req.FileName)) + ";base64"
		doc.Content = req.Content

	default:
		return storage.Doc{}, fmt.Errorf("source must be one of text, url, file, got %q", req.Source)
	}
	return doc, nil
}

func mimeForKind(kind string) string {
	switch kind {
	case extract.KindPDF:
		return "application/pdf"
	case extract.KindHTML:
		return "text/html"
	default:
		return "text/plain"
	}
}

// fetchURL downloads a document body with a hard timeout and size cap.
func fetchURL(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, urlFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// queueImport stores the document and enqueues its event extraction.
func queueImport(store *storage.Store, doc storage.Doc) error {
	if err := store.SaveDoc(doc); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	payload, err := json.Marshal(map[string]string{"doc_id": doc.ID})
	if err != nil {
		return err
	}
	return store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        ingest.JobImportEvent,
		PayloadJSON: string(payload),
	})
}

type eventRow struct {
	ID                 string  `json:"id"`
	RestaurantID       string  `json:"restaurant_id"`
	Date               string  `json:"date"`
	Type               string  `json:"type"`
	Name               string  `json:"name"`
	Venue              string  `json:"venue,omitempty"`
	StartTime          string  `json:"start_time,omitempty"`
	DistanceKM         float64 `json:"distance_km"`
	ExpectedAttendance int     `json:"expected_attendance"`
	Impact             string  `json:"impact"`
	Source             string  `json:"source"`
	CreatedAt          string  `json:"created_at"`
}

func handleListEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		for _, key := range []string{"from", "to"} {
			if v := q.Get(key); v != "" {
				if _, err := time.Parse("2006-01-02", v); err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error",
						"%s %q is not a YYYY-MM-DD date", key, v)
					return
				}
			}
		}
		limit := parseIntParam(r, "limit", 100, 500)

		events, err := deps.Store.ListEvents(q.Get("from"), q.Get("to"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing events: %v", err)
			return
		}

		rows := make([]eventRow, 0, len(events))
		for _, e := range events {
			rows = append(rows, eventRow{
				ID:                 e.ID,
				RestaurantID:       e.RestaurantID,
				Date:               e.Date,
				Type:               e.Type,
				Name:               e.Name,
				Venue:              e.Venue,
				StartTime:          e.StartTime,
				DistanceKM:         e.DistanceKM,
				ExpectedAttendance: e.ExpectedAttendance,
				Impact:             e.Impact,
				Source:             e.Source,
				CreatedAt:          e.CreatedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events": rows,
			"count":  len(rows),
		})
	}
}

func handleDeleteEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteEvent(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "event %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting event: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
