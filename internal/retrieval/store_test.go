package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the pattern_vectors table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE pattern_vectors (
			id TEXT PRIMARY KEY,
			pattern_id TEXT NOT NULL,
			service_type TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func testRecord(id, patternID, serviceType string, seed float32) Record {
	return Record{
		ID:          id,
		PatternID:   patternID,
		ServiceType: serviceType,
		Embedding:   makeTestVector(768, seed),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInsertAndSearch(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)
	ctx := context.Background()

	vec := makeTestVector(768, 0.1)
	err := s.Insert(ctx, []Record{{
		ID:          "v1",
		PatternID:   "pat_00001",
		ServiceType: "dinner",
		Embedding:   vec,
		CreatedAt:   time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, vec, 1, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %f, want > 0.99", results[0].Score)
	}
	if results[0].ID != "v1" {
		t.Errorf("ID = %q, want %q", results[0].ID, "v1")
	}
	if results[0].PatternID != "pat_00001" {
		t.Errorf("PatternID = %q, want %q", results[0].PatternID, "pat_00001")
	}
}

func TestSearch_TopK(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)
	ctx := context.Background()

	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, testRecord(fmt.Sprintf("v%d", i), fmt.Sprintf("pat_%05d", i), "dinner", float32(i)*0.01))
	}
	if err := s.Insert(ctx, records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, makeTestVector(768, 0.05), 3, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}

	// Scores must come back in descending order.
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: [%d]=%f > [%d]=%f", i, results[i].Score, i-1, results[i-1].Score)
		}
	}
}

func TestSearch_ServiceTypeFilter(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)
	ctx := context.Background()

	records := []Record{
		testRecord("v1", "pat_00001", "dinner", 0.1),
		testRecord("v2", "pat_00002", "lunch", 0.1),
		testRecord("v3", "pat_00003", "dinner", 0.1),
	}
	if err := s.Insert(ctx, records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(ctx, makeTestVector(768, 0.1), 10, "dinner")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.ServiceType != "dinner" {
			t.Errorf("ServiceType = %q, want dinner", r.ServiceType)
		}
	}

	// Unfiltered search sees all three.
	all, err := s.Search(ctx, makeTestVector(768, 0.1), 10, "")
	if err != nil {
		t.Fatalf("Search unfiltered: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d unfiltered results, want 3", len(all))
	}
}

func TestSearch_EmptyTable(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	results, err := s.Search(context.Background(), makeTestVector(768, 0.1), 5, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearch_TopKZero(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	results, err := s.Search(context.Background(), makeTestVector(768, 0.1), 0, "")
	if err != nil {
		t.Fatalf("Search with topK=0: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for topK=0, got %d", len(results))
	}
}

func TestDeleteByPatterns(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)
	ctx := context.Background()

	records := []Record{
		testRecord("v1", "pat_00001", "dinner", 0.1),
		testRecord("v2", "pat_00002", "dinner", 0.2),
		testRecord("v3", "pat_00003", "dinner", 0.3),
	}
	if err := s.Insert(ctx, records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.DeleteByPatterns(ctx, []string{"pat_00001", "pat_00003"}); err != nil {
		t.Fatalf("DeleteByPatterns: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}

	// Deleting unknown IDs is a no-op.
	if err := s.DeleteByPatterns(ctx, []string{"pat_99999"}); err != nil {
		t.Errorf("DeleteByPatterns unknown: %v", err)
	}
	if err := s.DeleteByPatterns(ctx, nil); err != nil {
		t.Errorf("DeleteByPatterns nil: %v", err)
	}
}

func TestCount(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)
	ctx := context.Background()

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("empty count = %d, want 0", count)
	}

	if err := s.Insert(ctx, []Record{
		testRecord("v1", "pat_00001", "dinner", 0.1),
		testRecord("v2", "pat_00002", "lunch", 0.2),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	count, err = s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vec := makeTestVector(768, 0.37)
	blob := encodeFloat32s(vec)
	if len(blob) != 768*4 {
		t.Fatalf("blob length = %d, want %d", len(blob), 768*4)
	}

	decoded, err := decodeFloat32s(blob)
	if err != nil {
		t.Fatalf("decodeFloat32s: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Fatalf("decoded[%d] = %f, want %f", i, decoded[i], vec[i])
		}
	}

	// Corrupt blob lengths are rejected.
	if _, err := decodeFloat32s(blob[:len(blob)-1]); err == nil {
		t.Error("expected error for truncated blob, got nil")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if got := dotProduct(a, b, norm(a)); got < 0.999 {
		t.Errorf("identical vectors similarity = %f, want ~1", got)
	}
	if got := dotProduct(a, c, norm(a)); got > 0.001 {
		t.Errorf("orthogonal vectors similarity = %f, want ~0", got)
	}
	// Mismatched lengths score zero.
	if got := dotProduct(a, []float32{1, 0}, norm(a)); got != 0 {
		t.Errorf("mismatched lengths similarity = %f, want 0", got)
	}
}
