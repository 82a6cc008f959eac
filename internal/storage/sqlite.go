package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for patterns, predictions,
// feedback, events, docs, restaurant profiles, and the background job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the covercast.db file under dataDir and brings
// its schema up to date. Pass ":memory:" as dataDir for an in-memory
// database.
func Open(dataDir string) (*Store, error) {
	dsn := ":memory:"
	if dataDir != ":memory:" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "covercast.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// The pure-Go driver returns SQLITE_BUSY under concurrent writers, so
	// all access goes through one connection. WAL plus a busy timeout keeps
	// that connection usable while the vector store shares the file.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for components that share the same
// database file, such as the SQLite vector store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies embedded migration files not yet recorded in the
// schema_version table. Files run in ascending filename order, each in its
// own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	applied, err := s.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, err := parseMigrationVersion(name)
		if err != nil {
			return err
		}
		if done[version] {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(version, content); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, content []byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	if _, err := tx.Exec(string(content)); err != nil {
		tx.Rollback()
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

// parseMigrationVersion reads the numeric prefix of a migration filename,
// for example 2 from "002_feedback_events.sql".
func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Patterns ---

const patternColumns = `id, restaurant_id, date, day_of_week, service_type, day_type,
	hotel_occupancy, guests_in_house, actual_covers, weather_condition, weather_temp,
	events_json, is_holiday, holiday_name, source, context_text, vector_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(r rowScanner) (Pattern, error) {
	var p Pattern
	var isHoliday int
	var vectorID sql.NullString
	var createdAt string
	err := r.Scan(&p.ID, &p.RestaurantID, &p.Date, &p.DayOfWeek, &p.ServiceType, &p.DayType,
		&p.HotelOccupancy, &p.GuestsInHouse, &p.ActualCovers, &p.WeatherCondition, &p.WeatherTemp,
		&p.EventsJSON, &isHoliday, &p.HolidayName, &p.Source, &p.ContextText, &vectorID, &createdAt)
	if err != nil {
		return Pattern{}, err
	}
	p.IsHoliday = isHoliday == 1
	p.VectorID = vectorID.String
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Pattern{}, fmt.Errorf("parsing created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}

// SavePatterns inserts patterns in a single transaction.
func (s *Store) SavePatterns(patterns []Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO patterns (` + patternColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range patterns {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		eventsJSON := p.EventsJSON
		if eventsJSON == "" {
			eventsJSON = "[]"
		}
		var vectorID any
		if p.VectorID != "" {
			vectorID = p.VectorID
		}
		if _, err := stmt.Exec(p.ID, p.RestaurantID, p.Date, p.DayOfWeek, p.ServiceType, p.DayType,
			p.HotelOccupancy, p.GuestsInHouse, p.ActualCovers, p.WeatherCondition, p.WeatherTemp,
			eventsJSON, boolToInt(p.IsHoliday), p.HolidayName, p.Source, p.ContextText, vectorID,
			createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting pattern %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetPattern(id string) (Pattern, error) {
	row := s.db.QueryRow(`SELECT `+patternColumns+` FROM patterns WHERE id = ?`, id)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return Pattern{}, ErrNotFound
	}
	if err != nil {
		return Pattern{}, err
	}
	return p, nil
}

// GetPatternsByIDs returns patterns matching the given IDs. Missing IDs are
// silently skipped; callers that care should compare lengths.
func (s *Store) GetPatternsByIDs(ids []string) ([]Pattern, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying patterns by IDs: %w", err)
	}
	defer rows.Close()

	var results []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ListPatterns returns patterns ordered by date descending. serviceType
// filters when non-empty.
func (s *Store) ListPatterns(serviceType string, limit, offset int) ([]Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns`
	args := []any{}
	if serviceType != "" {
		query += ` WHERE service_type = ?`
		args = append(args, serviceType)
	}
	query += ` ORDER BY date DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}
	defer rows.Close()

	var results []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// SetPatternVectorID marks a pattern as embedded.
func (s *Store) SetPatternVectorID(patternID, vectorID string) error {
	res, err := s.db.Exec(`UPDATE patterns SET vector_id = ? WHERE id = ?`, vectorID, patternID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountPatterns() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM patterns").Scan(&count)
	return count, err
}

// ExportPatterns returns all patterns ordered by date ascending.
func (s *Store) ExportPatterns() ([]Pattern, error) {
	rows, err := s.db.Query(`SELECT ` + patternColumns + ` FROM patterns ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("exporting patterns: %w", err)
	}
	defer rows.Close()

	var results []Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// --- Predictions ---

func (s *Store) SavePrediction(p Prediction) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO predictions (id, restaurant_id, service_date, service_type, predicted_covers,
			confidence, method, context_text, response_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RestaurantID, p.ServiceDate, p.ServiceType, p.PredictedCovers,
		p.Confidence, p.Method, p.ContextText, p.ResponseJSON, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetPrediction(id string) (Prediction, error) {
	var p Prediction
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, restaurant_id, service_date, service_type, predicted_covers,
			confidence, method, context_text, response_json, created_at
		FROM predictions WHERE id = ?`, id,
	).Scan(&p.ID, &p.RestaurantID, &p.ServiceDate, &p.ServiceType, &p.PredictedCovers,
		&p.Confidence, &p.Method, &p.ContextText, &p.ResponseJSON, &createdAt)
	if err == sql.ErrNoRows {
		return Prediction{}, ErrNotFound
	}
	if err != nil {
		return Prediction{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Prediction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	p.CreatedAt = t
	return p, nil
}

// ListPredictions returns recent predictions, newest first. restaurantID
// filters when non-empty.
func (s *Store) ListPredictions(restaurantID string, limit int) ([]Prediction, error) {
	query := `SELECT id, restaurant_id, service_date, service_type, predicted_covers,
			confidence, method, context_text, response_json, created_at
		FROM predictions`
	args := []any{}
	if restaurantID != "" {
		query += ` WHERE restaurant_id = ?`
		args = append(args, restaurantID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	defer rows.Close()

	var results []Prediction
	for rows.Next() {
		var p Prediction
		var createdAt string
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.ServiceDate, &p.ServiceType, &p.PredictedCovers,
			&p.Confidence, &p.Method, &p.ContextText, &p.ResponseJSON, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		p.CreatedAt = t
		results = append(results, p)
	}
	return results, rows.Err()
}

// ExportPredictions returns all predictions ordered by creation time.
func (s *Store) ExportPredictions() ([]Prediction, error) {
	rows, err := s.db.Query(`
		SELECT id, restaurant_id, service_date, service_type, predicted_covers,
			confidence, method, context_text, response_json, created_at
		FROM predictions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("exporting predictions: %w", err)
	}
	defer rows.Close()

	var results []Prediction
	for rows.Next() {
		var p Prediction
		var createdAt string
		if err := rows.Scan(&p.ID, &p.RestaurantID, &p.ServiceDate, &p.ServiceType, &p.PredictedCovers,
			&p.Confidence, &p.Method, &p.ContextText, &p.ResponseJSON, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		p.CreatedAt = t
		results = append(results, p)
	}
	return results, rows.Err()
}

// --- Feedback ---

// SaveFeedback records actuals for a prediction. Returns ErrConflict when
// feedback for the prediction already exists.
func (s *Store) SaveFeedback(f Feedback) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM feedback WHERE prediction_id = ?`, f.PredictionID).Scan(&exists); err != nil {
		return fmt.Errorf("checking existing feedback: %w", err)
	}
	if exists > 0 {
		return ErrConflict
	}

	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO feedback (id, prediction_id, actual_covers, error_pct, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.PredictionID, f.ActualCovers, f.ErrorPct, f.Notes, createdAt.Format(time.RFC3339),
	)
	return err
}

// AccuracyRow pairs a prediction with its recorded actuals.
type AccuracyRow struct {
	PredictedCovers int
	ActualCovers    int
	ErrorPct        float64
}

// AccuracyRows returns prediction/actual pairs for accuracy aggregation.
// restaurantID filters when non-empty.
func (s *Store) AccuracyRows(restaurantID string) ([]AccuracyRow, error) {
	query := `SELECT p.predicted_covers, f.actual_covers, f.error_pct
		FROM feedback f JOIN predictions p ON p.id = f.prediction_id`
	args := []any{}
	if restaurantID != "" {
		query += ` WHERE p.restaurant_id = ?`
		args = append(args, restaurantID)
	}
	query += ` ORDER BY f.created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accuracy rows: %w", err)
	}
	defer rows.Close()

	var results []AccuracyRow
	for rows.Next() {
		var r AccuracyRow
		if err := rows.Scan(&r.PredictedCovers, &r.ActualCovers, &r.ErrorPct); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ExportFeedback returns all feedback rows ordered by creation time.
func (s *Store) ExportFeedback() ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, prediction_id, actual_covers, error_pct, notes, created_at
		FROM feedback ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("exporting feedback: %w", err)
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.PredictionID, &f.ActualCovers, &f.ErrorPct, &f.Notes, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		results = append(results, f)
	}
	return results, rows.Err()
}

// --- Events ---

const eventColumns = `id, restaurant_id, date, type, name, venue, start_time,
	distance_km, expected_attendance, impact, source, created_at`

func scanEvent(r rowScanner) (Event, error) {
	var e Event
	var createdAt string
	err := r.Scan(&e.ID, &e.RestaurantID, &e.Date, &e.Type, &e.Name, &e.Venue, &e.StartTime,
		&e.DistanceKM, &e.ExpectedAttendance, &e.Impact, &e.Source, &createdAt)
	if err != nil {
		return Event{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Event{}, fmt.Errorf("parsing created_at: %w", err)
	}
	e.CreatedAt = t
	return e, nil
}

// SaveEvents inserts events in a single transaction.
func (s *Store) SaveEvents(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.Exec(e.ID, e.RestaurantID, e.Date, e.Type, e.Name, e.Venue, e.StartTime,
			e.DistanceKM, e.ExpectedAttendance, e.Impact, e.Source, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting event %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// EventsOn returns stored events for a date (YYYY-MM-DD).
func (s *Store) EventsOn(date string) ([]Event, error) {
	rows, err := s.db.Query(`SELECT `+eventColumns+` FROM events WHERE date = ? ORDER BY start_time ASC, id ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var results []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListEvents returns events within [from, to] inclusive. Empty bounds are open.
func (s *Store) ListEvents(from, to string, limit int) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var conds []string
	args := []any{}
	if from != "" {
		conds = append(conds, "date >= ?")
		args = append(args, from)
	}
	if to != "" {
		conds = append(conds, "date <= ?")
		args = append(args, to)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date ASC, start_time ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var results []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *Store) DeleteEvent(id string) error {
	res, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExportEvents returns all events ordered by date ascending.
func (s *Store) ExportEvents() ([]Event, error) {
	rows, err := s.db.Query(`SELECT ` + eventColumns + ` FROM events ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("exporting events: %w", err)
	}
	defer rows.Close()

	var results []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- Docs ---

func (s *Store) SaveDoc(d Doc) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO docs (id, title, source, content_type, content, service_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Source, d.ContentType, d.Content, d.ServiceDate, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDoc(id string) (Doc, error) {
	var d Doc
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, source, content_type, content, service_date, created_at
		FROM docs WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Source, &d.ContentType, &d.Content, &d.ServiceDate, &createdAt)
	if err == sql.ErrNoRows {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Doc{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// --- Restaurant profiles ---

// GetRestaurantProfile returns the stored profile JSON for a restaurant.
func (s *Store) GetRestaurantProfile(id string) (string, error) {
	var profile string
	err := s.db.QueryRow("SELECT profile_json FROM restaurants WHERE id = ?", id).Scan(&profile)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return profile, err
}

// SaveRestaurantProfile upserts the profile JSON for a restaurant.
func (s *Store) SaveRestaurantProfile(id, profileJSON string) error {
	_, err := s.db.Exec(`
		INSERT INTO restaurants (id, profile_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET profile_json = excluded.profile_json, updated_at = excluded.updated_at`,
		id, profileJSON, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// ExportProfiles returns every stored profile JSON keyed by restaurant id.
func (s *Store) ExportProfiles() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT id, profile_json FROM restaurants`)
	if err != nil {
		return nil, fmt.Errorf("exporting profiles: %w", err)
	}
	defer rows.Close()

	results := make(map[string]string)
	for rows.Next() {
		var id, profile string
		if err := rows.Scan(&id, &profile); err != nil {
			return nil, err
		}
		results[id] = profile
	}
	return results, rows.Err()
}

// --- Jobs ---

// defaultMaxAttempts applies when a job is enqueued without its own limit.
const defaultMaxAttempts = 3

// EnqueueJob inserts a pending job. A zero RunAfter makes it immediately
// claimable.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically moves the oldest due job of one of the given
// types from pending to running and returns it. Nil means nothing is due.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	claimedAt := time.Now().UTC().Truncate(time.Second)
	now := claimedAt.Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	// The status guard loses the race gracefully when another claimer got
	// here first.
	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	j.UpdatedAt = claimedAt
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

// CompleteJob marks a job completed.
func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. Below the attempt limit the job goes
// back to pending with its run_after pushed out by the retry backoff; at
// the limit it is marked failed for good.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		runAfter := now.Add(retryBackoff(attempts))
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

// retryBackoff doubles per failed attempt: 2s, 4s, 8s, ...
func retryBackoff(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Second
}

// --- Maintenance ---

// PurgeAll deletes every row from every data table. Schema is preserved.
func (s *Store) PurgeAll() error {
	tables := []string{"feedback", "predictions", "pattern_vectors", "patterns", "events", "docs", "jobs", "restaurants"}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning purge transaction: %w", err)
	}
	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			tx.Rollback()
			return fmt.Errorf("purging %s: %w", table, err)
		}
	}
	return tx.Commit()
}
