package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert would violate a uniqueness rule,
// such as recording feedback twice for the same prediction.
var ErrConflict = errors.New("already exists")

// Pattern is one historical service: the context it happened under and the
// covers it produced. Dates are stored as YYYY-MM-DD strings.
type Pattern struct {
	ID               string
	RestaurantID     string
	Date             string
	DayOfWeek        string
	ServiceType      string // "breakfast", "lunch", "dinner"
	DayType          string // "weekend", "friday", "weekday"
	HotelOccupancy   float64
	GuestsInHouse    int
	ActualCovers     int
	WeatherCondition string
	WeatherTemp      int
	EventsJSON       string // JSON array stored as text
	IsHoliday        bool
	HolidayName      string
	Source           string // "dataset", "feedback", "api"
	ContextText      string // embeddable context string
	VectorID         string // empty until the embedding job has run
	CreatedAt        time.Time
}

// Prediction is a served prediction, stored in full for later lookup and
// for the feedback loop.
type Prediction struct {
	ID              string
	RestaurantID    string
	ServiceDate     string
	ServiceType     string
	PredictedCovers int
	Confidence      float64
	Method          string
	ContextText     string
	ResponseJSON    string
	CreatedAt       time.Time
}

// Feedback records the actual covers observed after a predicted service.
// ErrorPct is the absolute percentage error versus the prediction.
type Feedback struct {
	ID           string
	PredictionID string
	ActualCovers int
	ErrorPct     float64
	Notes        string
	CreatedAt    time.Time
}

// Event is a known happening near the restaurant on a given date. Stored
// events take precedence over generated ones when building service context.
type Event struct {
	ID                 string
	RestaurantID       string
	Date               string
	Type               string
	Name               string
	Venue              string
	StartTime          string // "HH:MM"
	DistanceKM         float64
	ExpectedAttendance int
	Impact             string // "high", "medium", "low"
	Source             string // "import", "manual"
	CreatedAt          time.Time
}

// Doc is an imported document (function sheet, event page, pasted text)
// awaiting event extraction.
type Doc struct {
	ID          string
	Title       string
	Source      string // "upload", "url", "text"
	ContentType string
	Content     string
	ServiceDate string // optional date hint, YYYY-MM-DD
	CreatedAt   time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
