// Package restaurant provides cached access to restaurant profiles: the
// capacity, usual staffing, and service list that predictions and staffing
// recommendations are phrased against.
package restaurant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/covercast/internal/storage"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	GetRestaurantProfile(id string) (string, error)
	SaveRestaurantProfile(id, profileJSON string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  Profile
	cachedAt time.Time
}

// Manager provides cached, structured access to restaurant profiles.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get returns the profile for a restaurant, creating it with defaults on
// first read. The returned profile is a copy; mutating it does not affect
// the cache.
func (m *Manager) Get(id string) (Profile, error) {
	// Fast path: read lock for cache hit.
	m.mu.RLock()
	if e, ok := m.cache[id]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		p := copyProfile(e.profile)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	// Slow path: write lock for cache miss.
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.cache[id]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return copyProfile(e.profile), nil
	}

	p, err := m.load(id)
	if err != nil {
		return Profile{}, err
	}
	m.cache[id] = cacheEntry{profile: p, cachedAt: m.clock.Now()}
	return copyProfile(p), nil
}

// SetField updates one profile field by dotted key, writes through, and
// invalidates the cache. Returns the updated profile.
func (m *Manager) SetField(id, key string, value any) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.load(id)
	if err != nil {
		return Profile{}, err
	}
	if err := applyField(&p, key, value); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = m.clock.Now().UTC()

	if err := m.save(id, p); err != nil {
		return Profile{}, err
	}
	delete(m.cache, id)
	return copyProfile(p), nil
}

func (m *Manager) load(id string) (Profile, error) {
	raw, err := m.store.GetRestaurantProfile(id)
	if errors.Is(err, storage.ErrNotFound) {
		p := DefaultProfile(id)
		p.UpdatedAt = m.clock.Now().UTC()
		if err := m.save(id, p); err != nil {
			return Profile{}, err
		}
		return p, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile %s: %w", id, err)
	}

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, fmt.Errorf("parsing profile %s: %w", id, err)
	}
	p.RestaurantID = id
	fillDefaults(&p)
	return p, nil
}

func (m *Manager) save(id string, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", id, err)
	}
	if err := m.store.SaveRestaurantProfile(id, string(data)); err != nil {
		return fmt.Errorf("saving profile %s: %w", id, err)
	}
	return nil
}

// fillDefaults replaces absent profile fields so older or hand-edited
// profiles still answer with usable values.
func fillDefaults(p *Profile) {
	def := DefaultProfile(p.RestaurantID)
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.CoversCapacity <= 0 {
		p.CoversCapacity = def.CoversCapacity
	}
	if p.UsualStaffing.Servers <= 0 {
		p.UsualStaffing.Servers = def.UsualStaffing.Servers
	}
	if p.UsualStaffing.Hosts <= 0 {
		p.UsualStaffing.Hosts = def.UsualStaffing.Hosts
	}
	if p.UsualStaffing.Kitchen <= 0 {
		p.UsualStaffing.Kitchen = def.UsualStaffing.Kitchen
	}
	if len(p.ServiceTypes) == 0 {
		p.ServiceTypes = append([]string(nil), def.ServiceTypes...)
	}
}

func copyProfile(p Profile) Profile {
	cp := p
	if p.ServiceTypes != nil {
		cp.ServiceTypes = make([]string, len(p.ServiceTypes))
		copy(cp.ServiceTypes, p.ServiceTypes)
	}
	return cp
}

var validKeys = []string{
	"name",
	"covers_capacity",
	"usual_staffing.servers",
	"usual_staffing.hosts",
	"usual_staffing.kitchen",
	"service_types",
	"notes",
}

var knownServiceTypes = map[string]bool{
	"breakfast": true,
	"brunch":    true,
	"lunch":     true,
	"dinner":    true,
}

func applyField(p *Profile, key string, value any) error {
	switch key {
	case "name":
		s, err := stringValue(key, value)
		if err != nil {
			return err
		}
		if s == "" {
			return fmt.Errorf("profile key %q: value must not be empty", key)
		}
		p.Name = s
	case "notes":
		s, err := stringValue(key, value)
		if err != nil {
			return err
		}
		p.Notes = s
	case "covers_capacity":
		n, err := intValue(key, value)
		if err != nil {
			return err
		}
		p.CoversCapacity = n
	case "usual_staffing.servers":
		n, err := intValue(key, value)
		if err != nil {
			return err
		}
		p.UsualStaffing.Servers = n
	case "usual_staffing.hosts":
		n, err := intValue(key, value)
		if err != nil {
			return err
		}
		p.UsualStaffing.Hosts = n
	case "usual_staffing.kitchen":
		n, err := intValue(key, value)
		if err != nil {
			return err
		}
		p.UsualStaffing.Kitchen = n
	case "service_types":
		types, err := serviceTypesValue(value)
		if err != nil {
			return err
		}
		p.ServiceTypes = types
	default:
		return fmt.Errorf("unknown profile key %q (valid keys: %s)", key, strings.Join(validKeys, ", "))
	}
	return nil
}

func stringValue(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("profile key %q: expected a string, got %T", key, value)
	}
	return s, nil
}

// intValue accepts native ints, JSON numbers, and numeric strings, and
// requires the result to be positive.
func intValue(key string, value any) (int, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("profile key %q: expected a whole number, got %v", key, v)
		}
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("profile key %q: %q is not a number", key, v)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("profile key %q: expected a number, got %T", key, value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("profile key %q: value must be positive, got %d", key, n)
	}
	return n, nil
}

// serviceTypesValue accepts a JSON array of strings or a comma-separated
// string, validating each entry against the known service types.
func serviceTypesValue(value any) ([]string, error) {
	var raw []string
	switch v := value.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				raw = append(raw, trimmed)
			}
		}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("profile key \"service_types\": expected strings, got %T", item)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("profile key \"service_types\": expected a list, got %T", value)
	}

	if len(raw) == 0 {
		return nil, errors.New("profile key \"service_types\": value must not be empty")
	}
	for _, t := range raw {
		if !knownServiceTypes[t] {
			return nil, fmt.Errorf("profile key \"service_types\": unknown service type %q", t)
		}
	}
	return raw, nil
}
