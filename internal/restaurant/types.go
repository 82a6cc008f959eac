package restaurant

import (
	"time"

	"github.com/kalambet/covercast/internal/staffing"
)

// DefaultID is the restaurant used when a request names none.
const DefaultID = "default"

// Profile describes one restaurant: capacity, usual staffing, and the
// services it runs. Stored as a JSON blob keyed by restaurant id.
type Profile struct {
	RestaurantID   string        `json:"restaurant_id"`
	Name           string        `json:"name"`
	CoversCapacity int           `json:"covers_capacity"`
	UsualStaffing  UsualStaffing `json:"usual_staffing"`
	ServiceTypes   []string      `json:"service_types"`
	Notes          string        `json:"notes,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// UsualStaffing is the restaurant's normal headcount per service.
type UsualStaffing struct {
	Servers int `json:"servers"`
	Hosts   int `json:"hosts"`
	Kitchen int `json:"kitchen"`
}

// Usual converts the profile staffing into the recommender's input shape.
func (p Profile) Usual() staffing.Usual {
	return staffing.Usual{
		Servers: p.UsualStaffing.Servers,
		Hosts:   p.UsualStaffing.Hosts,
		Kitchen: p.UsualStaffing.Kitchen,
	}
}

// DefaultProfile is the profile a restaurant starts with.
func DefaultProfile(id string) Profile {
	return Profile{
		RestaurantID:   id,
		Name:           "Main Restaurant",
		CoversCapacity: 180,
		UsualStaffing:  UsualStaffing{Servers: 7, Hosts: 2, Kitchen: 3},
		ServiceTypes:   []string{"breakfast", "lunch", "dinner"},
	}
}
