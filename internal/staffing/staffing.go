// Package staffing maps predicted covers to front and back of house
// headcounts via a ratio table, and phrases the change against the
// restaurant's usual staffing.
package staffing

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed ratios.yaml
var defaultRatiosYAML []byte

// RoleRatio sizes one role: one staff member per Per covers, never fewer
// than Min.
type RoleRatio struct {
	Per int `yaml:"per"`
	Min int `yaml:"min"`
}

// Ratios is the covers-to-headcount table for all roles.
type Ratios struct {
	Servers RoleRatio `yaml:"servers"`
	Hosts   RoleRatio `yaml:"hosts"`
	Kitchen RoleRatio `yaml:"kitchen"`
}

// DefaultRatios returns the table embedded in the binary.
func DefaultRatios() Ratios {
	var r Ratios
	// The embedded table is validated by tests; a parse failure here is a
	// build defect.
	if err := yaml.Unmarshal(defaultRatiosYAML, &r); err != nil {
		panic(fmt.Sprintf("embedded ratios table: %v", err))
	}
	return r
}

// LoadRatios reads a ratio table, overlaying the file at path onto the
// embedded defaults. Keys absent from the file keep their default values.
// An empty path selects the defaults unchanged.
func LoadRatios(path string) (Ratios, error) {
	ratios := DefaultRatios()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Ratios{}, fmt.Errorf("reading ratios file: %w", err)
		}
		if err := yaml.Unmarshal(data, &ratios); err != nil {
			return Ratios{}, fmt.Errorf("parsing ratios file %s: %w", path, err)
		}
	}
	if err := ratios.validate(); err != nil {
		return Ratios{}, err
	}
	return ratios, nil
}

func (r Ratios) validate() error {
	for _, role := range []struct {
		name  string
		ratio RoleRatio
	}{
		{"servers", r.Servers},
		{"hosts", r.Hosts},
		{"kitchen", r.Kitchen},
	} {
		if role.ratio.Per <= 0 {
			return fmt.Errorf("ratio for %s: per must be positive, got %d", role.name, role.ratio.Per)
		}
		if role.ratio.Min < 0 {
			return fmt.Errorf("ratio for %s: min must not be negative, got %d", role.name, role.ratio.Min)
		}
	}
	return nil
}

// Usual is the restaurant's normal staffing for a service.
type Usual struct {
	Servers int
	Hosts   int
	Kitchen int
}

// DefaultUsual is the staffing assumed when the restaurant profile does not
// specify one.
func DefaultUsual() Usual {
	return Usual{Servers: 7, Hosts: 2, Kitchen: 3}
}

// StaffDelta compares recommended headcount for one role with the usual.
type StaffDelta struct {
	Recommended int `json:"recommended"`
	Usual       int `json:"usual"`
	Delta       int `json:"delta"`
}

// Recommendation is the full staffing answer for a predicted service.
type Recommendation struct {
	Servers        StaffDelta `json:"servers"`
	Hosts          StaffDelta `json:"hosts"`
	Kitchen        StaffDelta `json:"kitchen"`
	Rationale      string     `json:"rationale"`
	CoversPerStaff float64    `json:"covers_per_staff"`
}

// Recommend sizes each role for the predicted covers and compares with the
// usual staffing.
func Recommend(covers int, ratios Ratios, usual Usual) Recommendation {
	servers := roleCount(covers, ratios.Servers)
	hosts := roleCount(covers, ratios.Hosts)
	kitchen := roleCount(covers, ratios.Kitchen)

	rec := Recommendation{
		Servers: StaffDelta{Recommended: servers, Usual: usual.Servers, Delta: servers - usual.Servers},
		Hosts:   StaffDelta{Recommended: hosts, Usual: usual.Hosts, Delta: hosts - usual.Hosts},
		Kitchen: StaffDelta{Recommended: kitchen, Usual: usual.Kitchen, Delta: kitchen - usual.Kitchen},
	}

	if total := servers + hosts + kitchen; total > 0 && covers > 0 {
		rec.CoversPerStaff = math.Round(float64(covers)/float64(total)*10) / 10
	}
	rec.Rationale = rationale(covers, rec)
	return rec
}

func roleCount(covers int, ratio RoleRatio) int {
	n := (covers + ratio.Per - 1) / ratio.Per
	if n < ratio.Min {
		n = ratio.Min
	}
	return n
}

func rationale(covers int, rec Recommendation) string {
	var up, down int
	for _, d := range []int{rec.Servers.Delta, rec.Hosts.Delta, rec.Kitchen.Delta} {
		if d > 0 {
			up += d
		} else {
			down -= d
		}
	}
	switch {
	case up > down:
		return fmt.Sprintf("Above average demand (%d covers). Add %d server(s) for smooth service.", covers, up)
	case down > up:
		return fmt.Sprintf("Below average demand (%d covers). Staff down %d from usual levels.", covers, down)
	default:
		return fmt.Sprintf("Demand in line with usual staffing (%d covers).", covers)
	}
}
