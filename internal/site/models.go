// Package site defines the service-site model consumed by the planner and
// the CSV loaders for geocoded and clustered site files.
package site

import (
	"errors"
	"fmt"

	"github.com/fieldroute/fieldroute/internal/geo"
)

// Sentinel errors for site loading and validation.
var (
	// ErrDuplicateID indicates two sites share the same id within one request.
	ErrDuplicateID = errors.New("duplicate site id")
	// ErrInvalidCoordinates indicates a site's lat/lon is outside WGS-84 bounds.
	ErrInvalidCoordinates = errors.New("invalid site coordinates")
	// ErrInvalidServiceMinutes indicates a non-positive service duration.
	ErrInvalidServiceMinutes = errors.New("service minutes must be positive")
)

// Site is a geocoded service location to visit exactly once. Sites are
// immutable inputs; the planner never mutates them.
type Site struct {
	ID             string  `json:"id"`
	Name           string  `json:"name,omitempty"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	ServiceMinutes int     `json:"service_minutes"`

	// ClusterID is the geographic cluster assignment; nil when the site
	// has not been clustered. A pointer distinguishes an absent id from
	// cluster zero at the JSON and CSV boundaries.
	ClusterID *int `json:"cluster_id,omitempty"`

	// Display-only address fields carried through from the input file.
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// Point returns the site's coordinate.
func (s Site) Point() geo.Point {
	return geo.Point{Lat: s.Lat, Lon: s.Lon}
}

// ClusterRef returns a cluster assignment for the given id.
func ClusterRef(id int) *int { return &id }

// Validate checks a single site's invariants.
func (s Site) Validate() error {
	if s.ID == "" {
		return errors.New("site id must be non-empty")
	}
	if !s.Point().Valid() {
		return fmt.Errorf("site %q: %w", s.ID, ErrInvalidCoordinates)
	}
	if s.ServiceMinutes <= 0 {
		return fmt.Errorf("site %q: %w", s.ID, ErrInvalidServiceMinutes)
	}
	return nil
}

// ValidateAll checks every site and the uniqueness of ids across the set.
func ValidateAll(sites []Site) error {
	seen := make(map[string]struct{}, len(sites))
	for _, s := range sites {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("site %q: %w", s.ID, ErrDuplicateID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Points extracts the coordinates of the given sites in order.
func Points(sites []Site) []geo.Point {
	pts := make([]geo.Point, len(sites))
	for i, s := range sites {
		pts[i] = s.Point()
	}
	return pts
}

// Centroid returns the geographic centroid of the given sites.
func Centroid(sites []Site) geo.Point {
	return geo.Centroid(Points(sites))
}

// TotalServiceMinutes sums the per-site service durations.
func TotalServiceMinutes(sites []Site) int {
	total := 0
	for _, s := range sites {
		total += s.ServiceMinutes
	}
	return total
}
