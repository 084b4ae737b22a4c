// Package travel provides the travel-time oracle used by the route solver:
// a pluggable estimator, a concurrent LRU pair cache with optional backing
// stores, and a dense matrix builder.
package travel

import (
	"context"
	"errors"

	"github.com/fieldroute/fieldroute/internal/geo"
)

// Sentinel errors for travel-time estimation.
var (
	// ErrEstimatorUnavailable indicates the underlying provider is down or
	// its circuit breaker is open.
	ErrEstimatorUnavailable = errors.New("travel estimator unavailable")
	// ErrInvalidCoordinates indicates a coordinate outside WGS-84 bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Estimator is the travel-time oracle. Implementations must be symmetric
// (Minutes(a,b) == Minutes(b,a)) and safe for concurrent use. The planner
// uses exactly one estimator per invocation.
type Estimator interface {
	// Minutes returns the estimated door-to-door travel time in whole
	// minutes between two points.
	Minutes(ctx context.Context, from, to geo.Point) (int, error)
	// Name returns the estimator identifier for logging and metrics.
	Name() string
}

// SpeedEstimator estimates travel time from straight-line distance at a
// fixed average ground speed. It is the default oracle when no external
// matrix provider is configured.
type SpeedEstimator struct {
	// SpeedKmh is the assumed average speed. Default: geo.DefaultSpeedKmh.
	SpeedKmh float64
}

// Minutes implements Estimator.
func (e SpeedEstimator) Minutes(_ context.Context, from, to geo.Point) (int, error) {
	if !from.Valid() || !to.Valid() {
		return 0, ErrInvalidCoordinates
	}
	return geo.TravelMinutes(from, to, e.SpeedKmh), nil
}

// Name implements Estimator.
func (e SpeedEstimator) Name() string { return "speed" }
