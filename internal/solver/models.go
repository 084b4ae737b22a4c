// Package solver builds time-optimal single-day tours for a fixed set of
// crews over a set of sites, under route-time and stop-count caps. Two
// implementations share one contract: a fast savings-based greedy solver and
// a full optimizing solver that is never worse than the greedy one.
package solver

import (
	"context"
	"time"

	"github.com/fieldroute/fieldroute/internal/site"
)

// Params are the per-day solve inputs. The budget already excludes any
// break time; it caps driving plus service per route.
type Params struct {
	// Vehicles is the number of crews available today (K).
	Vehicles int

	// BudgetMinutes caps service plus travel per route (B).
	BudgetMinutes int

	// MaxSites caps the number of stops per route (C). Default: 8.
	MaxSites int

	// MinimizeCrews solves for K = 1, 2, ... Vehicles and returns the
	// first crew count that places every site.
	MinimizeCrews bool

	// Seed fixes the random source of the optimizing solver. Zero selects
	// a fixed default so results stay reproducible.
	Seed int64

	// TimeBudget bounds the optimizing solver's search wall clock.
	// Ignored by the greedy solver. Default: 60s.
	TimeBudget time.Duration
}

func (p Params) withDefaults() Params {
	if p.Vehicles < 1 {
		p.Vehicles = 1
	}
	if p.MaxSites <= 0 {
		p.MaxSites = 8
	}
	if p.TimeBudget <= 0 {
		p.TimeBudget = 60 * time.Second
	}
	if p.Seed == 0 {
		p.Seed = 1
	}
	return p
}

// Route is one crew's ordered tour for the day. There is no depot: the
// route starts at the first visited site and ends at the last.
type Route struct {
	Vehicle        int
	Sites          []site.Site
	ServiceMinutes int
	TravelMinutes  int
}

// RouteMinutes is the total on-the-clock time for the route.
func (r Route) RouteMinutes() int { return r.ServiceMinutes + r.TravelMinutes }

// SiteIDs returns the visit order as ids.
func (r Route) SiteIDs() []string {
	ids := make([]string, len(r.Sites))
	for i, s := range r.Sites {
		ids[i] = s.ID
	}
	return ids
}

// DayPlan is the result of a single-day solve. Every input site appears on
// exactly one route or in Unassigned.
type DayPlan struct {
	Routes     []Route
	Unassigned []site.Site
}

// TotalTravelMinutes sums travel across all routes.
func (p *DayPlan) TotalTravelMinutes() int {
	total := 0
	for _, r := range p.Routes {
		total += r.TravelMinutes
	}
	return total
}

// ScheduledSites counts sites placed on routes.
func (p *DayPlan) ScheduledSites() int {
	total := 0
	for _, r := range p.Routes {
		total += len(r.Sites)
	}
	return total
}

// Solver is the single-day VRP capability. Implementations never fail for
// infeasibility; unplaceable sites are reported in DayPlan.Unassigned.
type Solver interface {
	// SolveDay builds routes for one day. The context deadline, when set,
	// bounds the search; the best solution found so far is returned.
	SolveDay(ctx context.Context, sites []site.Site, p Params) (*DayPlan, error)
	// Name returns the solver identifier for logging and metrics.
	Name() string
}
