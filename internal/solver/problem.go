package solver

import (
	"context"
	"fmt"
	"sort"

	"github.com/fieldroute/fieldroute/internal/geo"
	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/travel"
)

// problem is the prepared single-day instance shared by both solvers: the
// day's feasible sites, their pairwise travel matrix, and the virtual
// centroid used as the savings reference point. The centroid occupies the
// last matrix index; it is not a physical depot and never appears on a
// route.
type problem struct {
	sites []site.Site
	m     travel.Matrix
}

// depot returns the matrix index of the virtual centroid.
func (pr *problem) depot() int { return len(pr.sites) }

// buildProblem sorts the sites by id (for determinism), computes the travel
// matrix over sites plus centroid, and returns the prepared instance.
func buildProblem(ctx context.Context, est travel.Estimator, sites []site.Site) (*problem, error) {
	ordered := make([]site.Site, len(sites))
	copy(ordered, sites)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].ID < ordered[b].ID })

	points := site.Points(ordered)
	points = append(points, geo.Centroid(site.Points(ordered)))

	m, err := travel.BuildMatrix(ctx, est, points)
	if err != nil {
		return nil, fmt.Errorf("build travel matrix: %w", err)
	}
	return &problem{sites: ordered, m: m}, nil
}

// route is the internal tour representation: ordered site indices plus
// cached service and travel totals.
type route struct {
	order   []int
	service int
	travel  int
}

func (r *route) minutes() int { return r.service + r.travel }

func newRoute(pr *problem, idx int) *route {
	return &route{order: []int{idx}, service: pr.sites[idx].ServiceMinutes}
}

// pathTravel recomputes travel along an index order.
func pathTravel(m travel.Matrix, order []int) int {
	total := 0
	for i := 1; i < len(order); i++ {
		total += m[order[i-1]][order[i]]
	}
	return total
}

func pathService(pr *problem, order []int) int {
	total := 0
	for _, idx := range order {
		total += pr.sites[idx].ServiceMinutes
	}
	return total
}

// twoOpt reverses sub-sequences while total travel strictly decreases.
// Service time is order independent, so only travel is examined.
func twoOpt(m travel.Matrix, order []int) []int {
	n := len(order)
	if n < 3 {
		return order
	}
	improved := true
	for improved {
		improved = false
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				candidate := append([]int(nil), order...)
				for a, b := i, j; a < b; a, b = a+1, b-1 {
					candidate[a], candidate[b] = candidate[b], candidate[a]
				}
				if pathTravel(m, candidate) < pathTravel(m, order) {
					order = candidate
					improved = true
				}
			}
		}
	}
	return order
}

// orient flips a route so the smaller endpoint id comes first; tours have no
// depot, so both directions are equivalent and one is picked for
// determinism.
func orient(pr *problem, order []int) []int {
	if len(order) > 1 && pr.sites[order[len(order)-1]].ID < pr.sites[order[0]].ID {
		for a, b := 0, len(order)-1; a < b; a, b = a+1, b-1 {
			order[a], order[b] = order[b], order[a]
		}
	}
	return order
}

// makePlan converts internal routes and leftover indices into a DayPlan.
// Routes are ordered by their first site id and numbered from zero.
func makePlan(pr *problem, routes []*route, leftover []int) *DayPlan {
	kept := make([]*route, 0, len(routes))
	for _, r := range routes {
		if len(r.order) > 0 {
			kept = append(kept, r)
		}
	}
	sort.Slice(kept, func(a, b int) bool {
		return pr.sites[kept[a].order[0]].ID < pr.sites[kept[b].order[0]].ID
	})

	plan := &DayPlan{Routes: make([]Route, len(kept))}
	for v, r := range kept {
		stops := make([]site.Site, len(r.order))
		for i, idx := range r.order {
			stops[i] = pr.sites[idx]
		}
		plan.Routes[v] = Route{
			Vehicle:        v,
			Sites:          stops,
			ServiceMinutes: r.service,
			TravelMinutes:  r.travel,
		}
	}

	for _, idx := range leftover {
		plan.Unassigned = append(plan.Unassigned, pr.sites[idx])
	}
	sort.Slice(plan.Unassigned, func(a, b int) bool {
		return plan.Unassigned[a].ID < plan.Unassigned[b].ID
	})
	return plan
}

// splitInfeasible separates sites whose service time alone exceeds the
// per-route budget; they can never be scheduled under current constraints.
func splitInfeasible(sites []site.Site, budgetMinutes int) (feasible, infeasible []site.Site) {
	for _, s := range sites {
		if s.ServiceMinutes > budgetMinutes {
			infeasible = append(infeasible, s)
		} else {
			feasible = append(feasible, s)
		}
	}
	return feasible, infeasible
}
