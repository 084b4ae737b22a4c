package solver

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/travel"
)

// Greedy is the fast single-day solver: Clarke-Wright style savings
// construction followed by a 2-opt pass per route. It is bit-deterministic
// for a given input.
type Greedy struct {
	// Estimator is the travel-time oracle (required).
	Estimator travel.Estimator

	// Logger for solve progress.
	Logger zerolog.Logger
}

// Name implements Solver.
func (g *Greedy) Name() string { return "greedy" }

// SolveDay implements Solver.
func (g *Greedy) SolveDay(ctx context.Context, sites []site.Site, p Params) (*DayPlan, error) {
	p = p.withDefaults()

	feasible, infeasible := splitInfeasible(sites, p.BudgetMinutes)
	if len(feasible) == 0 {
		plan := &DayPlan{}
		plan.Unassigned = append(plan.Unassigned, infeasible...)
		return plan, nil
	}

	pr, err := buildProblem(ctx, g.Estimator, feasible)
	if err != nil {
		return nil, err
	}

	plan := solveGreedy(pr, p)
	plan.Unassigned = append(plan.Unassigned, infeasible...)
	sort.Slice(plan.Unassigned, func(a, b int) bool {
		return plan.Unassigned[a].ID < plan.Unassigned[b].ID
	})

	g.Logger.Debug().
		Int("sites", len(sites)).
		Int("routes", len(plan.Routes)).
		Int("unassigned", len(plan.Unassigned)).
		Int("travel_minutes", plan.TotalTravelMinutes()).
		Msg("greedy day solve complete")
	return plan, nil
}

// solveGreedy runs the savings construction for the requested crew count,
// honouring MinimizeCrews by trying K = 1..Vehicles and stopping at the
// first K that places every site.
func solveGreedy(pr *problem, p Params) *DayPlan {
	if p.MinimizeCrews {
		for k := 1; k <= p.Vehicles; k++ {
			plan := solveGreedyK(pr, k, p)
			if len(plan.Unassigned) == 0 {
				return plan
			}
		}
	}
	return solveGreedyK(pr, p.Vehicles, p)
}

func solveGreedyK(pr *problem, vehicles int, p Params) *DayPlan {
	selected, leftover := constructGreedy(pr, vehicles, p)
	return makePlan(pr, selected, leftover)
}

// constructGreedy runs the savings merge and route selection, returning the
// internal representation for reuse by the optimizing solver.
func constructGreedy(pr *problem, vehicles int, p Params) ([]*route, []int) {
	n := len(pr.sites)
	depot := pr.depot()

	// Seed: one route per site.
	routes := make([]*route, n)
	routeOf := make([]*route, n)
	for i := 0; i < n; i++ {
		routes[i] = newRoute(pr, i)
		routeOf[i] = routes[i]
	}

	// Savings between every ordered pair, relative to the virtual
	// centroid: s(i,j) = t(i,c) + t(c,j) - t(i,j).
	type saving struct {
		i, j  int
		value int
	}
	savings := make([]saving, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			savings = append(savings, saving{
				i:     i,
				j:     j,
				value: pr.m[i][depot] + pr.m[depot][j] - pr.m[i][j],
			})
		}
	}
	sort.Slice(savings, func(a, b int) bool {
		if savings[a].value != savings[b].value {
			return savings[a].value > savings[b].value
		}
		if pr.sites[savings[a].i].ID != pr.sites[savings[b].i].ID {
			return pr.sites[savings[a].i].ID < pr.sites[savings[b].i].ID
		}
		return pr.sites[savings[a].j].ID < pr.sites[savings[b].j].ID
	})

	for _, s := range savings {
		a, b := routeOf[s.i], routeOf[s.j]
		if a == b {
			continue
		}
		merged, ok := tryMerge(pr, a, b, s.i, s.j, p)
		if !ok {
			continue
		}
		for _, idx := range merged.order {
			routeOf[idx] = merged
		}
		removeRoutes(&routes, a, b)
		routes = append(routes, merged)
	}

	// Local search pass per route.
	for _, r := range routes {
		r.order = orient(pr, twoOpt(pr.m, r.order))
		r.travel = pathTravel(pr.m, r.order)
	}

	return selectRoutes(pr, routes, vehicles)
}

// tryMerge joins two routes at endpoints i (route a) and j (route b),
// reversing either route as needed so i is a's tail and j is b's head. The
// merge fails when i or j is interior, or the combined route violates the
// stop cap or time budget.
func tryMerge(pr *problem, a, b *route, i, j int, p Params) (*route, bool) {
	if len(a.order)+len(b.order) > p.MaxSites {
		return nil, false
	}

	aOrder, ok := endingAt(a.order, i)
	if !ok {
		return nil, false
	}
	bOrder, ok := startingAt(b.order, j)
	if !ok {
		return nil, false
	}

	combined := make([]int, 0, len(aOrder)+len(bOrder))
	combined = append(combined, aOrder...)
	combined = append(combined, bOrder...)

	service := a.service + b.service
	travelMin := a.travel + b.travel + pr.m[i][j]
	if service+travelMin > p.BudgetMinutes {
		return nil, false
	}
	return &route{order: combined, service: service, travel: travelMin}, true
}

// endingAt returns the order with idx as its last element, reversing when
// idx is the head; interior positions fail.
func endingAt(order []int, idx int) ([]int, bool) {
	switch {
	case order[len(order)-1] == idx:
		return order, true
	case order[0] == idx:
		return reversed(order), true
	default:
		return nil, false
	}
}

func startingAt(order []int, idx int) ([]int, bool) {
	switch {
	case order[0] == idx:
		return order, true
	case order[len(order)-1] == idx:
		return reversed(order), true
	default:
		return nil, false
	}
}

func reversed(order []int) []int {
	out := make([]int, len(order))
	for i, v := range order {
		out[len(order)-1-i] = v
	}
	return out
}

func removeRoutes(routes *[]*route, remove ...*route) {
	kept := (*routes)[:0]
	for _, r := range *routes {
		drop := false
		for _, rm := range remove {
			if r == rm {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	*routes = kept
}

// selectRoutes keeps at most the requested number of routes, preferring
// routes that place more sites, then less travel, then the smaller first
// site id. Sites on dropped routes become today's leftovers and roll over
// to the next work day.
func selectRoutes(pr *problem, routes []*route, vehicles int) ([]*route, []int) {
	if len(routes) <= vehicles {
		return routes, nil
	}
	sort.Slice(routes, func(a, b int) bool {
		if len(routes[a].order) != len(routes[b].order) {
			return len(routes[a].order) > len(routes[b].order)
		}
		if routes[a].travel != routes[b].travel {
			return routes[a].travel < routes[b].travel
		}
		return pr.sites[routes[a].order[0]].ID < pr.sites[routes[b].order[0]].ID
	})

	var leftover []int
	for _, r := range routes[vehicles:] {
		leftover = append(leftover, r.order...)
	}
	return routes[:vehicles], leftover
}
