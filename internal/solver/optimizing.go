package solver

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/travel"
)

// unassignedPenalty makes leaving a site off a route far more expensive
// than any realistic travel detour, so the search always prefers placing
// sites when a feasible position exists.
const unassignedPenalty = 10_000

// Optimizing is the full single-day solver: a large-neighbourhood search
// seeded with the greedy solution. Each iteration removes a few sites
// (random or geographically related), reinserts them (cheapest or
// regret-2), improves routes with 2-opt, and accepts the result under a
// simulated-annealing criterion. The returned solution is never worse than
// the greedy seed. Deterministic for a fixed seed and iteration limit.
type Optimizing struct {
	// Estimator is the travel-time oracle (required).
	Estimator travel.Estimator

	// Logger for solve progress.
	Logger zerolog.Logger

	// MaxIterations caps the search independently of the time budget.
	// Default: 20000.
	MaxIterations int
}

// Name implements Solver.
func (o *Optimizing) Name() string { return "optimizing" }

// SolveDay implements Solver.
func (o *Optimizing) SolveDay(ctx context.Context, sites []site.Site, p Params) (*DayPlan, error) {
	p = p.withDefaults()
	maxIter := o.MaxIterations
	if maxIter <= 0 {
		maxIter = 20_000
	}

	feasible, infeasible := splitInfeasible(sites, p.BudgetMinutes)
	if len(feasible) == 0 {
		plan := &DayPlan{}
		plan.Unassigned = append(plan.Unassigned, infeasible...)
		return plan, nil
	}

	pr, err := buildProblem(ctx, o.Estimator, feasible)
	if err != nil {
		return nil, err
	}

	vehicles := p.Vehicles
	if p.MinimizeCrews {
		vehicles = minimumCrews(pr, p)
	}

	st := o.search(ctx, pr, vehicles, p, maxIter)

	plan := makePlan(pr, st.routes, st.unassigned)
	plan.Unassigned = append(plan.Unassigned, infeasible...)
	sort.Slice(plan.Unassigned, func(a, b int) bool {
		return plan.Unassigned[a].ID < plan.Unassigned[b].ID
	})

	o.Logger.Debug().
		Int("sites", len(sites)).
		Int("vehicles", vehicles).
		Int("unassigned", len(plan.Unassigned)).
		Int("travel_minutes", plan.TotalTravelMinutes()).
		Msg("optimizing day solve complete")
	return plan, nil
}

// minimumCrews finds the smallest crew count that places every site, probed
// with the greedy construction; the full search then runs at that count.
func minimumCrews(pr *problem, p Params) int {
	for k := 1; k <= p.Vehicles; k++ {
		_, leftover := constructGreedy(pr, k, p)
		if len(leftover) == 0 {
			return k
		}
	}
	return p.Vehicles
}

// state is a working solution: fixed-size route list (some possibly empty)
// plus the pool of unplaced site indices.
type state struct {
	routes     []*route
	unassigned []int
}

func (s *state) cost() int {
	total := unassignedPenalty * len(s.unassigned)
	for _, r := range s.routes {
		total += r.travel
	}
	return total
}

func (s *state) clone() *state {
	out := &state{
		routes:     make([]*route, len(s.routes)),
		unassigned: append([]int(nil), s.unassigned...),
	}
	for i, r := range s.routes {
		out.routes[i] = &route{
			order:   append([]int(nil), r.order...),
			service: r.service,
			travel:  r.travel,
		}
	}
	return out
}

func (o *Optimizing) search(ctx context.Context, pr *problem, vehicles int, p Params, maxIter int) *state {
	seedRoutes, leftover := constructGreedy(pr, vehicles, p)

	curr := &state{routes: seedRoutes, unassigned: leftover}
	for len(curr.routes) < vehicles {
		curr.routes = append(curr.routes, &route{})
	}
	best := curr.clone()

	rng := rand.New(rand.NewSource(p.Seed))
	deadline := time.Now().Add(p.TimeBudget)
	temp := 1.0
	const cooling = 0.995

	for iter := 0; iter < maxIter; iter++ {
		if iter%64 == 0 {
			if ctx.Err() != nil || time.Now().After(deadline) {
				break
			}
		}

		cand := curr.clone()

		k := 1 + rng.Intn(3)
		var removed []int
		if rng.Intn(2) == 0 {
			removed = removeRandom(cand, k, rng)
		} else {
			removed = removeRelated(pr, cand, k, rng)
		}
		pool := append(removed, cand.unassigned...)
		cand.unassigned = nil
		refresh(pr, cand)

		if rng.Intn(2) == 0 {
			insertCheapest(pr, cand, pool, p)
		} else {
			insertRegret(pr, cand, pool, p)
		}

		for _, r := range cand.routes {
			if len(r.order) > 2 {
				r.order = twoOpt(pr.m, r.order)
				r.travel = pathTravel(pr.m, r.order)
			}
		}

		delta := float64(cand.cost() - curr.cost())
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			if curr.cost() < best.cost() {
				best = curr.clone()
			}
		}
		temp *= cooling
	}
	return best
}

// removeRandom takes k random placed sites out of their routes.
func removeRandom(s *state, k int, rng *rand.Rand) []int {
	placed := placedIndices(s)
	if len(placed) == 0 {
		return nil
	}
	removed := make([]int, 0, k)
	for i := 0; i < k && len(placed) > 0; i++ {
		j := rng.Intn(len(placed))
		removed = append(removed, placed[j])
		placed = append(placed[:j], placed[j+1:]...)
	}
	extract(s, removed)
	return removed
}

// removeRelated picks a random seed site and removes it together with its
// geographically nearest placed neighbours, freeing a coherent region for
// reinsertion elsewhere.
func removeRelated(pr *problem, s *state, k int, rng *rand.Rand) []int {
	placed := placedIndices(s)
	if len(placed) == 0 {
		return nil
	}
	seed := placed[rng.Intn(len(placed))]

	sort.Slice(placed, func(a, b int) bool {
		da, db := pr.m[seed][placed[a]], pr.m[seed][placed[b]]
		if da != db {
			return da < db
		}
		return pr.sites[placed[a]].ID < pr.sites[placed[b]].ID
	})
	if k > len(placed) {
		k = len(placed)
	}
	removed := append([]int(nil), placed[:k]...)
	extract(s, removed)
	return removed
}

func placedIndices(s *state) []int {
	var placed []int
	for _, r := range s.routes {
		placed = append(placed, r.order...)
	}
	sort.Ints(placed)
	return placed
}

func extract(s *state, removed []int) {
	rm := make(map[int]bool, len(removed))
	for _, idx := range removed {
		rm[idx] = true
	}
	for _, r := range s.routes {
		kept := r.order[:0]
		for _, idx := range r.order {
			if !rm[idx] {
				kept = append(kept, idx)
			}
		}
		r.order = kept
	}
}

// refresh recomputes the cached totals after a structural change.
func refresh(pr *problem, s *state) {
	for _, r := range s.routes {
		r.service = pathService(pr, r.order)
		r.travel = pathTravel(pr.m, r.order)
	}
}

// insertion describes the cheapest feasible position of a site.
type insertion struct {
	routeIdx int
	pos      int
	delta    int
	feasible bool
}

// bestInsertions returns the two cheapest feasible placements for a site.
func bestInsertions(pr *problem, s *state, idx int, p Params) (best, second insertion) {
	best = insertion{delta: math.MaxInt}
	second = insertion{delta: math.MaxInt}
	service := pr.sites[idx].ServiceMinutes

	for ri, r := range s.routes {
		if len(r.order) >= p.MaxSites {
			continue
		}
		routeService := pathService(pr, r.order) + service
		for pos := 0; pos <= len(r.order); pos++ {
			delta := insertDelta(pr.m, r.order, idx, pos)
			if routeService+r.travel+delta > p.BudgetMinutes {
				continue
			}
			cand := insertion{routeIdx: ri, pos: pos, delta: delta, feasible: true}
			if cand.delta < best.delta {
				second = best
				best = cand
			} else if cand.delta < second.delta {
				second = cand
			}
		}
	}
	return best, second
}

// insertDelta is the travel increase from inserting idx at pos. Routes have
// no depot, so inserting at either end adds a single new leg.
func insertDelta(m travel.Matrix, order []int, idx, pos int) int {
	if len(order) == 0 {
		return 0
	}
	switch pos {
	case 0:
		return m[idx][order[0]]
	case len(order):
		return m[order[len(order)-1]][idx]
	default:
		prev, next := order[pos-1], order[pos]
		return m[prev][idx] + m[idx][next] - m[prev][next]
	}
}

func applyInsertion(pr *problem, s *state, idx int, ins insertion) {
	r := s.routes[ins.routeIdx]
	order := make([]int, 0, len(r.order)+1)
	order = append(order, r.order[:ins.pos]...)
	order = append(order, idx)
	order = append(order, r.order[ins.pos:]...)
	r.order = order
	r.service = pathService(pr, r.order)
	r.travel = pathTravel(pr.m, r.order)
}

// insertCheapest places pool sites one at a time at their globally cheapest
// feasible position; sites with no feasible position stay unassigned.
func insertCheapest(pr *problem, s *state, pool []int, p Params) {
	sort.Ints(pool)
	for len(pool) > 0 {
		bestSite := -1
		var bestIns insertion
		bestIns.delta = math.MaxInt
		for pi, idx := range pool {
			ins, _ := bestInsertions(pr, s, idx, p)
			if ins.feasible && ins.delta < bestIns.delta {
				bestSite = pi
				bestIns = ins
			}
		}
		if bestSite == -1 {
			s.unassigned = append(s.unassigned, pool...)
			return
		}
		applyInsertion(pr, s, pool[bestSite], bestIns)
		pool = append(pool[:bestSite], pool[bestSite+1:]...)
	}
}

// insertRegret places the site with the largest regret (gap between its
// best and second-best position) first, so contested positions are claimed
// before they disappear.
func insertRegret(pr *problem, s *state, pool []int, p Params) {
	sort.Ints(pool)
	for len(pool) > 0 {
		bestSite := -1
		bestRegret := -1
		var bestIns insertion
		for pi, idx := range pool {
			first, second := bestInsertions(pr, s, idx, p)
			if !first.feasible {
				continue
			}
			regret := math.MaxInt
			if second.feasible {
				regret = second.delta - first.delta
			}
			if regret > bestRegret {
				bestRegret = regret
				bestSite = pi
				bestIns = first
			}
		}
		if bestSite == -1 {
			s.unassigned = append(s.unassigned, pool...)
			return
		}
		applyInsertion(pr, s, pool[bestSite], bestIns)
		pool = append(pool[:bestSite], pool[bestSite+1:]...)
	}
}
