package planner

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/fieldroute/fieldroute/internal/cluster"
	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/solver"
)

// planFixedCalendar finds the minimum crew count that completes the whole
// workload inside [start_date, end_date]. It estimates a starting count from
// total work and capacity, probes feasibility with the fast solver, then
// runs the real plan and validates it, retrying with one more crew on any
// failure until the crew buffer is exhausted.
//
// A probe that passes in fast mode can still fail under full optimization;
// the retry loop closes that gap.
func (pl *Planner) planFixedCalendar(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	start, end := req.StartDate, *req.EndDate
	holidays := holidaySet(req.Holidays)

	days := workDaysBetween(start, end, holidays)
	if len(days) == 0 {
		return nil, invalidRequest("no work days between %s and %s", start, end)
	}

	estimate := estimateCrews(req.Sites, len(days), req.budgetMinutes())
	pl.cfg.Logger.Info().
		Int("work_days", len(days)).
		Int("estimated_crews", estimate).
		Msg("calendar planning started")

	var lastFailure error
	for crews := estimate; crews <= estimate+pl.cfg.CrewBuffer; crews++ {
		feasible, err := pl.probeFeasibility(ctx, req, crews, days)
		if err != nil {
			return nil, err
		}
		if !feasible {
			pl.cfg.Logger.Debug().Int("crews", crews).Msg("fast-mode probe infeasible")
			continue
		}

		attempt := req
		attempt.TeamConfig.Teams = crews
		result, err := pl.planFixedCrews(ctx, attempt, crews, pl.solverFor(req.FastMode))
		if err != nil {
			if IsKind(err, KindProgressFailure) {
				pl.cfg.Logger.Warn().Err(err).Int("crews", crews).Msg("calendar attempt stalled, retrying with another crew")
				lastFailure = err
				continue
			}
			return nil, err
		}

		if len(result.UnassignedSiteIDs) == 0 && !result.EndDate.After(end) {
			return result, nil
		}
		pl.cfg.Logger.Warn().
			Int("crews", crews).
			Int("unassigned", len(result.UnassignedSiteIDs)).
			Str("plan_end", result.EndDate.String()).
			Msg("calendar attempt missed the deadline, retrying with another crew")
	}

	return nil, &Error{
		Kind:    KindCalendarInfeasible,
		Message: "no crew count within the retry buffer completes the work by " + end.String(),
		Crews:   estimate + pl.cfg.CrewBuffer,
		Err:     lastFailure,
		Recommendations: []string{
			"extend the end date",
			"increase max_route_minutes",
			"decrease service_minutes_per_site",
			"enable fast mode",
		},
	}
}

// probeFeasibility simulates the calendar with the fast solver: the crew
// count is feasible when every site is placed within the available work
// days.
func (pl *Planner) probeFeasibility(ctx context.Context, req PlanRequest, crews int, days []Date) (bool, error) {
	params := pl.solveParams(req, crews)
	params.MinimizeCrews = false

	remaining := append([]site.Site(nil), req.Sites...)
	for range days {
		if len(remaining) == 0 {
			return true, nil
		}
		plan, err := pl.fast.SolveDay(ctx, remaining, params)
		if err != nil {
			return false, solverError(err)
		}
		if plan.ScheduledSites() == 0 {
			return false, nil
		}
		remaining = removeScheduled(remaining, plan)
	}
	return len(remaining) == 0, nil
}

// estimateCrews is the seed crew count: total per-site work (service plus a
// flat travel allowance) divided by one crew's capacity over the calendar,
// rounded up.
func estimateCrews(sites []site.Site, workDays, budgetMinutes int) int {
	if workDays <= 0 || budgetMinutes <= 0 {
		return 1
	}
	total := 0
	for _, s := range sites {
		total += s.ServiceMinutes + estimatedTravelPerSite
	}
	capacityPerCrew := workDays * budgetMinutes
	crews := (total + capacityPerCrew - 1) / capacityPerCrew
	if crews < 1 {
		crews = 1
	}
	return crews
}

// planClustersCalendar plans each cluster independently over the same date
// range. Distinct clusters share no sites, so they are solved concurrently.
// Teams are renumbered per cluster and labeled C<cluster>-T<team>.
func (pl *Planner) planClustersCalendar(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	byCluster, clusterIDs, err := cluster.Partition(req.Sites)
	if err != nil {
		return nil, invalidRequest("%v", err)
	}

	results := make([]*PlanResult, len(clusterIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cid := range clusterIDs {
		i, cid := i, cid
		g.Go(func() error {
			clusterReq := req
			clusterReq.Sites = byCluster[cid]
			clusterReq.UseClusters = false

			res, err := pl.planFixedCalendar(gctx, clusterReq)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := &PlanResult{StartDate: req.StartDate, EndDate: req.StartDate}
	totalCrews := 0
	for i, cid := range clusterIDs {
		res := results[i]
		clusterID := cid
		renumberTeams(res.TeamDays)
		for _, td := range res.TeamDays {
			td.ClusterID = &clusterID
			combined.TeamDays = append(combined.TeamDays, td)
		}
		combined.UnassignedSiteIDs = append(combined.UnassignedSiteIDs, res.UnassignedSiteIDs...)
		totalCrews += res.CrewsUsed
	}

	sort.Strings(combined.UnassignedSiteIDs)
	combined.StartDate, combined.EndDate = dateBounds(combined.TeamDays, req.StartDate)
	combined.CrewsUsed = totalCrews
	return combined, nil
}

// renumberTeams compacts team numbers within one cluster's team days to a
// dense 1..n sequence, keeping a crew's number stable across days.
func renumberTeams(days []TeamDay) {
	sortTeamDays(days)
	mapping := make(map[int]int)
	next := 1
	for i := range days {
		if _, ok := mapping[days[i].Team]; !ok {
			mapping[days[i].Team] = next
			next++
		}
		days[i].Team = mapping[days[i].Team]
	}
}

// Interface guard: both solvers satisfy the single-day contract.
var (
	_ solver.Solver = (*solver.Greedy)(nil)
	_ solver.Solver = (*solver.Optimizing)(nil)
)
