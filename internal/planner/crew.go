package planner

import (
	"context"
	"sort"

	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/solver"
)

// planFixedCrews schedules the whole workload with a fixed crew count over
// an open-ended calendar, one work day at a time. Weekends and holidays are
// skipped. When a stall is detected, sites that can never fit the per-day
// budget are declared unassigned first; if schedulable work still remains,
// the loop halts with a progress failure — unless the request asked to
// minimize crews, in which case the partial plan is returned.
func (pl *Planner) planFixedCrews(ctx context.Context, req PlanRequest, crews int, s solver.Solver) (*PlanResult, error) {
	holidays := holidaySet(req.Holidays)
	start := req.StartDate
	if start.IsZero() {
		start = Today()
	}

	remaining := append([]site.Site(nil), req.Sites...)
	var teamDays []TeamDay
	var unassigned []site.Site

	params := pl.solveParams(req, crews)
	current := start
	daysUsed := 0
	stall := 0

	for len(remaining) > 0 && daysUsed < pl.cfg.MaxPlanningDays {
		if !isWorkDay(current, holidays) {
			current = current.AddDays(1)
			continue
		}

		plan, err := s.SolveDay(ctx, remaining, params)
		if err != nil {
			return nil, solverError(err)
		}

		scheduled := plan.ScheduledSites()
		if pl.cfg.Instruments != nil {
			pl.cfg.Instruments.DayPlanned(ctx, scheduled)
		}
		if scheduled == 0 {
			stall++
			pl.cfg.Logger.Warn().
				Str("date", current.String()).
				Int("consecutive", stall).
				Int("remaining", len(remaining)).
				Msg("no sites scheduled on work day")

			if stall >= pl.cfg.StallThreshold {
				feasible, infeasible := splitByBudget(remaining, req.budgetMinutes())
				unassigned = append(unassigned, infeasible...)
				remaining = feasible
				if len(remaining) == 0 {
					break
				}
				if req.MinimizeCrews {
					// Fixed-crew with minimize_crews returns the partial
					// plan instead of failing.
					unassigned = append(unassigned, remaining...)
					remaining = nil
					break
				}
				return nil, progressFailure(
					len(remaining), scheduled, len(plan.Unassigned), stall, crews, req,
				)
			}
		} else {
			stall = 0
			teamDays = append(teamDays, teamDaysFromPlan(plan, current)...)
			remaining = removeScheduled(remaining, plan)
			pl.cfg.Logger.Debug().
				Str("date", current.String()).
				Int("scheduled", scheduled).
				Int("remaining", len(remaining)).
				Msg("work day planned")
		}

		daysUsed++
		current = current.AddDays(1)
	}

	if len(remaining) > 0 {
		return nil, &Error{
			Kind:            KindProgressFailure,
			Message:         "planning exceeded the maximum day limit",
			SitesRemaining:  len(remaining),
			ConsecutiveDays: stall,
			Crews:           crews,
			Recommendations: []string{"add a crew", "increase max_route_minutes"},
		}
	}

	sort.Slice(unassigned, func(a, b int) bool { return unassigned[a].ID < unassigned[b].ID })
	startDate, endDate := dateBounds(teamDays, start)
	return &PlanResult{
		TeamDays:          teamDays,
		UnassignedSiteIDs: siteIDs(unassigned),
		StartDate:         startDate,
		EndDate:           endDate,
		CrewsUsed:         crews,
	}, nil
}

// splitByBudget separates sites whose service time alone exceeds the
// per-day budget; they can never be scheduled under current constraints.
func splitByBudget(sites []site.Site, budgetMinutes int) (feasible, infeasible []site.Site) {
	for _, s := range sites {
		if s.ServiceMinutes > budgetMinutes {
			infeasible = append(infeasible, s)
		} else {
			feasible = append(feasible, s)
		}
	}
	return feasible, infeasible
}
