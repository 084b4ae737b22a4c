package planner

import (
	"context"
	"sort"

	"github.com/fieldroute/fieldroute/internal/cluster"
	"github.com/fieldroute/fieldroute/internal/site"
)

// noAssignment marks a crew with no current cluster. Cluster ids are
// non-negative.
const noAssignment = -1

// planClustersSequentially dispatches crews across clusters day by day in
// fixed-crew mode. Crews stay inside one cluster for a whole day; as a
// crew's cluster completes, the crew moves to the remaining cluster with
// the most work. Every site is eventually planned even with fewer crews
// than clusters.
func (pl *Planner) planClustersSequentially(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	byCluster, clusterIDs, err := cluster.Partition(req.Sites)
	if err != nil {
		return nil, invalidRequest("%v", err)
	}

	crews := req.TeamConfig.Teams
	if alloc := cluster.ValidateCrewAllocation(byCluster, crews); !alloc.Sufficient {
		pl.cfg.Logger.Warn().
			Int("crews", crews).
			Int("clusters", alloc.ClusterCount).
			Msg(alloc.Warning)
	}

	remaining := make(map[int][]site.Site, len(byCluster))
	for id, sites := range byCluster {
		remaining[id] = append([]site.Site(nil), sites...)
	}

	// assignment maps a crew (1-based) to its current cluster; idle crews
	// hold noAssignment.
	assignment := make([]int, crews+1)
	for k := range assignment {
		assignment[k] = noAssignment
	}

	holidays := holidaySet(req.Holidays)
	start := req.StartDate
	if start.IsZero() {
		start = Today()
	}

	s := pl.solverFor(req.FastMode)
	var teamDays []TeamDay
	var unassigned []site.Site

	current := start
	daysUsed := 0
	stall := 0

	for remainingTotal(remaining) > 0 && daysUsed < pl.cfg.MaxPlanningDays {
		if !isWorkDay(current, holidays) {
			current = current.AddDays(1)
			continue
		}

		pl.assignFreeCrews(assignment, remaining, clusterIDs)

		dayProgress := false
		for _, cid := range clusterIDs {
			crewsHere := crewsOnCluster(assignment, cid)
			if len(crewsHere) == 0 || len(remaining[cid]) == 0 {
				continue
			}

			params := pl.solveParams(req, len(crewsHere))
			plan, err := s.SolveDay(ctx, remaining[cid], params)
			if err != nil {
				return nil, solverError(err)
			}
			if plan.ScheduledSites() == 0 {
				continue
			}
			dayProgress = true

			// Map the solver's vehicles onto the actual crews working this
			// cluster today.
			clusterID := cid
			for _, r := range plan.Routes {
				if len(r.Sites) == 0 || r.Vehicle >= len(crewsHere) {
					continue
				}
				teamDays = append(teamDays, TeamDay{
					Team:           crewsHere[r.Vehicle],
					Date:           current,
					ClusterID:      &clusterID,
					SiteIDs:        r.SiteIDs(),
					ServiceMinutes: r.ServiceMinutes,
					TravelMinutes:  r.TravelMinutes,
					RouteMinutes:   r.RouteMinutes(),
				})
			}
			remaining[cid] = removeScheduled(remaining[cid], plan)
		}

		if dayProgress {
			stall = 0
		} else {
			stall++
			if stall >= pl.cfg.StallThreshold {
				leftover := 0
				for _, cid := range clusterIDs {
					feasible, infeasible := splitByBudget(remaining[cid], req.budgetMinutes())
					unassigned = append(unassigned, infeasible...)
					remaining[cid] = feasible
					leftover += len(feasible)
				}
				if leftover == 0 {
					break
				}
				if req.MinimizeCrews {
					for _, cid := range clusterIDs {
						unassigned = append(unassigned, remaining[cid]...)
						remaining[cid] = nil
					}
					break
				}
				return nil, progressFailure(leftover, 0, leftover, stall, crews, req)
			}
		}

		daysUsed++
		current = current.AddDays(1)
	}

	if total := remainingTotal(remaining); total > 0 {
		return nil, &Error{
			Kind:            KindProgressFailure,
			Message:         "cluster planning exceeded the maximum day limit",
			SitesRemaining:  total,
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

// assignFreeCrews releases crews whose cluster is finished and assigns each
// free crew to the incomplete cluster with the most remaining work.
// Clusters with no crew at all are served first; ties go to the smaller
// cluster id. Extra crews beyond the cluster count share clusters.
func (pl *Planner) assignFreeCrews(assignment []int, remaining map[int][]site.Site, clusterIDs []int) {
	for k := 1; k < len(assignment); k++ {
		if cid := assignment[k]; cid != noAssignment && len(remaining[cid]) == 0 {
			assignment[k] = noAssignment
		}
	}

	for k := 1; k < len(assignment); k++ {
		if assignment[k] != noAssignment {
			continue
		}
		next := pickCluster(assignment, remaining, clusterIDs)
		if next == noAssignment {
			break
		}
		assignment[k] = next
		pl.cfg.Logger.Debug().
			Int("crew", k).
			Int("cluster", next).
			Int("sites", len(remaining[next])).
			Msg("crew assigned to cluster")
	}
}

// pickCluster chooses the incomplete cluster with the largest remaining
// site count, considering only crew-less clusters while any exist.
func pickCluster(assignment []int, remaining map[int][]site.Site, clusterIDs []int) int {
	staffed := make(map[int]bool)
	for k := 1; k < len(assignment); k++ {
		if assignment[k] != noAssignment {
			staffed[assignment[k]] = true
		}
	}

	best := noAssignment
	bestSize := 0
	unstaffedOnly := false
	for _, cid := range clusterIDs {
		if len(remaining[cid]) == 0 {
			continue
		}
		if !staffed[cid] && !unstaffedOnly {
			// The first unstaffed cluster resets the search to
			// unstaffed clusters only.
			unstaffedOnly = true
			best = cid
			bestSize = len(remaining[cid])
			continue
		}
		if unstaffedOnly && staffed[cid] {
			continue
		}
		if len(remaining[cid]) > bestSize {
			best = cid
			bestSize = len(remaining[cid])
		}
	}
	return best
}

func crewsOnCluster(assignment []int, cid int) []int {
	var crews []int
	for k := 1; k < len(assignment); k++ {
		if assignment[k] == cid {
			crews = append(crews, k)
		}
	}
	return crews
}

func remainingTotal(remaining map[int][]site.Site) int {
	total := 0
	for _, sites := range remaining {
		total += len(sites)
	}
	return total
}
