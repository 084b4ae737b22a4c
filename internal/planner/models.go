// Package planner composes the route-planning strategies: the fixed-crew
// multi-day scheduler, the sequential cluster planner, and the fixed-calendar
// planner, dispatched through a single Plan entry point.
package planner

import (
	"fmt"
	"sort"

	"github.com/fieldroute/fieldroute/internal/site"
)

// Planning defaults.
const (
	DefaultMaxRouteMinutes       = 480
	DefaultServiceMinutesPerSite = 60
	DefaultMaxSitesPerCrew       = 8

	// defaultStallThreshold is the number of consecutive zero-progress work
	// days tolerated before planning halts with a progress failure.
	defaultStallThreshold = 5

	// defaultMaxPlanningDays caps open-ended fixed-crew planning.
	defaultMaxPlanningDays = 365

	// defaultCrewBuffer is how many crew counts above the estimate the
	// calendar planner tries before giving up.
	defaultCrewBuffer = 5

	// estimatedTravelPerSite is the flat travel allowance used when
	// estimating crew counts before any routes exist.
	estimatedTravelPerSite = 15
)

// TeamConfig describes the crew pool. Teams is an input in fixed-crew mode
// and a computed output in fixed-calendar mode.
type TeamConfig struct {
	Teams   int     `json:"teams"`
	Workday Workday `json:"workday"`
}

// PlanRequest is the aggregated planning input.
type PlanRequest struct {
	Sites      []site.Site `json:"sites"`
	TeamConfig TeamConfig  `json:"team_config"`

	// UseClusters selects cluster-aware planning; sites must carry
	// cluster assignments.
	UseClusters bool `json:"use_clusters,omitempty"`

	// StartDate is the first candidate work day. Defaults to today in
	// fixed-crew mode; required in fixed-calendar mode.
	StartDate Date `json:"start_date,omitempty"`

	// EndDate, when set, selects fixed-calendar mode: all work must fit in
	// [StartDate, EndDate] and the minimum sufficient crew count is found.
	EndDate *Date `json:"end_date,omitempty"`

	// Holidays are excluded from the work calendar.
	Holidays []Date `json:"holidays,omitempty"`

	// MaxRouteMinutes caps driving plus service per crew per day.
	MaxRouteMinutes int `json:"max_route_minutes,omitempty"`

	// ServiceMinutesPerSite is applied to sites without their own value.
	ServiceMinutesPerSite int `json:"service_minutes_per_site,omitempty"`

	// BreakMinutes is deducted from the per-day budget.
	BreakMinutes int `json:"break_minutes,omitempty"`

	// FastMode selects the greedy solver instead of full optimization.
	FastMode bool `json:"fast_mode,omitempty"`

	// MaxSitesPerCrewPerDay caps stops per route.
	MaxSitesPerCrewPerDay int `json:"max_sites_per_crew_per_day,omitempty"`

	// MinimizeCrews attempts to use fewer than Teams crews when
	// sufficient.
	MinimizeCrews bool `json:"minimize_crews,omitempty"`

	// Seed fixes the optimizing solver's random source.
	Seed int64 `json:"seed,omitempty"`
}

// withDefaults returns a copy with defaults applied, including the per-site
// service fallback.
func (r PlanRequest) withDefaults() PlanRequest {
	if r.MaxRouteMinutes <= 0 {
		r.MaxRouteMinutes = DefaultMaxRouteMinutes
	}
	if r.ServiceMinutesPerSite <= 0 {
		r.ServiceMinutesPerSite = DefaultServiceMinutesPerSite
	}
	if r.MaxSitesPerCrewPerDay <= 0 {
		r.MaxSitesPerCrewPerDay = DefaultMaxSitesPerCrew
	}
	if r.TeamConfig.Teams <= 0 {
		r.TeamConfig.Teams = 1
	}

	sites := make([]site.Site, len(r.Sites))
	copy(sites, r.Sites)
	for i := range sites {
		if sites[i].ServiceMinutes == 0 {
			sites[i].ServiceMinutes = r.ServiceMinutesPerSite
		}
	}
	r.Sites = sites
	return r
}

// budgetMinutes is the effective per-route per-day cap: the route budget or
// the working window, whichever is tighter, less break time. Enforcing the
// workday here keeps both the route-time and the service-time invariants
// with a single bound.
func (r PlanRequest) budgetMinutes() int {
	budget := r.MaxRouteMinutes
	if w := r.TeamConfig.Workday.Minutes(); w > 0 && w < budget {
		budget = w
	}
	return budget - r.BreakMinutes
}

// TeamDay is one crew's route on one date.
type TeamDay struct {
	// Team is the stable crew number used for ordering and renumbering.
	Team int `json:"-"`

	// TeamID is the display identifier, T<n> or C<cluster>-T<n>.
	TeamID string `json:"team_id"`

	Date Date `json:"date"`

	// ClusterID is set when cluster-aware planning produced this route.
	ClusterID *int `json:"cluster_id,omitempty"`

	// SiteIDs is the visit order.
	SiteIDs []string `json:"site_ids"`

	ServiceMinutes int `json:"service_minutes"`
	TravelMinutes  int `json:"travel_minutes"`
	RouteMinutes   int `json:"route_minutes"`
}

// PlanResult is the planner output. Every input site appears in exactly one
// TeamDay or in UnassignedSiteIDs.
type PlanResult struct {
	PlanID     string    `json:"plan_id"`
	TeamDays   []TeamDay `json:"team_days"`
	Unassigned int       `json:"unassigned"`

	// UnassignedSiteIDs lists the sites that could not be scheduled.
	UnassignedSiteIDs []string `json:"unassigned_site_ids,omitempty"`

	StartDate Date `json:"start_date"`
	EndDate   Date `json:"end_date"`

	// CrewsUsed is the crew count the plan was built with; in
	// fixed-calendar mode this is the computed minimum.
	CrewsUsed int `json:"crews_used"`
}

// sortTeamDays orders the output by date, then team.
func sortTeamDays(days []TeamDay) {
	sort.SliceStable(days, func(a, b int) bool {
		if days[a].Date != days[b].Date {
			return days[a].Date.Before(days[b].Date)
		}
		return days[a].Team < days[b].Team
	})
}

// labelTeams fills the display identifiers from the team and cluster
// numbers. Cluster numbering is 1-based for display.
func labelTeams(days []TeamDay) {
	for i := range days {
		if days[i].ClusterID != nil {
			days[i].TeamID = fmt.Sprintf("C%d-T%d", *days[i].ClusterID+1, days[i].Team)
		} else {
			days[i].TeamID = fmt.Sprintf("T%d", days[i].Team)
		}
	}
}

// dateBounds returns the earliest and latest date across the team days,
// falling back to the given default.
func dateBounds(days []TeamDay, fallback Date) (start, end Date) {
	start, end = fallback, fallback
	for i, td := range days {
		if i == 0 || td.Date.Before(start) {
			start = td.Date
		}
		if i == 0 || td.Date.After(end) {
			end = td.Date
		}
	}
	return start, end
}
