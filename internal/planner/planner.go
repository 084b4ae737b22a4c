package planner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/solver"
	"github.com/fieldroute/fieldroute/internal/telemetry"
	"github.com/fieldroute/fieldroute/internal/travel"
)

// Config holds configuration for the planner.
type Config struct {
	// Estimator is the travel-time oracle. Default: a cached speed-based
	// estimator.
	Estimator travel.Estimator

	// Logger for planning operations.
	Logger zerolog.Logger

	// Instruments records planning metrics when set.
	Instruments *telemetry.Instruments

	// SolverTimeBudget bounds the optimizing solver per day. Default: 60s.
	SolverTimeBudget time.Duration

	// StallThreshold is the number of consecutive zero-progress work days
	// before a progress failure. Default: 5.
	StallThreshold int

	// MaxPlanningDays caps open-ended fixed-crew planning. Default: 365.
	MaxPlanningDays int

	// CrewBuffer is how many crew counts above the estimate the calendar
	// planner tries. Default: 5.
	CrewBuffer int

	// FastSolver and FullSolver override the built-in solvers; used by
	// tests and by callers with custom oracles.
	FastSolver solver.Solver
	FullSolver solver.Solver
}

// Planner dispatches plan requests to the appropriate strategy.
type Planner struct {
	cfg  Config
	fast solver.Solver
	full solver.Solver
}

// New creates a planner with defaults applied.
func New(cfg Config) *Planner {
	if cfg.Estimator == nil {
		cfg.Estimator = travel.NewCache(travel.CacheConfig{
			Inner:  travel.SpeedEstimator{},
			Logger: cfg.Logger,
		})
	}
	if cfg.SolverTimeBudget <= 0 {
		cfg.SolverTimeBudget = 60 * time.Second
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = defaultStallThreshold
	}
	if cfg.MaxPlanningDays <= 0 {
		cfg.MaxPlanningDays = defaultMaxPlanningDays
	}
	if cfg.CrewBuffer <= 0 {
		cfg.CrewBuffer = defaultCrewBuffer
	}

	fast := cfg.FastSolver
	if fast == nil {
		fast = &solver.Greedy{Estimator: cfg.Estimator, Logger: cfg.Logger}
	}
	full := cfg.FullSolver
	if full == nil {
		full = &solver.Optimizing{Estimator: cfg.Estimator, Logger: cfg.Logger}
	}
	return &Planner{cfg: cfg, fast: fast, full: full}
}

// Plan validates the request and routes it to the matching strategy:
// fixed-calendar when an end date is present, sequential cluster planning
// when clustering is enabled, and the fixed-crew scheduler otherwise. A
// request without dates plans from today, which collapses to a single-day
// solve when everything fits the first work day.
func (pl *Planner) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	req = req.withDefaults()
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	mode := pl.modeOf(req)
	start := time.Now()
	pl.cfg.Logger.Info().
		Str("mode", mode).
		Int("sites", len(req.Sites)).
		Int("teams", req.TeamConfig.Teams).
		Bool("fast_mode", req.FastMode).
		Msg("planning started")
	if pl.cfg.Instruments != nil {
		pl.cfg.Instruments.PlanStarted(ctx, mode)
	}

	var (
		result *PlanResult
		err    error
	)
	switch mode {
	case "calendar_clusters":
		result, err = pl.planClustersCalendar(ctx, req)
	case "calendar":
		result, err = pl.planFixedCalendar(ctx, req)
	case "sequential_clusters":
		result, err = pl.planClustersSequentially(ctx, req)
	default:
		result, err = pl.planFixedCrews(ctx, req, req.TeamConfig.Teams, pl.solverFor(req.FastMode))
	}

	if pl.cfg.Instruments != nil {
		pl.cfg.Instruments.PlanCompleted(ctx, mode, time.Since(start), err == nil)
	}
	if err != nil {
		pl.cfg.Logger.Error().Err(err).Str("mode", mode).Msg("planning failed")
		return nil, err
	}

	pl.finalize(result)
	pl.cfg.Logger.Info().
		Str("mode", mode).
		Str("plan_id", result.PlanID).
		Int("team_days", len(result.TeamDays)).
		Int("unassigned", result.Unassigned).
		Dur("elapsed", time.Since(start)).
		Msg("planning complete")
	return result, nil
}

func (pl *Planner) modeOf(req PlanRequest) string {
	switch {
	case req.EndDate != nil && req.UseClusters:
		return "calendar_clusters"
	case req.EndDate != nil:
		return "calendar"
	case req.UseClusters:
		return "sequential_clusters"
	default:
		return "fixed_crews"
	}
}

func (pl *Planner) solverFor(fastMode bool) solver.Solver {
	if fastMode {
		return pl.fast
	}
	return pl.full
}

// solveParams builds the per-day solver parameters for a crew count.
func (pl *Planner) solveParams(req PlanRequest, crews int) solver.Params {
	return solver.Params{
		Vehicles:      crews,
		BudgetMinutes: req.budgetMinutes(),
		MaxSites:      req.MaxSitesPerCrewPerDay,
		MinimizeCrews: req.MinimizeCrews,
		Seed:          req.Seed,
		TimeBudget:    pl.cfg.SolverTimeBudget,
	}
}

// finalize stamps the plan id, orders and labels the team days, and fills
// the unassigned summary.
func (pl *Planner) finalize(result *PlanResult) {
	result.PlanID = uuid.NewString()
	sortTeamDays(result.TeamDays)
	labelTeams(result.TeamDays)
	result.Unassigned = len(result.UnassignedSiteIDs)
}

// validateRequest enforces the boundary invariants; violations surface as
// InvalidRequest errors and never reach the solvers.
func validateRequest(req PlanRequest) error {
	if len(req.Sites) == 0 {
		return invalidRequest("cannot plan with zero sites")
	}
	if err := site.ValidateAll(req.Sites); err != nil {
		return invalidRequest("invalid sites: %v", err)
	}
	if req.BreakMinutes < 0 {
		return invalidRequest("break_minutes must be non-negative, got %d", req.BreakMinutes)
	}

	w := req.TeamConfig.Workday
	if (w != Workday{}) && w.Minutes() <= 0 {
		return invalidRequest("workday end %s must be after start %s", w.End, w.Start)
	}
	if req.budgetMinutes() <= 0 {
		return invalidRequest("no working time left after break: budget %d minutes", req.budgetMinutes())
	}

	if req.EndDate != nil {
		if req.StartDate.IsZero() {
			return invalidRequest("start_date is required when end_date is set")
		}
		if req.EndDate.Before(req.StartDate) {
			return invalidRequest("end_date %s is before start_date %s", req.EndDate, req.StartDate)
		}
	}

	if req.UseClusters {
		for _, s := range req.Sites {
			if s.ClusterID == nil {
				return invalidRequest("use_clusters is set but site %q has no cluster assignment", s.ID)
			}
			if *s.ClusterID < 0 {
				return invalidRequest("site %q has negative cluster id %d", s.ID, *s.ClusterID)
			}
		}
	}
	return nil
}

// removeScheduled filters out the sites placed by a day plan.
func removeScheduled(remaining []site.Site, plan *solver.DayPlan) []site.Site {
	scheduled := make(map[string]struct{})
	for _, r := range plan.Routes {
		for _, s := range r.Sites {
			scheduled[s.ID] = struct{}{}
		}
	}
	kept := remaining[:0:0]
	for _, s := range remaining {
		if _, ok := scheduled[s.ID]; !ok {
			kept = append(kept, s)
		}
	}
	return kept
}

// teamDaysFromPlan converts solver routes into team days for a date. Crews
// are numbered from one.
func teamDaysFromPlan(plan *solver.DayPlan, d Date) []TeamDay {
	days := make([]TeamDay, 0, len(plan.Routes))
	for _, r := range plan.Routes {
		if len(r.Sites) == 0 {
			continue
		}
		days = append(days, TeamDay{
			Team:           r.Vehicle + 1,
			Date:           d,
			SiteIDs:        r.SiteIDs(),
			ServiceMinutes: r.ServiceMinutes,
			TravelMinutes:  r.TravelMinutes,
			RouteMinutes:   r.RouteMinutes(),
		})
	}
	return days
}

func siteIDs(sites []site.Site) []string {
	ids := make([]string, len(sites))
	for i, s := range sites {
		ids[i] = s.ID
	}
	return ids
}
