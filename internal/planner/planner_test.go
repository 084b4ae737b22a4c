package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fieldroute/fieldroute/internal/site"
	"github.com/fieldroute/fieldroute/internal/solver"
)

func testPlanner() *Planner {
	return New(Config{Logger: zerolog.Nop()})
}

// monday is a fixed Monday used as the default start date in tests.
const monday = "2026-03-02"

func batonRougeSites(n, serviceMinutes int) []site.Site {
	sites := make([]site.Site, n)
	for i := range sites {
		sites[i] = site.Site{
			ID:             fmt.Sprintf("br-%02d", i),
			Lat:            30.4500 + float64(i%4)*0.01,
			Lon:            -91.1800 + float64(i/4)*0.01,
			ServiceMinutes: serviceMinutes,
		}
	}
	return sites
}

func colocatedSites(prefix string, n, serviceMinutes int, lat, lon float64) []site.Site {
	sites := make([]site.Site, n)
	for i := range sites {
		sites[i] = site.Site{
			ID:             fmt.Sprintf("%s-%02d", prefix, i),
			Lat:            lat,
			Lon:            lon,
			ServiceMinutes: serviceMinutes,
		}
	}
	return sites
}

// checkCoverage verifies the coverage invariant: every input site appears in
// exactly one team day or in the unassigned list.
func checkCoverage(t *testing.T, input []site.Site, result *PlanResult) {
	t.Helper()
	seen := make(map[string]int)
	for _, td := range result.TeamDays {
		for _, id := range td.SiteIDs {
			seen[id]++
		}
	}
	for _, id := range result.UnassignedSiteIDs {
		seen[id]++
	}
	if len(seen) != len(input) {
		t.Errorf("coverage: %d distinct sites in result, %d in input", len(seen), len(input))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("site %s appears %d times", id, n)
		}
	}
	if result.Unassigned != len(result.UnassignedSiteIDs) {
		t.Errorf("unassigned count %d does not match id list %d",
			result.Unassigned, len(result.UnassignedSiteIDs))
	}
}

func checkOrdering(t *testing.T, result *PlanResult) {
	t.Helper()
	for i := 1; i < len(result.TeamDays); i++ {
		prev, curr := result.TeamDays[i-1], result.TeamDays[i]
		if curr.Date.Before(prev.Date) {
			t.Fatalf("team days not sorted by date: %s before %s", curr.Date, prev.Date)
		}
		if curr.Date == prev.Date && curr.Team < prev.Team {
			t.Fatalf("team days not sorted by team within %s", curr.Date)
		}
	}
}

func TestPlan_Validation(t *testing.T) {
	pl := testPlanner()
	ctx := context.Background()

	cases := []struct {
		name string
		req  PlanRequest
	}{
		{"empty sites", PlanRequest{}},
		{"duplicate ids", PlanRequest{Sites: []site.Site{
			{ID: "a", Lat: 30, Lon: -91, ServiceMinutes: 60},
			{ID: "a", Lat: 31, Lon: -91, ServiceMinutes: 60},
		}}},
		{"bad coordinates", PlanRequest{Sites: []site.Site{
			{ID: "a", Lat: 95, Lon: -91, ServiceMinutes: 60},
		}}},
		{"negative break", PlanRequest{
			Sites:        batonRougeSites(1, 60),
			BreakMinutes: -10,
		}},
		{"workday ends before start", PlanRequest{
			Sites: batonRougeSites(1, 60),
			TeamConfig: TeamConfig{Teams: 1, Workday: Workday{
				Start: Clock{Hour: 17}, End: Clock{Hour: 8},
			}},
		}},
		{"end before start", func() PlanRequest {
			end := mustDate(t, "2026-03-01")
			return PlanRequest{
				Sites:     batonRougeSites(1, 60),
				StartDate: mustDate(t, monday),
				EndDate:   &end,
			}
		}()},
		{"clusters without assignments", PlanRequest{
			Sites:       []site.Site{{ID: "a", Lat: 30, Lon: -91, ServiceMinutes: 60}},
			UseClusters: true,
		}},
		{"negative cluster id", PlanRequest{
			Sites:       []site.Site{{ID: "a", Lat: 30, Lon: -91, ServiceMinutes: 60, ClusterID: site.ClusterRef(-1)}},
			UseClusters: true,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pl.Plan(ctx, tc.req)
			if !IsKind(err, KindInvalidRequest) {
				t.Errorf("expected InvalidRequest, got %v", err)
			}
		})
	}
}

func TestPlan_MissingClusterIDOverJSON(t *testing.T) {
	// A cluster id omitted on the wire must decode to nil, not cluster
	// zero, and a use_clusters request carrying such a site must fail
	// validation instead of being folded into cluster 0.
	raw := `{
		"sites": [
			{"id": "a", "lat": 38.90, "lon": -77.03, "service_minutes": 60, "cluster_id": 0},
			{"id": "b", "lat": 38.91, "lon": -77.04, "service_minutes": 60}
		],
		"team_config": {"teams": 1},
		"use_clusters": true,
		"start_date": "2026-03-02",
		"fast_mode": true
	}`

	var req PlanRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Sites[0].ClusterID == nil || *req.Sites[0].ClusterID != 0 {
		t.Fatalf("explicit cluster 0 lost in decode: %v", req.Sites[0].ClusterID)
	}
	if req.Sites[1].ClusterID != nil {
		t.Fatalf("omitted cluster id decoded to %d, want nil", *req.Sites[1].ClusterID)
	}

	_, err := testPlanner().Plan(context.Background(), req)
	if !IsKind(err, KindInvalidRequest) {
		t.Fatalf("expected InvalidRequest for the unclustered site, got %v", err)
	}
}

func TestPlan_SingleDayTwoRegions(t *testing.T) {
	// 7 spread Baton Rouge sites and 8 co-located Charlotte sites, one
	// hour each: with crew minimization two crews cover everything in a
	// single day, one region per crew.
	sites := append(batonRougeSites(7, 60), colocatedSites("clt", 8, 60, 35.2271, -80.8431)...)
	req := PlanRequest{
		Sites:         sites,
		TeamConfig:    TeamConfig{Teams: 2},
		StartDate:     mustDate(t, monday),
		FastMode:      true,
		MinimizeCrews: true,
	}

	result, err := testPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, sites, result)
	checkOrdering(t, result)

	if result.Unassigned != 0 {
		t.Fatalf("expected full coverage, %d unassigned", result.Unassigned)
	}
	if len(result.TeamDays) != 2 {
		t.Fatalf("expected 2 team days, got %d", len(result.TeamDays))
	}
	if result.StartDate != result.EndDate {
		t.Errorf("expected a single-day plan, got %s..%s", result.StartDate, result.EndDate)
	}
	for _, td := range result.TeamDays {
		region := td.SiteIDs[0][:2]
		for _, id := range td.SiteIDs {
			if id[:2] != region {
				t.Errorf("team day %s mixes regions: %v", td.TeamID, td.SiteIDs)
			}
		}
		if td.RouteMinutes > DefaultMaxRouteMinutes {
			t.Errorf("team day %s exceeds budget: %d", td.TeamID, td.RouteMinutes)
		}
	}
}

func TestPlan_HolidayExclusion(t *testing.T) {
	// Enough work to spill across several days starting New Year's Day
	// 2025 (Wed); the first Monday is a holiday. No team day may land on
	// Jan 4 (Sat), Jan 5 (Sun) or Jan 6 (holiday).
	sites := colocatedSites("il", 80, 60, 41.88, -87.63)
	req := PlanRequest{
		Sites:      sites,
		TeamConfig: TeamConfig{Teams: 2},
		StartDate:  mustDate(t, "2025-01-01"),
		Holidays:   []Date{mustDate(t, "2025-01-06")},
		FastMode:   true,
	}

	result, err := testPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, sites, result)

	blocked := map[string]bool{"2025-01-04": true, "2025-01-05": true, "2025-01-06": true}
	for _, td := range result.TeamDays {
		if blocked[td.Date.String()] {
			t.Errorf("team day scheduled on excluded date %s", td.Date)
		}
		if td.Date.IsWeekend() {
			t.Errorf("team day scheduled on weekend %s", td.Date)
		}
	}
}

func TestPlan_CapacitySaturation(t *testing.T) {
	// 50 sites, 3 crews, 8 stop cap: at most 24 sites per day, so the
	// schedule must span at least 3 work days.
	sites := colocatedSites("bat", 50, 15, 30.45, -91.18)
	req := PlanRequest{
		Sites:      sites,
		TeamConfig: TeamConfig{Teams: 3},
		StartDate:  mustDate(t, monday),
		FastMode:   true,
	}

	result, err := testPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, sites, result)
	checkOrdering(t, result)

	perDay := make(map[Date]int)
	for _, td := range result.TeamDays {
		if len(td.SiteIDs) > DefaultMaxSitesPerCrew {
			t.Errorf("team day %s has %d stops", td.TeamID, len(td.SiteIDs))
		}
		perDay[td.Date] += len(td.SiteIDs)
	}
	for d, n := range perDay {
		if n > 24 {
			t.Errorf("%s schedules %d sites, cap is 24", d, n)
		}
	}
	if len(perDay) < 3 {
		t.Errorf("expected at least a 3 day span, got %d days", len(perDay))
	}
}

// stalledSolver never schedules anything, driving the stall counter.
type stalledSolver struct{}

func (stalledSolver) SolveDay(_ context.Context, sites []site.Site, _ solver.Params) (*solver.DayPlan, error) {
	return &solver.DayPlan{Unassigned: sites}, nil
}

func (stalledSolver) Name() string { return "stalled" }

func TestPlan_ProgressFailure(t *testing.T) {
	pl := New(Config{
		Logger:     zerolog.Nop(),
		FastSolver: stalledSolver{},
		FullSolver: stalledSolver{},
	})

	req := PlanRequest{
		Sites:      batonRougeSites(10, 60),
		TeamConfig: TeamConfig{Teams: 1},
		StartDate:  mustDate(t, monday),
		FastMode:   true,
	}

	_, err := pl.Plan(context.Background(), req)
	if !IsKind(err, KindProgressFailure) {
		t.Fatalf("expected ProgressFailure, got %v", err)
	}

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatal("expected *Error")
	}
	if pe.SitesRemaining != 10 || pe.ConsecutiveDays < defaultStallThreshold || pe.Crews != 1 {
		t.Errorf("unexpected failure context: %+v", pe)
	}
	if pe.SitesScheduledToday != 0 {
		t.Errorf("expected zero sites scheduled today, got %d", pe.SitesScheduledToday)
	}
	if len(pe.Recommendations) == 0 {
		t.Error("expected relaxation recommendations")
	}
}

func TestPlan_PartialPlanWithMinimizeCrews(t *testing.T) {
	pl := New(Config{
		Logger:     zerolog.Nop(),
		FastSolver: stalledSolver{},
		FullSolver: stalledSolver{},
	})

	sites := batonRougeSites(6, 60)
	req := PlanRequest{
		Sites:         sites,
		TeamConfig:    TeamConfig{Teams: 1},
		StartDate:     mustDate(t, monday),
		FastMode:      true,
		MinimizeCrews: true,
	}

	result, err := pl.Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("partial plan should be returned, not thrown: %v", err)
	}
	if result.Unassigned != len(sites) {
		t.Errorf("expected %d unassigned, got %d", len(sites), result.Unassigned)
	}
	checkCoverage(t, sites, result)
}

func TestPlan_OversizedServiceBecomesUnassigned(t *testing.T) {
	sites := batonRougeSites(3, 60)
	sites[0].ServiceMinutes = 900 // cannot fit any day

	req := PlanRequest{
		Sites:      sites,
		TeamConfig: TeamConfig{Teams: 1},
		StartDate:  mustDate(t, monday),
		FastMode:   true,
	}

	result, err := testPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkCoverage(t, sites, result)
	if result.Unassigned != 1 || result.UnassignedSiteIDs[0] != sites[0].ID {
		t.Errorf("expected the oversized site unassigned, got %v", result.UnassignedSiteIDs)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	sites := batonRougeSites(12, 45)
	req := PlanRequest{
		Sites:      sites,
		TeamConfig: TeamConfig{Teams: 2},
		StartDate:  mustDate(t, monday),
		FastMode:   true,
	}

	a, err := testPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := testPlanner().Plan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Identical apart from the per-plan id.
	a.PlanID, b.PlanID = "", ""
	if !reflect.DeepEqual(a, b) {
		t.Error("planning the same request twice produced different results")
	}
}
