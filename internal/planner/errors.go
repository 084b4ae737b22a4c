package planner

import (
	"errors"
	"fmt"
)

// Kind tags a planner error with its §-taxonomy category.
type Kind string

// Planner error kinds.
const (
	// KindInvalidRequest marks inputs that fail boundary validation.
	KindInvalidRequest Kind = "invalid_request"
	// KindSolverError marks internal solver failures (time-oracle errors);
	// retryable.
	KindSolverError Kind = "solver_error"
	// KindProgressFailure marks a multi-day loop that scheduled nothing
	// for too many consecutive work days.
	KindProgressFailure Kind = "progress_failure"
	// KindCalendarInfeasible marks a calendar plan that failed even after
	// exhausting crew-buffer retries.
	KindCalendarInfeasible Kind = "calendar_infeasible"
	// KindPartialPlan marks a fixed-crew result with unassigned sites; it
	// accompanies a returned result rather than replacing it.
	KindPartialPlan Kind = "partial_plan"
)

// Error is the structured planner error. It carries a kind, a message,
// machine-readable context for the stall case, and suggested relaxations
// for display by the caller.
type Error struct {
	Kind            Kind
	Message         string
	Recommendations []string

	// Progress-failure context.
	SitesRemaining      int
	SitesScheduledToday int
	Unassigned          int
	ConsecutiveDays     int
	Crews               int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the planner error kind, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err is a planner error of the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// invalidRequest builds an InvalidRequest error.
func invalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// solverError wraps a failure from the single-day solver.
func solverError(err error) *Error {
	return &Error{
		Kind:    KindSolverError,
		Message: "single-day solver failed",
		Err:     err,
	}
}

// progressFailure builds the stall error with its structured context and
// the standard relaxation suggestions.
func progressFailure(remaining, scheduledToday, unassigned, consecutiveDays, crews int, req PlanRequest) *Error {
	return &Error{
		Kind: KindProgressFailure,
		Message: fmt.Sprintf(
			"no progress with %d crews after %d consecutive work days; %d sites remaining",
			crews, consecutiveDays, remaining,
		),
		SitesRemaining:      remaining,
		SitesScheduledToday: scheduledToday,
		Unassigned:          unassigned,
		ConsecutiveDays:     consecutiveDays,
		Crews:               crews,
		Recommendations: []string{
			fmt.Sprintf("increase max_route_minutes (current: %d)", req.MaxRouteMinutes),
			fmt.Sprintf("decrease service_minutes_per_site (current: %d)", req.ServiceMinutesPerSite),
			fmt.Sprintf("add a crew (current: %d)", crews),
			"disable fast mode for better optimization",
			"enable clustering to keep routes local",
		},
	}
}
