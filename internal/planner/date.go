package planner

import (
	"encoding/json"
	"fmt"
	"time"
)

// dateLayout is the wire format for dates.
const dateLayout = "2006-01-02"

// Date is a timezone-naive calendar date. The planner operates in a single
// implicit local time zone chosen by the caller.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf extracts the calendar date from a time.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Today returns the current calendar date in local time.
func Today() Date { return DateOf(time.Now()) }

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.time().Format(dateLayout) }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d == Date{} }

// Weekday returns the day of week.
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// IsWeekend reports whether the date falls on Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// AddDays returns the date n calendar days later (or earlier for negative n).
func (d Date) AddDays(n int) Date { return DateOf(d.time().AddDate(0, 0, n)) }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.time().Before(other.time()) }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.time().After(other.time()) }

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

// UnmarshalJSON decodes a YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Clock is a minute-precision time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses HH:MM:SS or HH:MM.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
		if err != nil {
			return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
		}
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// String formats the clock as HH:MM:SS.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:00", c.Hour, c.Minute)
}

// MarshalJSON encodes the clock as an HH:MM:SS string.
func (c Clock) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// UnmarshalJSON decodes an HH:MM:SS or HH:MM string.
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Workday is the daily working window.
type Workday struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Minutes is the length of the working window.
func (w Workday) Minutes() int { return w.End.Minutes() - w.Start.Minutes() }

// holidaySet indexes holiday dates for constant-time lookups.
func holidaySet(holidays []Date) map[Date]struct{} {
	set := make(map[Date]struct{}, len(holidays))
	for _, h := range holidays {
		set[h] = struct{}{}
	}
	return set
}

// isWorkDay reports whether the date is neither a weekend nor a holiday.
func isWorkDay(d Date, holidays map[Date]struct{}) bool {
	if d.IsWeekend() {
		return false
	}
	_, holiday := holidays[d]
	return !holiday
}

// workDaysBetween lists the work days in [start, end], inclusive.
func workDaysBetween(start, end Date, holidays map[Date]struct{}) []Date {
	var days []Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		if isWorkDay(d, holidays) {
			days = append(days, d)
		}
	}
	return days
}
