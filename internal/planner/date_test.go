package planner

import (
	"encoding/json"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestParseDate(t *testing.T) {
	d := mustDate(t, "2025-01-01")
	if d.Year != 2025 || d.Month != time.January || d.Day != 1 {
		t.Errorf("unexpected date: %+v", d)
	}
	if d.Weekday() != time.Wednesday {
		t.Errorf("2025-01-01 is a Wednesday, got %v", d.Weekday())
	}
	if _, err := ParseDate("01/01/2025"); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestDateArithmetic(t *testing.T) {
	d := mustDate(t, "2025-01-31")
	if got := d.AddDays(1).String(); got != "2025-02-01" {
		t.Errorf("expected 2025-02-01, got %s", got)
	}
	if !mustDate(t, "2025-01-01").Before(d) {
		t.Error("Before comparison failed")
	}
	if !d.After(mustDate(t, "2025-01-01")) {
		t.Error("After comparison failed")
	}
}

func TestDateJSON(t *testing.T) {
	d := mustDate(t, "2026-02-02")
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"2026-02-02"` {
		t.Errorf("unexpected encoding: %s", raw)
	}

	var back Date
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != d {
		t.Errorf("round trip mismatch: %v vs %v", back, d)
	}
}

func TestClock(t *testing.T) {
	c, err := ParseClock("08:30:00")
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	if c.Minutes() != 510 {
		t.Errorf("expected 510 minutes, got %d", c.Minutes())
	}

	short, err := ParseClock("17:00")
	if err != nil {
		t.Fatalf("parse short clock: %v", err)
	}
	w := Workday{Start: c, End: short}
	if w.Minutes() != 510 {
		t.Errorf("expected 510 minute workday, got %d", w.Minutes())
	}
}

func TestWorkDaysBetween(t *testing.T) {
	// 2025-01-01 (Wed) through 2025-01-10 (Fri) with Monday the 6th as a
	// holiday: Wed, Thu, Fri, Tue, Wed, Thu, Fri.
	holidays := holidaySet([]Date{mustDate(t, "2025-01-06")})
	days := workDaysBetween(mustDate(t, "2025-01-01"), mustDate(t, "2025-01-10"), holidays)

	if len(days) != 7 {
		t.Fatalf("expected 7 work days, got %d: %v", len(days), days)
	}
	for _, d := range days {
		if d.IsWeekend() {
			t.Errorf("weekend date %s in work days", d)
		}
		if d == mustDate(t, "2025-01-06") {
			t.Errorf("holiday %s in work days", d)
		}
	}
}
