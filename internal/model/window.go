package model

import (
	"fmt"
	"time"
)

// IntervalType is the unit of the default import window.
type IntervalType string

const (
	IntervalDay   IntervalType = "day"
	IntervalWeek  IntervalType = "week"
	IntervalMonth IntervalType = "month"
)

// Window is an inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow computes the window ending today for count intervals of the
// given type.
func NewWindow(kind IntervalType, count int, today time.Time) (Window, error) {
	if count < 1 {
		return Window{}, fmt.Errorf("interval count must be positive, got %d", count)
	}
	end := Day(today)
	var start time.Time
	switch kind {
	case IntervalDay:
		start = end.AddDate(0, 0, -count)
	case IntervalWeek:
		// Monday of the current week, then whole weeks back.
		offset := (int(end.Weekday()) + 6) % 7
		start = end.AddDate(0, 0, -offset-7*(count-1))
	case IntervalMonth:
		start = MonthOf(end).AddDate(0, -(count - 1), 0)
	default:
		return Window{}, fmt.Errorf("unknown interval type %q", kind)
	}
	return Window{Start: start, End: end}, nil
}

// Contains reports whether d is within the window, bounds included.
func (w Window) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Filter classifies d against the window.
func (w Window) Filter(d time.Time) DateFilter {
	if w.Contains(d) {
		return FilterCurrent
	}
	return FilterPrevious
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format(DateFormat), w.End.Format(DateFormat))
}

// DateFormat is the canonical date layout used across the tool.
const DateFormat = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
