// Package availability turns schedule configuration into concrete
// bookable slots for a calendar date.
package availability

import (
	"sort"
	"time"

	"zapis/internal/models"
)

// Window is a concrete [start, end) open interval on a date.
type Window struct {
	Start time.Time
	End   time.Time
}

// Day reasons returned when a date yields no windows. These are
// valid "no availability" results, not errors.
const (
	ReasonInactive   = "schedule is not active"
	ReasonDayOff     = "day is not available"
	ReasonClosed     = "closed for this date"
	ReasonTooFar     = "date is beyond the booking horizon"
	ReasonTooSoon    = "date is inside the minimum notice period"
	ReasonNoOverride = "no working hours configured for this day"

	// ReasonSlotTaken is the occupancy verdict from CheckSlot; the
	// booking service maps it to its conflict error.
	ReasonSlotTaken = "slot is already booked"
)

// DayWindows is the effective set of open windows for a date.
type DayWindows struct {
	Windows []Window
	Reason  string
}

// Empty reports whether the date is not bookable at all.
func (d DayWindows) Empty() bool {
	return len(d.Windows) == 0
}

// ResolveDay folds weekly defaults, weekday overrides and closures
// into the open windows for a date. The date must carry the tenant's
// location; windows come back in the same location.
func ResolveDay(sched *models.Schedule, override *models.DayOverride, closures []models.Closure, date time.Time) DayWindows {
	if !sched.IsActive {
		return DayWindows{Reason: ReasonInactive}
	}

	var windows []Window

	if sched.UseOverrides {
		// Overrides are self-contained: their ranges are used
		// verbatim and the default break window does not apply.
		if override == nil || !override.Active {
			return DayWindows{Reason: ReasonNoOverride}
		}
		for _, r := range override.Ranges {
			start, end := r.On(date)
			windows = append(windows, Window{Start: start, End: end})
		}
		// Stored ranges carry no ordering guarantee; slot generation
		// needs disjoint chronological windows.
		windows = mergeSorted(windows)
	} else {
		if !sched.WorksOn(date.Weekday()) {
			return DayWindows{Reason: ReasonDayOff}
		}
		open := models.ClockOnDate(date, sched.OpenTime)
		closeAt := models.ClockOnDate(date, sched.CloseTime)
		if sched.HasBreak() {
			breakStart := models.ClockOnDate(date, sched.BreakStart)
			breakEnd := models.ClockOnDate(date, sched.BreakEnd)
			if breakStart.After(open) && breakEnd.Before(closeAt) {
				windows = append(windows,
					Window{Start: open, End: breakStart},
					Window{Start: breakEnd, End: closeAt},
				)
			} else {
				windows = append(windows, Window{Start: open, End: closeAt})
			}
		} else {
			windows = append(windows, Window{Start: open, End: closeAt})
		}
	}

	for _, c := range closures {
		if !c.CoversDate(date) {
			continue
		}
		if c.FullDay || c.StartTime == "" || c.EndTime == "" {
			reason := ReasonClosed
			if c.Reason != "" {
				reason = c.Reason
			}
			return DayWindows{Reason: reason}
		}
		// Time-bounded closure: carve its window out of the day.
		windows = subtract(windows, models.ClockOnDate(date, c.StartTime), models.ClockOnDate(date, c.EndTime))
	}

	if len(windows) == 0 {
		return DayWindows{Reason: ReasonClosed}
	}
	return DayWindows{Windows: windows}
}

// mergeSorted sorts windows by start and merges any that touch or
// overlap, yielding a disjoint ascending list.
func mergeSorted(windows []Window) []Window {
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	var merged []Window
	for _, w := range windows {
		if n := len(merged); n > 0 && !w.Start.After(merged[n-1].End) {
			if w.End.After(merged[n-1].End) {
				merged[n-1].End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// subtract removes [from, to) from every window, splitting where needed.
func subtract(windows []Window, from, to time.Time) []Window {
	var result []Window
	for _, w := range windows {
		if !from.Before(w.End) || !to.After(w.Start) {
			result = append(result, w)
			continue
		}
		if from.After(w.Start) {
			result = append(result, Window{Start: w.Start, End: from})
		}
		if to.Before(w.End) {
			result = append(result, Window{Start: to, End: w.End})
		}
	}
	return result
}
