package availability

import (
	"testing"
	"time"

	"zapis/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weekdaySchedule() *models.Schedule {
	return &models.Schedule{
		ID:          1,
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		OpenTime:    "09:00",
		CloseTime:   "18:00",
		SlotMinutes: 30,
		IsActive:    true,
	}
}

func TestResolveDayDefaults(t *testing.T) {
	monday := date(2026, 3, 2) // a Monday

	t.Run("working day yields one window", func(t *testing.T) {
		day := ResolveDay(weekdaySchedule(), nil, nil, monday)
		if day.Empty() {
			t.Fatalf("expected windows, got reason %q", day.Reason)
		}
		if len(day.Windows) != 1 {
			t.Fatalf("got %d windows, want 1", len(day.Windows))
		}
		w := day.Windows[0]
		if w.Start.Hour() != 9 || w.End.Hour() != 18 {
			t.Errorf("window = %v..%v, want 09:00..18:00", w.Start, w.End)
		}
	})

	t.Run("day off", func(t *testing.T) {
		sunday := date(2026, 3, 1)
		day := ResolveDay(weekdaySchedule(), nil, nil, sunday)
		if !day.Empty() || day.Reason != ReasonDayOff {
			t.Errorf("got %+v, want empty with day-off reason", day)
		}
	})

	t.Run("inactive schedule", func(t *testing.T) {
		sched := weekdaySchedule()
		sched.IsActive = false
		day := ResolveDay(sched, nil, nil, monday)
		if !day.Empty() || day.Reason != ReasonInactive {
			t.Errorf("got %+v, want empty with inactive reason", day)
		}
	})

	t.Run("break splits the window", func(t *testing.T) {
		sched := weekdaySchedule()
		sched.BreakStart = "13:00"
		sched.BreakEnd = "14:00"
		day := ResolveDay(sched, nil, nil, monday)
		if len(day.Windows) != 2 {
			t.Fatalf("got %d windows, want 2", len(day.Windows))
		}
		if day.Windows[0].End.Hour() != 13 || day.Windows[1].Start.Hour() != 14 {
			t.Errorf("unexpected windows: %+v", day.Windows)
		}
	})
}

func TestResolveDayOverrides(t *testing.T) {
	monday := date(2026, 3, 2)
	sched := weekdaySchedule()
	sched.UseOverrides = true
	sched.BreakStart = "13:00"
	sched.BreakEnd = "14:00"

	t.Run("missing override means no hours", func(t *testing.T) {
		day := ResolveDay(sched, nil, nil, monday)
		if !day.Empty() || day.Reason != ReasonNoOverride {
			t.Errorf("got %+v, want empty with no-override reason", day)
		}
	})

	t.Run("inactive override closes the day", func(t *testing.T) {
		o := &models.DayOverride{Weekday: time.Monday, Active: false}
		day := ResolveDay(sched, o, nil, monday)
		if !day.Empty() {
			t.Errorf("expected empty day, got %+v", day)
		}
	})

	t.Run("ranges stored out of order come back chronological", func(t *testing.T) {
		o := &models.DayOverride{
			Weekday: time.Monday,
			Active:  true,
			Ranges: []models.TimeRange{
				{Start: "16:00", End: "18:00"},
				{Start: "10:00", End: "12:00"},
			},
		}
		day := ResolveDay(sched, o, nil, monday)
		if len(day.Windows) != 2 {
			t.Fatalf("got %d windows, want 2", len(day.Windows))
		}
		if day.Windows[0].Start.Hour() != 10 || day.Windows[1].Start.Hour() != 16 {
			t.Fatalf("windows not ascending: %+v", day.Windows)
		}

		slots, err := GenerateSlots(day.Windows, 30, 0)
		if err != nil {
			t.Fatal(err)
		}
		for i := 1; i < len(slots); i++ {
			if !slots[i].Start.After(slots[i-1].Start) {
				t.Errorf("slot %d (%v) not after slot %d (%v)",
					i, slots[i].Start, i-1, slots[i-1].Start)
			}
		}
	})

	t.Run("overlapping ranges are merged", func(t *testing.T) {
		o := &models.DayOverride{
			Weekday: time.Monday,
			Active:  true,
			Ranges: []models.TimeRange{
				{Start: "10:00", End: "13:00"},
				{Start: "12:00", End: "15:00"},
			},
		}
		day := ResolveDay(sched, o, nil, monday)
		if len(day.Windows) != 1 {
			t.Fatalf("got %d windows, want 1 merged", len(day.Windows))
		}
		if day.Windows[0].Start.Hour() != 10 || day.Windows[0].End.Hour() != 15 {
			t.Errorf("merged window = %+v, want 10:00..15:00", day.Windows[0])
		}
	})

	t.Run("override ranges are used verbatim without the break", func(t *testing.T) {
		o := &models.DayOverride{
			Weekday: time.Monday,
			Active:  true,
			Ranges: []models.TimeRange{
				{Start: "10:00", End: "15:00"},
				{Start: "16:00", End: "20:00"},
			},
		}
		day := ResolveDay(sched, o, nil, monday)
		if len(day.Windows) != 2 {
			t.Fatalf("got %d windows, want 2", len(day.Windows))
		}
		// The 13:00-14:00 default break must not split an override range.
		if day.Windows[0].Start.Hour() != 10 || day.Windows[0].End.Hour() != 15 {
			t.Errorf("first window = %+v, want 10:00..15:00", day.Windows[0])
		}
	})
}

func TestResolveDayClosures(t *testing.T) {
	monday := date(2026, 3, 2)

	t.Run("full day closure empties the day with its reason", func(t *testing.T) {
		closures := []models.Closure{{
			StartDate: date(2026, 3, 1),
			EndDate:   date(2026, 3, 8),
			FullDay:   true,
			Reason:    "spring holidays",
		}}
		day := ResolveDay(weekdaySchedule(), nil, closures, monday)
		if !day.Empty() {
			t.Fatalf("expected empty day, got %d windows", len(day.Windows))
		}
		if day.Reason != "spring holidays" {
			t.Errorf("reason = %q, want the closure reason", day.Reason)
		}
	})

	t.Run("closure outside the date is ignored", func(t *testing.T) {
		closures := []models.Closure{{
			StartDate: date(2026, 3, 10),
			EndDate:   date(2026, 3, 12),
			FullDay:   true,
		}}
		day := ResolveDay(weekdaySchedule(), nil, closures, monday)
		if day.Empty() {
			t.Errorf("expected windows, got reason %q", day.Reason)
		}
	})

	t.Run("time bounded closure carves out a window", func(t *testing.T) {
		closures := []models.Closure{{
			StartDate: date(2026, 3, 2),
			EndDate:   date(2026, 3, 2),
			StartTime: "12:00",
			EndTime:   "15:00",
		}}
		day := ResolveDay(weekdaySchedule(), nil, closures, monday)
		if len(day.Windows) != 2 {
			t.Fatalf("got %d windows, want 2", len(day.Windows))
		}
		if day.Windows[0].End.Hour() != 12 || day.Windows[1].Start.Hour() != 15 {
			t.Errorf("unexpected windows: %+v", day.Windows)
		}
	})

	t.Run("closure covering all hours empties the day", func(t *testing.T) {
		closures := []models.Closure{{
			StartDate: date(2026, 3, 2),
			EndDate:   date(2026, 3, 2),
			StartTime: "08:00",
			EndTime:   "19:00",
		}}
		day := ResolveDay(weekdaySchedule(), nil, closures, monday)
		if !day.Empty() || day.Reason != ReasonClosed {
			t.Errorf("got %+v, want empty with closed reason", day)
		}
	})
}

func TestSubtract(t *testing.T) {
	monday := date(2026, 3, 2)
	at := func(h int) time.Time { return monday.Add(time.Duration(h) * time.Hour) }
	windows := []Window{{Start: at(9), End: at(18)}}

	t.Run("middle split", func(t *testing.T) {
		out := subtract(windows, at(12), at(13))
		if len(out) != 2 || !out[0].End.Equal(at(12)) || !out[1].Start.Equal(at(13)) {
			t.Errorf("unexpected result: %+v", out)
		}
	})

	t.Run("head trim", func(t *testing.T) {
		out := subtract(windows, at(8), at(11))
		if len(out) != 1 || !out[0].Start.Equal(at(11)) {
			t.Errorf("unexpected result: %+v", out)
		}
	})

	t.Run("tail trim", func(t *testing.T) {
		out := subtract(windows, at(16), at(20))
		if len(out) != 1 || !out[0].End.Equal(at(16)) {
			t.Errorf("unexpected result: %+v", out)
		}
	})

	t.Run("no overlap", func(t *testing.T) {
		out := subtract(windows, at(19), at(20))
		if len(out) != 1 {
			t.Errorf("unexpected result: %+v", out)
		}
	})
}
