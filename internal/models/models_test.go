package models

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestScheduleValidate(t *testing.T) {
	base := Schedule{
		OpenTime:    "09:00",
		CloseTime:   "18:00",
		SlotMinutes: 30,
	}

	t.Run("valid without break", func(t *testing.T) {
		s := base
		if err := s.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("close before open", func(t *testing.T) {
		s := base
		s.CloseTime = "08:00"
		if err := s.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("break must be inside working hours", func(t *testing.T) {
		s := base
		s.BreakStart = "08:00"
		s.BreakEnd = "10:00"
		if err := s.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("valid break", func(t *testing.T) {
		s := base
		s.BreakStart = "13:00"
		s.BreakEnd = "14:00"
		if err := s.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("zero slot duration", func(t *testing.T) {
		s := base
		s.SlotMinutes = 0
		if err := s.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestWorkingDaysRoundTrip(t *testing.T) {
	days := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	encoded := EncodeWorkingDays(days)
	decoded := DecodeWorkingDays(encoded)
	if len(decoded) != 3 {
		t.Fatalf("got %d days, want 3", len(decoded))
	}
	for i, d := range days {
		if decoded[i] != d {
			t.Errorf("day %d = %v, want %v", i, decoded[i], d)
		}
	}
}

func TestDecodeRangesSkipsMalformed(t *testing.T) {
	ranges := DecodeRanges("09:00-13:00;bogus;14:00-12:00;14:00-18:00")
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	if ranges[0].Start != "09:00" || ranges[1].End != "18:00" {
		t.Errorf("unexpected ranges: %+v", ranges)
	}
}

func TestAppointmentOverlaps(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	appt := Appointment{StartTime: start, DurationMin: 30}

	tests := []struct {
		name     string
		start    time.Time
		duration int
		want     bool
	}{
		{"identical interval", start, 30, true},
		{"contained", start.Add(10 * time.Minute), 10, true},
		{"partial head overlap", start.Add(-15 * time.Minute), 30, true},
		{"partial tail overlap", start.Add(15 * time.Minute), 30, true},
		{"touching before", start.Add(-30 * time.Minute), 30, false},
		{"touching after", start.Add(30 * time.Minute), 30, false},
		{"disjoint", start.Add(2 * time.Hour), 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := appt.Overlaps(tt.start, tt.duration); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanMonthlyLimit(t *testing.T) {
	if got := PlanFree.MonthlyLimit(); got != 20 {
		t.Errorf("free limit = %d, want 20", got)
	}
	if got := PlanStarter.MonthlyLimit(); got != 60 {
		t.Errorf("starter limit = %d, want 60", got)
	}
	if got := PlanBusiness.MonthlyLimit(); got != UnlimitedAppointments {
		t.Errorf("business limit = %d, want unlimited", got)
	}
	if got := Plan("unknown").MonthlyLimit(); got != 20 {
		t.Errorf("unknown plan limit = %d, want free tier fallback", got)
	}
}
