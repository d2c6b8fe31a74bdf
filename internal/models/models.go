package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Plan identifies a tenant subscription tier.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// UnlimitedAppointments marks a plan with no monthly ceiling.
const UnlimitedAppointments = -1

// planLimits maps each plan to its monthly appointment ceiling.
// The billing collaborator owns which plan a tenant is on; the
// ceilings themselves are engine configuration.
var planLimits = map[Plan]int{
	PlanFree:     20,
	PlanStarter:  60,
	PlanPro:      200,
	PlanBusiness: UnlimitedAppointments,
}

// MonthlyLimit returns the appointment ceiling for a plan.
// Unknown plans fall back to the free tier.
func (p Plan) MonthlyLimit() int {
	if limit, ok := planLimits[p]; ok {
		return limit
	}
	return planLimits[PlanFree]
}

// Tenant is a business account owning schedules and appointments.
type Tenant struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	PublicID          string    `json:"public_id"`
	Plan              Plan      `json:"plan"`
	OnlineBooking     bool      `json:"online_booking"`
	AutoConfirm       bool      `json:"auto_confirm"`
	RemindersEnabled  bool      `json:"reminders_enabled"`
	ReminderLeadHours int       `json:"reminder_lead_hours"`
	Timezone          string    `json:"timezone"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Location resolves the tenant's IANA timezone, defaulting to UTC.
func (t *Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TimeRange is a [start, end) window within a day, "HH:MM" bounds.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks bounds parse and start < end.
func (r TimeRange) Validate() error {
	start, err := ParseClock(r.Start)
	if err != nil {
		return fmt.Errorf("invalid range start: %w", err)
	}
	end, err := ParseClock(r.End)
	if err != nil {
		return fmt.Errorf("invalid range end: %w", err)
	}
	if end <= start {
		return fmt.Errorf("range end %s must be after start %s", r.End, r.Start)
	}
	return nil
}

// On places the range bounds on a concrete date in the date's location.
func (r TimeRange) On(date time.Time) (time.Time, time.Time) {
	return ClockOnDate(date, r.Start), ClockOnDate(date, r.End)
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour*60 + minute, nil
}

// ClockOnDate places an "HH:MM" value on a date. Invalid input
// yields midnight; callers validate ranges before using them.
func ClockOnDate(date time.Time, clock string) time.Time {
	minutes, err := ParseClock(clock)
	if err != nil {
		minutes = 0
	}
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, date.Location())
}

// Schedule is a bookable resource with weekly working-hours rules.
type Schedule struct {
	ID             int64          `json:"id"`
	TenantID       int64          `json:"tenant_id"`
	Name           string         `json:"name"`
	WorkingDays    []time.Weekday `json:"working_days"`
	OpenTime       string         `json:"open_time"`
	CloseTime      string         `json:"close_time"`
	SlotMinutes    int            `json:"slot_minutes"`
	BufferMinutes  int            `json:"buffer_minutes"`
	BreakStart     string         `json:"break_start,omitempty"`
	BreakEnd       string         `json:"break_end,omitempty"`
	UseOverrides   bool           `json:"use_overrides"`
	MaxAdvanceDays int            `json:"max_advance_days"`
	MinNoticeHours int            `json:"min_notice_hours"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// WorksOn reports whether the weekday is in the working-days set.
func (s *Schedule) WorksOn(day time.Weekday) bool {
	for _, d := range s.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}

// HasBreak reports whether a break window is configured.
func (s *Schedule) HasBreak() bool {
	return s.BreakStart != "" && s.BreakEnd != ""
}

// Validate enforces the schedule invariants: close after open,
// positive slot duration, break strictly inside the open window.
func (s *Schedule) Validate() error {
	open, err := ParseClock(s.OpenTime)
	if err != nil {
		return fmt.Errorf("open_time: %w", err)
	}
	closeAt, err := ParseClock(s.CloseTime)
	if err != nil {
		return fmt.Errorf("close_time: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("close_time %s must be after open_time %s", s.CloseTime, s.OpenTime)
	}
	if s.SlotMinutes <= 0 {
		return fmt.Errorf("slot_minutes must be positive")
	}
	if s.BufferMinutes < 0 {
		return fmt.Errorf("buffer_minutes must not be negative")
	}
	if s.HasBreak() {
		bs, err := ParseClock(s.BreakStart)
		if err != nil {
			return fmt.Errorf("break_start: %w", err)
		}
		be, err := ParseClock(s.BreakEnd)
		if err != nil {
			return fmt.Errorf("break_end: %w", err)
		}
		if be <= bs {
			return fmt.Errorf("break_end must be after break_start")
		}
		if bs <= open || be >= closeAt {
			return fmt.Errorf("break window must lie strictly inside working hours")
		}
	}
	return nil
}

// EncodeWorkingDays joins weekdays for storage ("1,2,3,4,5").
func EncodeWorkingDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

// DecodeWorkingDays parses the stored weekday set.
func DecodeWorkingDays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// DayOverride replaces the default window for one weekday with
// explicit ranges. An inactive override means the day is closed.
type DayOverride struct {
	ID         int64        `json:"id"`
	ScheduleID int64        `json:"schedule_id"`
	Weekday    time.Weekday `json:"weekday"`
	Active     bool         `json:"active"`
	Ranges     []TimeRange  `json:"ranges"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// EncodeRanges serializes ranges as "09:00-13:00;14:00-18:00".
func EncodeRanges(ranges []TimeRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.Start + "-" + r.End
	}
	return strings.Join(parts, ";")
}

// DecodeRanges parses the stored range list, skipping malformed entries.
func DecodeRanges(s string) []TimeRange {
	if s == "" {
		return nil
	}
	var ranges []TimeRange
	for _, part := range strings.Split(s, ";") {
		bounds := strings.SplitN(strings.TrimSpace(part), "-", 2)
		if len(bounds) != 2 {
			continue
		}
		r := TimeRange{Start: bounds[0], End: bounds[1]}
		if r.Validate() != nil {
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}

// Closure is a date range during which a schedule takes no bookings.
type Closure struct {
	ID         int64     `json:"id"`
	ScheduleID int64     `json:"schedule_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	FullDay    bool      `json:"full_day"`
	StartTime  string    `json:"start_time,omitempty"`
	EndTime    string    `json:"end_time,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CoversDate reports whether the closure spans the given calendar date.
func (c *Closure) CoversDate(date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	start := time.Date(c.StartDate.Year(), c.StartDate.Month(), c.StartDate.Day(), 0, 0, 0, 0, date.Location())
	end := time.Date(c.EndDate.Year(), c.EndDate.Month(), c.EndDate.Day(), 0, 0, 0, 0, date.Location())
	return !day.Before(start) && !day.After(end)
}

// Service is a bookable offering with its own duration and price.
type Service struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	Name        string    `json:"name"`
	DurationMin int       `json:"duration_min"`
	PriceCents  int64     `json:"price_cents"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Agent is a staff member bookable independently on a shared schedule.
type Agent struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is a committed reservation. DurationMin is copied from
// the service at creation and never re-derived from later service edits.
type Appointment struct {
	ID          int64     `json:"id"`
	PublicRef   string    `json:"public_ref"`
	TenantID    int64     `json:"tenant_id"`
	ScheduleID  int64     `json:"schedule_id"`
	AgentID     *int64    `json:"agent_id,omitempty"`
	ServiceID   *int64    `json:"service_id,omitempty"`
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone,omitempty"`
	StartTime   time.Time `json:"start_time"`
	DurationMin int       `json:"duration_min"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EndTime returns the exclusive end of the appointment interval.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Overlaps tests the appointment against a candidate [start, start+duration)
// interval using half-open semantics: s < a.end && s+d > a.start.
func (a *Appointment) Overlaps(start time.Time, durationMin int) bool {
	end := start.Add(time.Duration(durationMin) * time.Minute)
	return start.Before(a.EndTime()) && end.After(a.StartTime)
}
