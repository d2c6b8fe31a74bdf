package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zapis/internal/clock"
	"zapis/internal/database"
	"zapis/internal/models"
)

// ErrInvalidQuery marks a caller mistake in an availability query, as
// opposed to a store failure.
var ErrInvalidQuery = errors.New("invalid availability query")

// Store provides the schedule configuration and appointment reads.
type Store interface {
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetDayOverride(ctx context.Context, scheduleID int64, weekday time.Weekday) (*models.DayOverride, error)
	ListClosuresForDate(ctx context.Context, scheduleID int64, date time.Time) ([]models.Closure, error)
	ListDayAppointments(ctx context.Context, scheduleID int64, agentID *int64, date time.Time) ([]models.Appointment, error)
	IsAgentAssigned(ctx context.Context, scheduleID, agentID int64) (bool, error)
}

// Service is the availability read path: resolve windows, generate
// slots, mark occupancy.
type Service struct {
	store  Store
	clock  clock.Clock
	logger zerolog.Logger
}

// NewService creates the availability service.
func NewService(store Store, clk clock.Clock, logger *zerolog.Logger) *Service {
	return &Service{
		store:  store,
		clock:  clk,
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

// Query describes an availability request.
type Query struct {
	ScheduleID int64
	AgentID    *int64
	ServiceID  *int64
	Date       string // YYYY-MM-DD
}

// SlotView is a slot rendered for the API.
type SlotView struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

// DayAvailability is the result of an availability query.
type DayAvailability struct {
	Date   string     `json:"date"`
	Slots  []SlotView `json:"slots"`
	Reason string     `json:"reason,omitempty"`
}

// QueryDay returns the ordered slot list for a schedule and date.
// A date with no windows is a valid empty result carrying a reason.
func (s *Service) QueryDay(ctx context.Context, q Query) (*DayAvailability, error) {
	sched, err := s.store.GetSchedule(ctx, q.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	tenant, err := s.store.GetTenant(ctx, sched.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	loc := tenant.Location()
	date, err := time.ParseInLocation("2006-01-02", q.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrInvalidQuery, q.Date)
	}

	if q.AgentID != nil {
		assigned, err := s.store.IsAgentAssigned(ctx, sched.ID, *q.AgentID)
		if err != nil {
			return nil, fmt.Errorf("check agent assignment: %w", err)
		}
		if !assigned {
			return nil, fmt.Errorf("%w: agent %d is not assigned to schedule %d", ErrInvalidQuery, *q.AgentID, sched.ID)
		}
	}

	durationMin := sched.SlotMinutes
	if q.ServiceID != nil {
		svc, err := s.store.GetService(ctx, *q.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("get service: %w", err)
		}
		if svc.DurationMin > 0 {
			durationMin = svc.DurationMin
		}
	}

	now := s.clock.Now().In(loc)
	result := &DayAvailability{Date: q.Date, Slots: []SlotView{}}

	if reason := s.checkDateBounds(sched, date, now); reason != "" {
		result.Reason = reason
		return result, nil
	}

	day, err := s.resolveWindows(ctx, sched, date)
	if err != nil {
		return nil, err
	}
	if day.Empty() {
		result.Reason = day.Reason
		return result, nil
	}

	slots, err := GenerateSlots(day.Windows, durationMin, sched.BufferMinutes)
	if err != nil {
		return nil, err
	}

	appts, err := s.store.ListDayAppointments(ctx, sched.ID, q.AgentID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	slots = MarkOccupied(slots, appts)
	slots = MarkBeforeNotice(slots, now.Add(time.Duration(sched.MinNoticeHours)*time.Hour))

	for _, slot := range slots {
		result.Slots = append(result.Slots, SlotView{
			Start:     slot.Start.Format("15:04"),
			End:       slot.End.Format("15:04"),
			Available: slot.Available,
		})
	}
	return result, nil
}

// CheckSlot re-validates a proposed [start, start+duration) interval:
// inside an open window, past the notice bound, inside the horizon,
// and free of live appointments. It is side-effect-free; the commit
// in the booking service repeats the occupancy check transactionally.
func (s *Service) CheckSlot(ctx context.Context, scheduleID int64, agentID *int64, start time.Time, durationMin int) (bool, string, error) {
	sched, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return false, "", fmt.Errorf("get schedule: %w", err)
	}
	tenant, err := s.store.GetTenant(ctx, sched.TenantID)
	if err != nil {
		return false, "", fmt.Errorf("get tenant: %w", err)
	}
	if durationMin <= 0 {
		return false, "", fmt.Errorf("duration must be positive, got %d", durationMin)
	}

	loc := tenant.Location()
	start = start.In(loc)
	end := start.Add(time.Duration(durationMin) * time.Minute)
	now := s.clock.Now().In(loc)

	if agentID != nil {
		assigned, err := s.store.IsAgentAssigned(ctx, sched.ID, *agentID)
		if err != nil {
			return false, "", fmt.Errorf("check agent assignment: %w", err)
		}
		if !assigned {
			return false, "agent is not assigned to this schedule", nil
		}
	}

	if reason := s.checkDateBounds(sched, start, now); reason != "" {
		return false, reason, nil
	}
	if start.Before(now.Add(time.Duration(sched.MinNoticeHours) * time.Hour)) {
		return false, ReasonTooSoon, nil
	}

	day, err := s.resolveWindows(ctx, sched, start)
	if err != nil {
		return false, "", err
	}
	if day.Empty() {
		return false, day.Reason, nil
	}

	inside := false
	for _, w := range day.Windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			inside = true
			break
		}
	}
	if !inside {
		return false, "requested time is outside working hours", nil
	}

	appts, err := s.store.ListDayAppointments(ctx, sched.ID, agentID, start)
	if err != nil {
		return false, "", fmt.Errorf("list appointments: %w", err)
	}
	for i := range appts {
		if appts[i].Overlaps(start, durationMin) {
			return false, ReasonSlotTaken, nil
		}
	}
	return true, "", nil
}

// checkDateBounds applies the date-level horizon check and rejects
// dates whose entire day lies in the past. Returns "" when bookable.
func (s *Service) checkDateBounds(sched *models.Schedule, date, now time.Time) string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	if day.Before(today) {
		return ReasonTooSoon
	}
	if sched.MaxAdvanceDays > 0 && day.After(today.AddDate(0, 0, sched.MaxAdvanceDays)) {
		return ReasonTooFar
	}
	return ""
}

func (s *Service) resolveWindows(ctx context.Context, sched *models.Schedule, date time.Time) (DayWindows, error) {
	var override *models.DayOverride
	if sched.UseOverrides {
		o, err := s.store.GetDayOverride(ctx, sched.ID, date.Weekday())
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return DayWindows{}, fmt.Errorf("get day override: %w", err)
		}
		if err == nil {
			override = o
		}
	}

	closures, err := s.store.ListClosuresForDate(ctx, sched.ID, date)
	if err != nil {
		return DayWindows{}, fmt.Errorf("list closures: %w", err)
	}

	return ResolveDay(sched, override, closures, date), nil
}
