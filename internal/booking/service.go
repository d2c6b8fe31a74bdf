// Package booking is the engine write path: it authoritatively
// decides whether a proposed appointment may be committed, enforces
// tenant quotas and drives the appointment state machine.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapis/internal/availability"
	"zapis/internal/clock"
	"zapis/internal/database"
	"zapis/internal/events"
	"zapis/internal/metrics"
	"zapis/internal/models"
)

// Store is the persistence surface the booking service needs.
// *database.DB satisfies it.
type Store interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetTenantByPublicIDPrefix(ctx context.Context, prefix string) (*models.Tenant, error)
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetAgent(ctx context.Context, id int64) (*models.Agent, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to models.Status) error
	CountTenantAppointmentsBetween(ctx context.Context, tenantID int64, from, to time.Time) (int, error)
}

// SlotChecker re-validates a proposed interval against the schedule
// configuration and live occupancy.
type SlotChecker interface {
	CheckSlot(ctx context.Context, scheduleID int64, agentID *int64, start time.Time, durationMin int) (bool, string, error)
}

// Publisher hands appointment events to the notification collaborator.
type Publisher interface {
	Publish(event events.AppointmentEvent)
}

// Service validates and commits bookings.
type Service struct {
	store   Store
	checker SlotChecker
	quota   *QuotaEnforcer
	bus     Publisher
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewService creates the booking service.
func NewService(store Store, checker SlotChecker, quota *QuotaEnforcer, bus Publisher, clk clock.Clock, logger *zerolog.Logger) *Service {
	return &Service{
		store:   store,
		checker: checker,
		quota:   quota,
		bus:     bus,
		clock:   clk,
		logger:  logger.With().Str("component", "booking").Logger(),
	}
}

// CreateRequest is a proposed appointment.
type CreateRequest struct {
	TenantID    int64
	ScheduleID  int64
	AgentID     *int64
	ServiceID   *int64
	Date        string // YYYY-MM-DD
	Time        string // HH:MM
	DurationMin int    // optional; service duration or schedule default apply
	ClientName  string
	ClientPhone string
	Public      bool
}

// CreateResult is the committed appointment plus quota advisories.
type CreateResult struct {
	Appointment  *models.Appointment
	ServiceName  string
	AgentName    string
	QuotaUsed    int
	QuotaLimit   int
	NearingLimit bool
}

// resolved carries the outcome of the shared validation protocol.
type resolved struct {
	tenant      *models.Tenant
	sched       *models.Schedule
	start       time.Time
	durationMin int
	serviceName string
	agentName   string
}

// resolve runs the lookup and ownership part of the validation
// protocol shared by Create and Validate.
func (s *Service) resolve(ctx context.Context, req CreateRequest) (*resolved, error) {
	if req.Date == "" || req.Time == "" {
		return nil, validationf("date and time are required")
	}

	tenant, err := s.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, mapStoreErr(err, "tenant")
	}
	if !tenant.IsActive {
		return nil, fmt.Errorf("%w: tenant is not active", ErrForbidden)
	}
	if req.Public && !tenant.OnlineBooking {
		return nil, fmt.Errorf("%w: online booking is not enabled", ErrForbidden)
	}

	sched, err := s.store.GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		return nil, mapStoreErr(err, "schedule")
	}
	if sched.TenantID != tenant.ID {
		return nil, fmt.Errorf("%w: schedule", ErrNotFound)
	}

	res := &resolved{tenant: tenant, sched: sched, durationMin: req.DurationMin}

	if req.ServiceID != nil {
		svc, err := s.store.GetService(ctx, *req.ServiceID)
		if err != nil {
			return nil, mapStoreErr(err, "service")
		}
		if svc.TenantID != tenant.ID || !svc.IsActive {
			return nil, fmt.Errorf("%w: service", ErrNotFound)
		}
		res.serviceName = svc.Name
		// Duration is frozen at booking time: copied from the
		// service now, never re-derived from later edits.
		res.durationMin = svc.DurationMin
	}
	if res.durationMin <= 0 {
		res.durationMin = sched.SlotMinutes
	}
	if res.durationMin <= 0 {
		return nil, validationf("duration must be positive")
	}

	if req.AgentID != nil {
		agent, err := s.store.GetAgent(ctx, *req.AgentID)
		if err != nil {
			return nil, mapStoreErr(err, "agent")
		}
		if agent.TenantID != tenant.ID || !agent.IsActive {
			return nil, fmt.Errorf("%w: agent", ErrNotFound)
		}
		res.agentName = agent.Name
	}

	res.start, err = time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, tenant.Location())
	if err != nil {
		return nil, validationf("invalid date/time: expected YYYY-MM-DD and HH:MM")
	}
	return res, nil
}

// ValidationResult is the dry-run verdict for a proposed booking.
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason,omitempty"`
	QuotaUsed      int    `json:"quota_used"`
	QuotaLimit     int    `json:"quota_limit"`
	QuotaUnlimited bool   `json:"quota_unlimited"`
	NearingLimit   bool   `json:"nearing_limit"`
}

// Validate runs the full validation protocol without committing.
// Availability and quota failures come back as a soft verdict;
// lookup and ownership failures are still errors.
func (s *Service) Validate(ctx context.Context, req CreateRequest) (*ValidationResult, error) {
	res, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	ok, reason, err := s.checker.CheckSlot(ctx, res.sched.ID, req.AgentID, res.start, res.durationMin)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}

	quota, err := s.quota.Check(ctx, res.tenant)
	if err != nil {
		return nil, err
	}

	out := &ValidationResult{
		Valid:          ok,
		Reason:         reason,
		QuotaUsed:      quota.Used,
		QuotaLimit:     quota.Limit,
		QuotaUnlimited: quota.Unlimited,
		NearingLimit:   quota.NearingLimit(),
	}
	if ok && quota.Exceeded() {
		out.Valid = false
		out.Reason = "monthly appointment limit reached"
	}
	return out, nil
}

// Create runs the full validation protocol and commits the booking:
// schedule/window re-check, occupancy re-check, quota check, then the
// transactional insert. Quota is evaluated on the pre-commit count.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.ClientName == "" {
		return nil, validationf("client_name is required")
	}

	res, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	tenant, sched := res.tenant, res.sched

	ok, reason, err := s.checker.CheckSlot(ctx, sched.ID, req.AgentID, res.start, res.durationMin)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if !ok {
		metrics.IncBookingRejected("unavailable")
		if reason == availability.ReasonSlotTaken {
			return nil, fmt.Errorf("%w: %s", ErrConflict, reason)
		}
		return nil, validationf("%s", reason)
	}

	quota, err := s.quota.Check(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if quota.Exceeded() {
		metrics.IncBookingRejected("quota")
		return nil, fmt.Errorf("%w: %d of %d used this month", ErrQuotaExceeded, quota.Used, quota.Limit)
	}

	status := models.StatusScheduled
	if req.Public && tenant.AutoConfirm {
		status = models.StatusConfirmed
	}

	appt := &models.Appointment{
		PublicRef:   uuid.NewString(),
		TenantID:    tenant.ID,
		ScheduleID:  sched.ID,
		AgentID:     req.AgentID,
		ServiceID:   req.ServiceID,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		StartTime:   res.start,
		DurationMin: res.durationMin,
		Status:      status,
	}

	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncBookingRejected("conflict")
			return nil, fmt.Errorf("%w: slot was booked concurrently", ErrConflict)
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	metrics.IncAppointmentCreated(string(status))
	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("tenant_id", tenant.ID).
		Int64("schedule_id", sched.ID).
		Time("start", appt.StartTime).
		Str("status", string(status)).
		Msg("appointment created")

	s.bus.Publish(events.AppointmentEvent{
		EventID:       uuid.NewString(),
		Type:          events.TypeAppointmentCreated,
		AppointmentID: appt.ID,
		PublicRef:     appt.PublicRef,
		TenantID:      tenant.ID,
		ClientName:    appt.ClientName,
		ServiceName:   res.serviceName,
		AgentName:     res.agentName,
		NewStatus:     status,
		StartTime:     appt.StartTime,
	})

	return &CreateResult{
		Appointment:  appt,
		ServiceName:  res.serviceName,
		AgentName:    res.agentName,
		QuotaUsed:    quota.Used + 1,
		QuotaLimit:   quota.Limit,
		NearingLimit: quota.NearingLimit(),
	}, nil
}

// ResolveTenant resolves the public booking-page token: an opaque
// public-id prefix (8+ chars) or a published slug.
func (s *Service) ResolveTenant(ctx context.Context, token string) (*models.Tenant, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: tenant", ErrNotFound)
	}
	if len(token) >= 8 {
		tenant, err := s.store.GetTenantByPublicIDPrefix(ctx, token)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("resolve tenant by prefix: %w", err)
		}
	}
	tenant, err := s.store.GetTenantBySlug(ctx, token)
	if err != nil {
		return nil, mapStoreErr(err, "tenant")
	}
	return tenant, nil
}

// Transition applies an explicit status change and notifies the
// notification collaborator. The store guard keeps a raced transition
// from silently overwriting a newer status.
func (s *Service) Transition(ctx context.Context, tenantID, appointmentID int64, to models.Status) (*models.Appointment, error) {
	if !to.Valid() {
		return nil, validationf("unknown status %q", to)
	}

	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, mapStoreErr(err, "appointment")
	}
	if appt.TenantID != tenantID {
		return nil, fmt.Errorf("%w: appointment", ErrNotFound)
	}
	if !models.CanTransition(appt.Status, to) {
		return nil, validationf("cannot transition from %s to %s", appt.Status, to)
	}

	if err := s.store.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: appointment status changed concurrently", ErrConflict)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	old := appt.Status
	appt.Status = to
	metrics.IncStatusTransition(string(to))
	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Str("from", string(old)).
		Str("to", string(to)).
		Msg("appointment status changed")

	s.bus.Publish(events.AppointmentEvent{
		EventID:       uuid.NewString(),
		Type:          events.TypeStatusChanged,
		AppointmentID: appt.ID,
		PublicRef:     appt.PublicRef,
		TenantID:      appt.TenantID,
		ClientName:    appt.ClientName,
		ServiceName:   s.serviceName(ctx, appt.ServiceID),
		AgentName:     s.agentName(ctx, appt.AgentID),
		OldStatus:     old,
		NewStatus:     to,
		StartTime:     appt.StartTime,
	})

	return appt, nil
}

func (s *Service) serviceName(ctx context.Context, id *int64) string {
	if id == nil {
		return ""
	}
	svc, err := s.store.GetService(ctx, *id)
	if err != nil {
		return ""
	}
	return svc.Name
}

func (s *Service) agentName(ctx context.Context, id *int64) string {
	if id == nil {
		return ""
	}
	agent, err := s.store.GetAgent(ctx, *id)
	if err != nil {
		return ""
	}
	return agent.Name
}

// mapStoreErr converts store sentinels into the engine taxonomy.
func mapStoreErr(err error, entity string) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return fmt.Errorf("get %s: %w", entity, err)
}
