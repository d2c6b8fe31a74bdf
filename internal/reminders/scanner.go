// Package reminders periodically scans for appointments entering
// their reminder window and emits reminder events exactly once per
// appointment.
package reminders

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapis/internal/clock"
	"zapis/internal/events"
	"zapis/internal/metrics"
	"zapis/internal/models"
)

// ReminderKindLead labels the pre-appointment reminder in the sent log.
const ReminderKindLead = "lead"

// Config holds scanner settings.
type Config struct {
	// CheckInterval is how often the scanner runs. Default: 5 minutes.
	CheckInterval time.Duration

	// DefaultLeadHours applies to tenants without a configured lead.
	// Default: 24.
	DefaultLeadHours int

	// MaxConcurrent limits parallel event dispatches. Default: 10.
	MaxConcurrent int
}

// DefaultConfig returns scanner defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:    5 * time.Minute,
		DefaultLeadHours: 24,
		MaxConcurrent:    10,
	}
}

// Store is the persistence surface the scanner needs.
type Store interface {
	ListReminderTenants(ctx context.Context) ([]models.Tenant, error)
	ListRemindableAppointments(ctx context.Context, tenantID int64, from, to time.Time) ([]models.Appointment, error)
	TryMarkReminderSent(ctx context.Context, appointmentID int64, kind string) (bool, error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetAgent(ctx context.Context, id int64) (*models.Agent, error)
}

// Publisher hands reminder events to the notification collaborator.
type Publisher interface {
	Publish(event events.AppointmentEvent)
}

// Scanner runs the reminder sweep loop.
type Scanner struct {
	config  Config
	store   Store
	bus     Publisher
	clock   clock.Clock
	logger  zerolog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScanner creates a reminder scanner.
func NewScanner(config Config, store Store, bus Publisher, clk clock.Clock, logger *zerolog.Logger) *Scanner {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 5 * time.Minute
	}
	if config.DefaultLeadHours <= 0 {
		config.DefaultLeadHours = 24
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Scanner{
		config: config,
		store:  store,
		bus:    bus,
		clock:  clk,
		logger: logger.With().Str("component", "reminders").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Scanner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Int("default_lead_hours", s.config.DefaultLeadHours).
		Msg("reminder scanner started")
}

// Stop stops the loop and waits for in-flight dispatches.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("reminder scanner stopped")
}

func (s *Scanner) loop() {
	defer s.wg.Done()

	s.Sweep()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one pass over every reminder-enabled tenant. Exported so
// tests and operators can trigger a pass without waiting for the tick.
func (s *Scanner) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tenants, err := s.store.ListReminderTenants(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list reminder tenants")
		return
	}

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup

	now := s.clock.Now()
	for i := range tenants {
		tenant := tenants[i]
		lead := tenant.ReminderLeadHours
		if lead <= 0 {
			lead = s.config.DefaultLeadHours
		}
		bound := now.Add(time.Duration(lead) * time.Hour)

		appts, err := s.store.ListRemindableAppointments(ctx, tenant.ID, now, bound)
		if err != nil {
			s.logger.Error().Err(err).Int64("tenant_id", tenant.ID).
				Msg("failed to list remindable appointments")
			continue
		}

		for j := range appts {
			appt := appts[j]

			// Claim the reminder first; a lost claim means another
			// pass or instance already owns it.
			claimed, err := s.store.TryMarkReminderSent(ctx, appt.ID, ReminderKindLead)
			if err != nil {
				s.logger.Error().Err(err).Int64("appointment_id", appt.ID).
					Msg("failed to mark reminder sent")
				continue
			}
			if !claimed {
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(tenantID int64, a models.Appointment) {
				defer wg.Done()
				defer func() { <-sem }()
				s.dispatch(ctx, tenantID, a)
			}(tenant.ID, appt)
		}
	}

	wg.Wait()
}

func (s *Scanner) dispatch(ctx context.Context, tenantID int64, appt models.Appointment) {
	var serviceName, agentName string
	if appt.ServiceID != nil {
		if svc, err := s.store.GetService(ctx, *appt.ServiceID); err == nil {
			serviceName = svc.Name
		}
	}
	if appt.AgentID != nil {
		if agent, err := s.store.GetAgent(ctx, *appt.AgentID); err == nil {
			agentName = agent.Name
		}
	}

	s.bus.Publish(events.AppointmentEvent{
		EventID:       uuid.NewString(),
		Type:          events.TypeReminder,
		AppointmentID: appt.ID,
		PublicRef:     appt.PublicRef,
		TenantID:      tenantID,
		ClientName:    appt.ClientName,
		ServiceName:   serviceName,
		AgentName:     agentName,
		NewStatus:     appt.Status,
		StartTime:     appt.StartTime,
	})
	metrics.IncReminderSent()
	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Time("start", appt.StartTime).
		Msg("reminder dispatched")
}
