package reminders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"zapis/internal/clock"
	"zapis/internal/database"
	"zapis/internal/events"
	"zapis/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	tenants  []models.Tenant
	appts    map[int64][]models.Appointment
	sent     map[int64]map[string]bool
	services map[int64]*models.Service
	agents   map[int64]*models.Agent

	lastFrom, lastTo time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appts:    make(map[int64][]models.Appointment),
		sent:     make(map[int64]map[string]bool),
		services: make(map[int64]*models.Service),
		agents:   make(map[int64]*models.Agent),
	}
}

func (f *fakeStore) ListReminderTenants(_ context.Context) ([]models.Tenant, error) {
	return f.tenants, nil
}

func (f *fakeStore) ListRemindableAppointments(_ context.Context, tenantID int64, from, to time.Time) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFrom, f.lastTo = from, to
	return f.appts[tenantID], nil
}

func (f *fakeStore) TryMarkReminderSent(_ context.Context, appointmentID int64, kind string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent[appointmentID] == nil {
		f.sent[appointmentID] = make(map[string]bool)
	}
	if f.sent[appointmentID][kind] {
		return false, nil
	}
	f.sent[appointmentID][kind] = true
	return true, nil
}

func (f *fakeStore) GetService(_ context.Context, id int64) (*models.Service, error) {
	if svc, ok := f.services[id]; ok {
		return svc, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetAgent(_ context.Context, id int64) (*models.Agent, error) {
	if agent, ok := f.agents[id]; ok {
		return agent, nil
	}
	return nil, database.ErrNotFound
}

type captureBus struct {
	mu     sync.Mutex
	events []events.AppointmentEvent
}

func (c *captureBus) Publish(event events.AppointmentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureBus) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newTestScanner(store *fakeStore, bus *captureBus, now time.Time) *Scanner {
	logger := zerolog.New(io.Discard)
	return NewScanner(DefaultConfig(), store, bus, clock.Fixed{T: now}, &logger)
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("emits one reminder per appointment", func(t *testing.T) {
		store := newFakeStore()
		bus := &captureBus{}
		store.tenants = []models.Tenant{{ID: 1, RemindersEnabled: true, ReminderLeadHours: 24}}
		store.appts[1] = []models.Appointment{
			{ID: 10, TenantID: 1, ClientName: "Анна", StartTime: now.Add(5 * time.Hour), Status: models.StatusConfirmed},
			{ID: 11, TenantID: 1, ClientName: "Олег", StartTime: now.Add(20 * time.Hour), Status: models.StatusScheduled},
		}

		scanner := newTestScanner(store, bus, now)
		scanner.Sweep()

		assert.Equal(t, 2, bus.count())
		for _, e := range bus.events {
			assert.Equal(t, events.TypeReminder, e.Type)
		}
	})

	t.Run("events carry service and agent names", func(t *testing.T) {
		store := newFakeStore()
		bus := &captureBus{}
		serviceID, agentID := int64(5), int64(7)
		store.tenants = []models.Tenant{{ID: 1, RemindersEnabled: true, ReminderLeadHours: 24}}
		store.services[serviceID] = &models.Service{ID: serviceID, Name: "Массаж"}
		store.agents[agentID] = &models.Agent{ID: agentID, Name: "Ирина"}
		store.appts[1] = []models.Appointment{{
			ID: 10, TenantID: 1, ClientName: "Анна",
			ServiceID: &serviceID, AgentID: &agentID,
			StartTime: now.Add(5 * time.Hour), Status: models.StatusConfirmed,
		}}

		scanner := newTestScanner(store, bus, now)
		scanner.Sweep()

		assert.Equal(t, 1, bus.count())
		assert.Equal(t, "Массаж", bus.events[0].ServiceName)
		assert.Equal(t, "Ирина", bus.events[0].AgentName)
	})

	t.Run("second sweep sends nothing", func(t *testing.T) {
		store := newFakeStore()
		bus := &captureBus{}
		store.tenants = []models.Tenant{{ID: 1, RemindersEnabled: true, ReminderLeadHours: 24}}
		store.appts[1] = []models.Appointment{
			{ID: 10, TenantID: 1, StartTime: now.Add(5 * time.Hour), Status: models.StatusConfirmed},
		}

		scanner := newTestScanner(store, bus, now)
		scanner.Sweep()
		scanner.Sweep()

		assert.Equal(t, 1, bus.count(), "reminder log must suppress the duplicate")
	})

	t.Run("tenant lead bounds the query window", func(t *testing.T) {
		store := newFakeStore()
		bus := &captureBus{}
		store.tenants = []models.Tenant{{ID: 1, RemindersEnabled: true, ReminderLeadHours: 3}}

		scanner := newTestScanner(store, bus, now)
		scanner.Sweep()

		assert.Equal(t, now, store.lastFrom)
		assert.Equal(t, now.Add(3*time.Hour), store.lastTo)
	})

	t.Run("zero lead falls back to the default", func(t *testing.T) {
		store := newFakeStore()
		bus := &captureBus{}
		store.tenants = []models.Tenant{{ID: 1, RemindersEnabled: true}}

		scanner := newTestScanner(store, bus, now)
		scanner.Sweep()

		assert.Equal(t, now.Add(24*time.Hour), store.lastTo)
	})

	t.Run("start and stop are idempotent", func(t *testing.T) {
		store := newFakeStore()
		bus := &captureBus{}
		scanner := newTestScanner(store, bus, now)
		scanner.Start()
		scanner.Start()
		scanner.Stop()
		scanner.Stop()
	})
}
