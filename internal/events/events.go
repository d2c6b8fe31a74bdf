// Package events delivers appointment lifecycle notifications to the
// notification collaborator through an in-process bus.
package events

import (
	"sync"
	"time"

	"zapis/internal/models"
)

// Type identifies an appointment event.
type Type string

const (
	TypeAppointmentCreated Type = "appointment.created"
	TypeStatusChanged      Type = "appointment.status_changed"
	TypeReminder           Type = "appointment.reminder"
)

// AppointmentEvent is the payload handed to notification handlers.
type AppointmentEvent struct {
	EventID       string
	Type          Type
	AppointmentID int64
	PublicRef     string
	TenantID      int64
	ClientName    string
	ServiceName   string
	AgentName     string
	OldStatus     models.Status
	NewStatus     models.Status
	StartTime     time.Time
	CreatedAt     time.Time
}

// Handler reacts to an event. Errors stay with the handler:
// notification failures never roll back the mutation that fired them.
type Handler func(event AppointmentEvent) error

// Bus provides in-process pub/sub for appointment events.
type Bus struct {
	subscribers map[Type][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event AppointmentEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}
