package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapis",
			Name:      "appointment_created_total",
			Help:      "Count of appointments created by initial status.",
		},
		[]string{"status"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapis",
			Name:      "booking_rejected_total",
			Help:      "Count of rejected booking attempts by reason.",
		},
		[]string{"reason"},
	)

	statusTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapis",
			Name:      "status_transition_total",
			Help:      "Count of appointment status transitions.",
		},
		[]string{"to"},
	)

	reminderSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapis",
			Name:      "reminder_sent_total",
			Help:      "Count of reminder events emitted.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapis",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(appointmentCreated, bookingRejected, statusTransition, reminderSent, httpRequests)
	})
}

func IncAppointmentCreated(status string) {
	appointmentCreated.WithLabelValues(status).Inc()
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncStatusTransition(to string) {
	statusTransition.WithLabelValues(to).Inc()
}

func IncReminderSent() {
	reminderSent.Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}
