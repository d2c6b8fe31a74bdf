package booking

import (
	"context"
	"fmt"
	"time"

	"zapis/internal/clock"
	"zapis/internal/models"
)

// QuotaStore counts a tenant's live appointments inside a period.
type QuotaStore interface {
	CountTenantAppointmentsBetween(ctx context.Context, tenantID int64, from, to time.Time) (int, error)
}

// QuotaStatus is the tenant's position against its monthly ceiling,
// computed on demand from the appointment store, never cached.
type QuotaStatus struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Unlimited bool `json:"unlimited"`
}

// Exceeded reports whether the next booking would go over the ceiling.
func (q QuotaStatus) Exceeded() bool {
	return !q.Unlimited && q.Used >= q.Limit
}

// NearingLimit reports whether the tenant is within one appointment
// of the ceiling. Advisory only; it never blocks a booking.
func (q QuotaStatus) NearingLimit() bool {
	return !q.Unlimited && q.Used >= q.Limit-1 && q.Used < q.Limit
}

// QuotaEnforcer checks subscription-tier volume limits.
type QuotaEnforcer struct {
	store QuotaStore
	clock clock.Clock
}

// NewQuotaEnforcer creates a quota enforcer.
func NewQuotaEnforcer(store QuotaStore, clk clock.Clock) *QuotaEnforcer {
	return &QuotaEnforcer{store: store, clock: clk}
}

// Check counts the tenant's live appointments starting inside the
// current calendar month on the tenant's wall clock.
func (q *QuotaEnforcer) Check(ctx context.Context, tenant *models.Tenant) (QuotaStatus, error) {
	limit := tenant.Plan.MonthlyLimit()
	if limit == models.UnlimitedAppointments {
		return QuotaStatus{Unlimited: true, Limit: limit}, nil
	}

	first, last := monthBounds(q.clock.Now().In(tenant.Location()))
	used, err := q.store.CountTenantAppointmentsBetween(ctx, tenant.ID, first, last)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("count monthly appointments: %w", err)
	}
	return QuotaStatus{Used: used, Limit: limit}, nil
}

// monthBounds returns the first and last instant of now's month.
func monthBounds(now time.Time) (time.Time, time.Time) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return first, last
}
