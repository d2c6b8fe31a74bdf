package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapis/internal/models"
)

const tenantColumns = `id, name, slug, public_id, plan, online_booking, auto_confirm,
	reminders_enabled, reminder_lead_hours, tz, is_active, created_at, updated_at`

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.PublicID, &t.Plan, &t.OnlineBooking, &t.AutoConfirm,
		&t.RemindersEnabled, &t.ReminderLeadHours, &t.Timezone, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenant returns a tenant by id.
func (db *DB) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	row := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE id = ?", tenantColumns), id)
	return scanTenant(row)
}

// GetTenantBySlug returns a tenant by its published booking-page slug.
func (db *DB) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	row := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE slug = ?", tenantColumns), slug)
	return scanTenant(row)
}

// GetTenantByPublicIDPrefix resolves a tenant from an opaque id prefix.
// The prefix must be long enough to be unambiguous; multiple matches
// are treated as not found.
func (db *DB) GetTenantByPublicIDPrefix(ctx context.Context, prefix string) (*models.Tenant, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE public_id LIKE ? || '%%' LIMIT 2", tenantColumns), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Slug, &t.PublicID, &t.Plan, &t.OnlineBooking, &t.AutoConfirm,
			&t.RemindersEnabled, &t.ReminderLeadHours, &t.Timezone, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		matches = append(matches, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, ErrNotFound
	}
	return matches[0], nil
}

// CreateTenant inserts a tenant and sets its id.
func (db *DB) CreateTenant(ctx context.Context, t *models.Tenant) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO tenants (name, slug, public_id, plan, online_booking, auto_confirm,
			reminders_enabled, reminder_lead_hours, tz, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Slug, t.PublicID, t.Plan, t.OnlineBooking, t.AutoConfirm,
		t.RemindersEnabled, t.ReminderLeadHours, t.Timezone, t.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// ListReminderTenants returns active tenants with reminders enabled.
func (db *DB) ListReminderTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM tenants WHERE is_active = 1 AND reminders_enabled = 1", tenantColumns))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Slug, &t.PublicID, &t.Plan, &t.OnlineBooking, &t.AutoConfirm,
			&t.RemindersEnabled, &t.ReminderLeadHours, &t.Timezone, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetService returns a service by id.
func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	var s models.Service
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, duration_min, price_cents, is_active, created_at, updated_at
		FROM services WHERE id = ?`, id,
	).Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMin, &s.PriceCents, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateService inserts a service and sets its id.
func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO services (tenant_id, name, duration_min, price_cents, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.TenantID, s.Name, s.DurationMin, s.PriceCents, s.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return err
}

// GetAgent returns an agent by id.
func (db *DB) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	var a models.Agent
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, is_active, created_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.TenantID, &a.Name, &a.IsActive, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAgent inserts an agent and sets its id.
func (db *DB) CreateAgent(ctx context.Context, a *models.Agent) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO agents (tenant_id, name, is_active, created_at) VALUES (?, ?, ?, ?)`,
		a.TenantID, a.Name, a.IsActive, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// AssignAgent links an agent to a schedule.
func (db *DB) AssignAgent(ctx context.Context, scheduleID, agentID int64) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO schedule_agents (schedule_id, agent_id) VALUES (?, ?)",
		scheduleID, agentID,
	)
	return err
}

// IsAgentAssigned checks the schedule/agent assignment relation.
func (db *DB) IsAgentAssigned(ctx context.Context, scheduleID, agentID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schedule_agents WHERE schedule_id = ? AND agent_id = ?",
		scheduleID, agentID,
	).Scan(&count)
	return count > 0, err
}
