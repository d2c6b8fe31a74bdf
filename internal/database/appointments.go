package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapis/internal/models"
)

const appointmentColumns = `id, public_ref, tenant_id, schedule_id, agent_id, service_id,
	client_name, client_phone, start_time, duration_min, status, created_at, updated_at`

type appointmentScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row appointmentScanner) (*models.Appointment, error) {
	var a models.Appointment
	var agentID, serviceID sql.NullInt64
	var clientPhone sql.NullString
	err := row.Scan(
		&a.ID, &a.PublicRef, &a.TenantID, &a.ScheduleID, &agentID, &serviceID,
		&a.ClientName, &clientPhone, &a.StartTime, &a.DurationMin, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if agentID.Valid {
		a.AgentID = &agentID.Int64
	}
	if serviceID.Valid {
		a.ServiceID = &serviceID.Int64
	}
	if clientPhone.Valid {
		a.ClientPhone = clientPhone.String
	}
	return &a, nil
}

// GetAppointment returns an appointment by id.
func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM appointments WHERE id = ?", appointmentColumns), id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// agentScope builds the agent predicate for a (schedule, agent) scope.
// Appointments without an agent book the schedule directly and form
// their own lane; each assigned agent books independently.
func agentScope(agentID *int64) (string, []any) {
	if agentID == nil {
		return "agent_id IS NULL", nil
	}
	return "agent_id = ?", []any{*agentID}
}

// ListDayAppointments returns live appointments for a scope on a date.
func (db *DB) ListDayAppointments(ctx context.Context, scheduleID int64, agentID *int64, date time.Time) ([]models.Appointment, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	pred, predArgs := agentScope(agentID)
	args := append([]any{scheduleID}, predArgs...)
	args = append(args, utc(dayStart), utc(dayEnd))

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM appointments
		WHERE schedule_id = ? AND %s
		AND start_time >= ? AND start_time < ?
		AND status NOT IN ('cancelled', 'no_show')
		ORDER BY start_time`, appointmentColumns, pred),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

// CreateAppointment commits a reservation. The live-appointment
// overlap re-check and the insert run inside one immediate
// transaction so two requests racing on the same slot serialize;
// the partial unique index backstops exact-start duplicates.
// Returns ErrSlotTaken when the interval is no longer free.
func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Force the write lock up front so the re-check below cannot
	// interleave with another writer's insert.
	if _, err := tx.ExecContext(ctx, "UPDATE appointments SET id = id WHERE 0"); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}

	start := utc(a.StartTime)
	end := start.Add(time.Duration(a.DurationMin) * time.Minute)
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	pred, predArgs := agentScope(a.AgentID)
	args := append([]any{a.ScheduleID}, predArgs...)
	args = append(args, dayStart, dayEnd)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT start_time, duration_min FROM appointments
		WHERE schedule_id = ? AND %s
		AND start_time >= ? AND start_time < ?
		AND status NOT IN ('cancelled', 'no_show')`, pred),
		args...,
	)
	if err != nil {
		return fmt.Errorf("overlap check: %w", err)
	}
	for rows.Next() {
		var existingStart time.Time
		var existingDur int
		if err := rows.Scan(&existingStart, &existingDur); err != nil {
			rows.Close()
			return err
		}
		existingEnd := existingStart.Add(time.Duration(existingDur) * time.Minute)
		if start.Before(existingEnd) && end.After(existingStart) {
			rows.Close()
			return ErrSlotTaken
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (public_ref, tenant_id, schedule_id, agent_id, service_id,
			client_name, client_phone, start_time, duration_min, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PublicRef, a.TenantID, a.ScheduleID, nullInt64(a.AgentID), nullInt64(a.ServiceID),
		a.ClientName, nullString(a.ClientPhone), start, a.DurationMin, a.Status, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("commit appointment: %w", err)
	}

	a.ID, _ = res.LastInsertId()
	a.StartTime = start
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// UpdateAppointmentStatus applies a status transition with an
// optimistic guard on the expected current status. Returns
// ErrNotFound when the row is missing or the status moved on.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id int64, from, to models.Status) error {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTenantAppointmentsBetween counts live appointments for quota:
// start inside [from, to], cancelled and no-show excluded.
func (db *DB) CountTenantAppointmentsBetween(ctx context.Context, tenantID int64, from, to time.Time) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE tenant_id = ?
		AND start_time >= ? AND start_time <= ?
		AND status NOT IN ('cancelled', 'no_show')`,
		tenantID, utc(from), utc(to),
	).Scan(&count)
	return count, err
}

// ListRemindableAppointments returns scheduled/confirmed appointments
// for a tenant starting within [from, to].
func (db *DB) ListRemindableAppointments(ctx context.Context, tenantID int64, from, to time.Time) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM appointments
		WHERE tenant_id = ?
		AND start_time >= ? AND start_time <= ?
		AND status IN ('scheduled', 'confirmed')
		ORDER BY start_time`, appointmentColumns),
		tenantID, utc(from), utc(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

// TryMarkReminderSent records the (appointment, kind) idempotency
// marker. Returns false when a reminder of this kind was already sent.
func (db *DB) TryMarkReminderSent(ctx context.Context, appointmentID int64, kind string) (bool, error) {
	res, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO reminder_log (appointment_id, kind, sent_at) VALUES (?, ?, ?)",
		appointmentID, kind, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("mark reminder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
