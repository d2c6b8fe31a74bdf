package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapis/internal/models"
)

// GetSchedule returns a schedule by id.
func (db *DB) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	var s models.Schedule
	var workingDays string
	var breakStart, breakEnd sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, working_days, open_time, close_time,
		       slot_minutes, buffer_minutes, break_start, break_end,
		       use_overrides, max_advance_days, min_notice_hours, is_active,
		       created_at, updated_at
		FROM schedules WHERE id = ?`, id,
	).Scan(
		&s.ID, &s.TenantID, &s.Name, &workingDays, &s.OpenTime, &s.CloseTime,
		&s.SlotMinutes, &s.BufferMinutes, &breakStart, &breakEnd,
		&s.UseOverrides, &s.MaxAdvanceDays, &s.MinNoticeHours, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.WorkingDays = models.DecodeWorkingDays(workingDays)
	if breakStart.Valid {
		s.BreakStart = breakStart.String
	}
	if breakEnd.Valid {
		s.BreakEnd = breakEnd.String
	}
	return &s, nil
}

// CreateSchedule inserts a schedule after validating its invariants.
func (db *DB) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO schedules (tenant_id, name, working_days, open_time, close_time,
			slot_minutes, buffer_minutes, break_start, break_end,
			use_overrides, max_advance_days, min_notice_hours, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TenantID, s.Name, models.EncodeWorkingDays(s.WorkingDays), s.OpenTime, s.CloseTime,
		s.SlotMinutes, s.BufferMinutes, nullString(s.BreakStart), nullString(s.BreakEnd),
		s.UseOverrides, s.MaxAdvanceDays, s.MinNoticeHours, s.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return err
}

// UpdateSchedule replaces the mutable schedule settings.
func (db *DB) UpdateSchedule(ctx context.Context, s *models.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE schedules SET name = ?, working_days = ?, open_time = ?, close_time = ?,
			slot_minutes = ?, buffer_minutes = ?, break_start = ?, break_end = ?,
			use_overrides = ?, max_advance_days = ?, min_notice_hours = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, models.EncodeWorkingDays(s.WorkingDays), s.OpenTime, s.CloseTime,
		s.SlotMinutes, s.BufferMinutes, nullString(s.BreakStart), nullString(s.BreakEnd),
		s.UseOverrides, s.MaxAdvanceDays, s.MinNoticeHours, s.IsActive, time.Now(), s.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
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

// GetDayOverride returns the override for one weekday, or ErrNotFound.
func (db *DB) GetDayOverride(ctx context.Context, scheduleID int64, weekday time.Weekday) (*models.DayOverride, error) {
	var o models.DayOverride
	var ranges string
	var wd int
	err := db.QueryRowContext(ctx, `
		SELECT id, schedule_id, weekday, is_active, ranges, created_at, updated_at
		FROM day_overrides WHERE schedule_id = ? AND weekday = ?`,
		scheduleID, int(weekday),
	).Scan(&o.ID, &o.ScheduleID, &wd, &o.Active, &ranges, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Weekday = time.Weekday(wd)
	o.Ranges = models.DecodeRanges(ranges)
	return &o, nil
}

// UpsertDayOverride creates or replaces the override for a weekday.
func (db *DB) UpsertDayOverride(ctx context.Context, o *models.DayOverride) error {
	for _, r := range o.Ranges {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO day_overrides (schedule_id, weekday, is_active, ranges, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(schedule_id, weekday) DO UPDATE SET
			is_active = excluded.is_active,
			ranges = excluded.ranges,
			updated_at = excluded.updated_at`,
		o.ScheduleID, int(o.Weekday), o.Active, models.EncodeRanges(o.Ranges), now, now,
	)
	return err
}

// CreateClosure inserts a closure period.
func (db *DB) CreateClosure(ctx context.Context, c *models.Closure) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO closures (schedule_id, start_date, end_date, full_day, start_time, end_time, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ScheduleID, utc(c.StartDate), utc(c.EndDate), c.FullDay,
		nullString(c.StartTime), nullString(c.EndTime), nullString(c.Reason), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert closure: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// ListClosuresForDate returns closures whose date range covers the date.
func (db *DB) ListClosuresForDate(ctx context.Context, scheduleID int64, date time.Time) ([]models.Closure, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := db.QueryContext(ctx, `
		SELECT id, schedule_id, start_date, end_date, full_day, start_time, end_time, reason, created_at
		FROM closures
		WHERE schedule_id = ? AND start_date < ? AND end_date >= ?`,
		scheduleID, utc(dayEnd), utc(dayStart),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closures []models.Closure
	for rows.Next() {
		var c models.Closure
		var startTime, endTime, reason sql.NullString
		if err := rows.Scan(
			&c.ID, &c.ScheduleID, &c.StartDate, &c.EndDate, &c.FullDay,
			&startTime, &endTime, &reason, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		if startTime.Valid {
			c.StartTime = startTime.String
		}
		if endTime.Valid {
			c.EndTime = endTime.String
		}
		if reason.Valid {
			c.Reason = reason.String
		}
		closures = append(closures, c)
	}
	return closures, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
