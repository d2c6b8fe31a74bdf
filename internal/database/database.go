package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Store-level errors, mapped to the engine taxonomy by callers.
var (
	ErrNotFound  = errors.New("record not found")
	ErrSlotTaken = errors.New("slot already taken")
)

// DB wraps sql.DB for the booking engine.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations. The pragmas
// ride on the DSN so every pooled connection gets them, not just the
// one that happens to run an Exec.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			public_id TEXT UNIQUE NOT NULL,
			plan TEXT NOT NULL DEFAULT 'free',
			online_booking BOOLEAN NOT NULL DEFAULT 0,
			auto_confirm BOOLEAN NOT NULL DEFAULT 0,
			reminders_enabled BOOLEAN NOT NULL DEFAULT 0,
			reminder_lead_hours INTEGER NOT NULL DEFAULT 24,
			tz TEXT NOT NULL DEFAULT 'UTC',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			working_days TEXT NOT NULL DEFAULT '1,2,3,4,5',
			open_time TEXT NOT NULL DEFAULT '09:00',
			close_time TEXT NOT NULL DEFAULT '18:00',
			slot_minutes INTEGER NOT NULL DEFAULT 30,
			buffer_minutes INTEGER NOT NULL DEFAULT 0,
			break_start TEXT,
			break_end TEXT,
			use_overrides BOOLEAN NOT NULL DEFAULT 0,
			max_advance_days INTEGER NOT NULL DEFAULT 30,
			min_notice_hours INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS day_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schedule_id INTEGER NOT NULL,
			weekday INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			ranges TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (schedule_id, weekday),
			FOREIGN KEY (schedule_id) REFERENCES schedules(id)
		)`,

		`CREATE TABLE IF NOT EXISTS closures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schedule_id INTEGER NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			full_day BOOLEAN NOT NULL DEFAULT 1,
			start_time TEXT,
			end_time TEXT,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (schedule_id) REFERENCES schedules(id)
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			duration_min INTEGER NOT NULL,
			price_cents INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS agents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_agents (
			schedule_id INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			PRIMARY KEY (schedule_id, agent_id),
			FOREIGN KEY (schedule_id) REFERENCES schedules(id),
			FOREIGN KEY (agent_id) REFERENCES agents(id)
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_ref TEXT UNIQUE NOT NULL,
			tenant_id INTEGER NOT NULL,
			schedule_id INTEGER NOT NULL,
			agent_id INTEGER,
			service_id INTEGER,
			client_name TEXT NOT NULL,
			client_phone TEXT,
			start_time DATETIME NOT NULL,
			duration_min INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'scheduled',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id),
			FOREIGN KEY (schedule_id) REFERENCES schedules(id)
		)`,

		`CREATE TABLE IF NOT EXISTS reminder_log (
			appointment_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			sent_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (appointment_id, kind),
			FOREIGN KEY (appointment_id) REFERENCES appointments(id)
		)`,

		// Second line of defense against racing bookings: a live
		// appointment per (schedule, agent, exact start) is unique.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_slot
			ON appointments(schedule_id, IFNULL(agent_id, 0), start_time)
			WHERE status NOT IN ('cancelled', 'no_show')`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_schedule_start ON appointments(schedule_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_tenant_start ON appointments(tenant_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_closures_schedule ON closures(schedule_id, start_date, end_date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// isUniqueViolation reports whether err is a sqlite unique-constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// utc normalizes a timestamp before binding. All stored timestamps
// are UTC so text comparisons and the slot index stay consistent.
func utc(t time.Time) time.Time {
	return t.UTC()
}
