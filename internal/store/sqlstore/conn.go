// Package sqlstore is the relational backend of the Fleet Store Adapter
// (§4.1, §6 "Persisted state layout"): trainsets, certificates, job
// cards, branding contracts, cleaning slots and schedules, held in
// SQLite via the pure-Go modernc.org/sqlite driver. Decision and
// optimization-run audit rows are delegated to an injected AuditLog
// (internal/store/auditlog) rather than stored relationally, since they
// are written once and never queried by shape.
package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ConnConfig mirrors the operational defaults a single-writer embedded
// SQLite deployment needs: WAL journaling so readers never block the
// writer, a busy timeout so concurrent writers retry instead of
// immediately failing, and foreign keys enforced.
type ConnConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultConnConfig returns the defaults this package opens with.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// openDB opens a connection pool against dbPath with the mandatory
// PRAGMAs baked into the DSN so every pooled connection picks them up.
func openDB(dbPath string, cfg ConnConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping failed: %w", err)
	}

	return db, nil
}

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS trainsets (
	id TEXT PRIMARY KEY,
	number TEXT NOT NULL,
	manufacturer TEXT NOT NULL,
	model TEXT NOT NULL,
	year_built INTEGER NOT NULL,
	capacity INTEGER NOT NULL,
	max_speed INTEGER NOT NULL,
	status TEXT NOT NULL,
	depot TEXT NOT NULL,
	location TEXT NOT NULL,
	current_mileage REAL NOT NULL,
	total_mileage REAL NOT NULL,
	operational_hours REAL NOT NULL,
	last_maintenance_at TEXT,
	next_maintenance_due_at TEXT,
	last_cleaning_at TEXT,
	next_cleaning_at TEXT,
	fitness_expiry_at TEXT,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS certificates (
	id TEXT PRIMARY KEY,
	trainset_id TEXT NOT NULL REFERENCES trainsets(id),
	issued_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	status TEXT NOT NULL,
	issuing_authority TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_certificates_trainset ON certificates(trainset_id);

CREATE TABLE IF NOT EXISTS job_cards (
	id TEXT PRIMARY KEY,
	trainset_id TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	priority TEXT NOT NULL,
	status TEXT NOT NULL,
	category TEXT NOT NULL,
	estimated_hours REAL,
	actual_hours REAL,
	scheduled_at TEXT,
	due_at TEXT,
	completed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_cards_trainset ON job_cards(trainset_id);

CREATE TABLE IF NOT EXISTS branding (
	id TEXT PRIMARY KEY,
	trainset_id TEXT NOT NULL REFERENCES trainsets(id),
	campaign TEXT NOT NULL,
	priority INTEGER NOT NULL,
	target_hours_per_day REAL NOT NULL,
	delivered_hours REAL NOT NULL,
	contract_start TEXT NOT NULL,
	contract_end TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_branding_trainset ON branding(trainset_id);

CREATE TABLE IF NOT EXISTS cleaning_slots (
	id TEXT PRIMARY KEY,
	bay TEXT NOT NULL,
	starts_at TEXT NOT NULL,
	ends_at TEXT NOT NULL,
	capacity INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cleaning_slot_assignments (
	slot_id TEXT NOT NULL REFERENCES cleaning_slots(id),
	trainset_id TEXT NOT NULL,
	PRIMARY KEY (slot_id, trainset_id)
);

CREATE TABLE IF NOT EXISTS schedules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	shift TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_date_shift ON schedules(date, shift);

CREATE TABLE IF NOT EXISTS schedule_entries (
	schedule_id INTEGER NOT NULL REFERENCES schedules(id),
	trainset_id TEXT NOT NULL,
	decision TEXT NOT NULL,
	rank INTEGER NOT NULL,
	route TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	reasons_json TEXT NOT NULL,
	conflicts_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedule_entries_schedule ON schedule_entries(schedule_id);

CREATE TABLE IF NOT EXISTS status_audit (
	trainset_id TEXT NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	reason TEXT NOT NULL,
	at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}
