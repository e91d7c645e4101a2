// Package sqlite persists dispatch state in an embedded SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    truck_id TEXT,
    status TEXT NOT NULL,
    requested_day INTEGER NOT NULL,
    version INTEGER NOT NULL,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_customer ON jobs(customer_id);
CREATE INDEX IF NOT EXISTS jobs_truck_day ON jobs(truck_id, requested_day);

CREATE TABLE IF NOT EXISTS assignments (
    job_id TEXT PRIMARY KEY,
    truck_id TEXT NOT NULL,
    day INTEGER NOT NULL,
    time_slot_id TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS assignments_bucket ON assignments(truck_id, day, time_slot_id);

CREATE TABLE IF NOT EXISTS customer_job_counters (
    customer_id TEXT PRIMARY KEY,
    docket_id INTEGER NOT NULL,
    last_sequence INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    job_id TEXT,
    created_at INTEGER NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS notifications_user ON notifications(user_id, created_at);
`

// DB is a handle on the dispatch database. The typed stores share it.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers, which keeps the counter and
	// assignment transactions free of SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &DB{db: db}, nil
}

// Jobs returns the job store.
func (d *DB) Jobs() *JobStore { return &JobStore{db: d.db} }

// Assignments returns the assignment store.
func (d *DB) Assignments() *AssignmentStore { return &AssignmentStore{db: d.db, now: time.Now} }

// Counters returns the reference counter store.
func (d *DB) Counters() *CounterStore { return &CounterStore{db: d.db} }

// Notifications returns the notification store.
func (d *DB) Notifications() *NotificationStore { return &NotificationStore{db: d.db} }

// Close closes the underlying database.
func (d *DB) Close() error { return d.db.Close() }
