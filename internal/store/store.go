// Package store provides the embedded SQLite database for the attendance kiosk.
//
// The store owns the four tables the kiosk depends on: departments,
// employees, attendance_records and settings. It is the single durable
// artifact of the application; every punch is written here synchronously
// before anything is pushed to the remote spreadsheet.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver
// with WAL enabled so readers are never blocked by the write path.
//
// Lifecycle:
//  1. Open the database file (created on demand)
//  2. InitSchema creates tables, indexes and seeds the department list
//  3. MaybeMonthlyCleanup prunes old history when the schedule allows
//  4. Close checkpoints the WAL and releases the connection
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = fmt.Errorf("store: not found")

// Store wraps the SQLite connection with the kiosk's query contracts.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger

	// Millisecond ID generation; guarded so two punches in the same
	// millisecond never collide.
	idMu   sync.Mutex
	lastID int64
}

// Open creates a database connection at the specified path.
//
// The database is created along with its parent directory if it doesn't
// exist. The caller MUST call Close() when done.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One kiosk, one writer. A small pool is still useful for
	// interleaved reads while a sync chain holds a connection.
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger,
	}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
// Performs a WAL checkpoint so the file on disk is complete.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist and seeds the
// department reference list on first run. Idempotent - safe to call multiple
// times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		department_id TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		FOREIGN KEY (department_id) REFERENCES departments (id)
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		department_id TEXT NOT NULL,
		department_name TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		employee_name TEXT NOT NULL,
		type TEXT NOT NULL,
		type_name TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		date TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_employees_department ON employees (department_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_department ON attendance_records (department_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_employee ON attendance_records (employee_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance_records (date);
	CREATE INDEX IF NOT EXISTS idx_attendance_timestamp ON attendance_records (timestamp);
	CREATE INDEX IF NOT EXISTS idx_attendance_synced ON attendance_records (synced);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.seedDepartments(ctx); err != nil {
		return fmt.Errorf("failed to seed departments: %w", err)
	}

	return nil
}

// seedDepartments inserts the reference department list. INSERT OR IGNORE
// keeps this idempotent and preserves operator edits to existing rows.
func (s *Store) seedDepartments(ctx context.Context) error {
	for _, d := range SeedDepartments {
		_, err := s.conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO departments (id, name) VALUES (?, ?)`,
			d.ID, d.Name)
		if err != nil {
			return fmt.Errorf("failed to insert department %s: %w", d.ID, err)
		}
	}
	return nil
}

// Departments returns all departments ordered by name.
func (s *Store) Departments(ctx context.Context) ([]Department, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query departments: %w", err)
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		departments = append(departments, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating departments: %w", err)
	}

	return departments, nil
}

// DepartmentByID retrieves a single department.
// Returns ErrNotFound if no department has the given ID.
func (s *Store) DepartmentByID(ctx context.Context, id string) (*Department, error) {
	var d Department
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name FROM departments WHERE id = ?`, id).
		Scan(&d.ID, &d.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query department %s: %w", id, err)
	}
	return &d, nil
}

// nextID returns a unix-millisecond token, strictly increasing within the
// process so same-millisecond callers never share an ID.
func (s *Store) nextID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}
