package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddAttendanceRecord assigns an ID, forces synced=false, writes the record
// and returns the persisted entity. This is the single write path for
// punches: callers must not assume a record exists unless this returns one.
func (s *Store) AddAttendanceRecord(ctx context.Context, rec AttendanceRecord) (*AttendanceRecord, error) {
	if rec.DepartmentID == "" || rec.EmployeeID == "" {
		return nil, fmt.Errorf("department and employee ids are required")
	}
	if !ValidPunchType(rec.Type) {
		return nil, fmt.Errorf("unknown punch type %q", rec.Type)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Date == "" {
		rec.Date = DateKey(rec.Timestamp)
	}
	if rec.TypeName == "" {
		rec.TypeName = PunchTypeNames[rec.Type]
	}

	rec.ID = s.nextID()
	rec.Synced = false

	// Timestamps persist as UTC RFC3339 so lexicographic range filters
	// order by instant regardless of the caller's zone.
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO attendance_records
		(id, department_id, department_name, employee_id, employee_name,
		 type, type_name, timestamp, date, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		rec.ID, rec.DepartmentID, rec.DepartmentName, rec.EmployeeID,
		rec.EmployeeName, rec.Type, rec.TypeName,
		rec.Timestamp.UTC().Format(time.RFC3339), rec.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to insert attendance record: %w", err)
	}

	return &rec, nil
}

// UpdateAttendanceRecord is the timestamp-only mutation used by the
// duplicate-resolution "update existing" flow. Every other field is left
// untouched.
func (s *Store) UpdateAttendanceRecord(ctx context.Context, id string, newTimestamp time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE attendance_records SET timestamp = ? WHERE id = ?`,
		newTimestamp.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update attendance record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDuplicateRecord returns the most recent record matching the
// (department, employee, type, date) tuple, or nil when no punch of that
// type exists for the day. Callers use it to gate insert-vs-update before
// every new punch.
func (s *Store) FindDuplicateRecord(ctx context.Context, departmentID, employeeID, typ, date string) (*AttendanceRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, department_id, department_name, employee_id, employee_name,
		       type, type_name, timestamp, date, synced
		FROM attendance_records
		WHERE department_id = ? AND employee_id = ? AND type = ? AND date = ?
		ORDER BY timestamp DESC
		LIMIT 1`,
		departmentID, employeeID, typ, date)

	rec, err := scanAttendanceRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate record: %w", err)
	}
	return rec, nil
}

// AttendanceRecordByID retrieves a single record.
// Returns ErrNotFound if no record has the given ID.
func (s *Store) AttendanceRecordByID(ctx context.Context, id string) (*AttendanceRecord, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, department_id, department_name, employee_id, employee_name,
		       type, type_name, timestamp, date, synced
		FROM attendance_records
		WHERE id = ?`, id)

	rec, err := scanAttendanceRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance record %s: %w", id, err)
	}
	return rec, nil
}

// MonthlyAttendanceRecords returns one employee's records for the calendar
// month, ordered ascending by timestamp. Month is 1-12.
func (s *Store) MonthlyAttendanceRecords(ctx context.Context, departmentID, employeeID string, year, month int) ([]AttendanceRecord, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 1, 0)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, department_id, department_name, employee_id, employee_name,
		       type, type_name, timestamp, date, synced
		FROM attendance_records
		WHERE department_id = ? AND employee_id = ?
		  AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC`,
		departmentID, employeeID,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly records: %w", err)
	}
	defer rows.Close()

	return scanAttendanceRecords(rows)
}

// MarkAttendanceRecordSynced sets synced=true. Idempotent: marking an
// already-synced record is not an error.
func (s *Store) MarkAttendanceRecordSynced(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE attendance_records SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %s synced: %w", id, err)
	}
	return nil
}

// UnsyncedAttendanceRecords returns every record still waiting for the
// spreadsheet, oldest first, for catch-up sync.
func (s *Store) UnsyncedAttendanceRecords(ctx context.Context) ([]AttendanceRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, department_id, department_name, employee_id, employee_name,
		       type, type_name, timestamp, date, synced
		FROM attendance_records
		WHERE synced = 0
		ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced records: %w", err)
	}
	defer rows.Close()

	return scanAttendanceRecords(rows)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendanceRecord(row rowScanner) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	var ts string
	var synced int

	err := row.Scan(
		&rec.ID,
		&rec.DepartmentID,
		&rec.DepartmentName,
		&rec.EmployeeID,
		&rec.EmployeeName,
		&rec.Type,
		&rec.TypeName,
		&ts,
		&rec.Date,
		&synced,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		rec.Timestamp = t
	}
	rec.Synced = synced != 0

	return &rec, nil
}

func scanAttendanceRecords(rows *sql.Rows) ([]AttendanceRecord, error) {
	var records []AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendanceRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance records: %w", err)
	}
	return records, nil
}
