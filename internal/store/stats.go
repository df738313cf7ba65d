package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats holds aggregate counters for the admin view.
type Stats struct {
	TotalEmployees         int    `json:"totalEmployees"`
	TotalAttendanceRecords int    `json:"totalAttendanceRecords"`
	OldestRecord           string `json:"oldestRecord,omitempty"`
	NewestRecord           string `json:"newestRecord,omitempty"`
}

// Stats returns counts and min/max record timestamps. The timestamp fields
// are empty when no attendance records exist.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats

	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM employees`).Scan(&st.TotalEmployees)
	if err != nil {
		return nil, fmt.Errorf("failed to count employees: %w", err)
	}

	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records`).Scan(&st.TotalAttendanceRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to count attendance records: %w", err)
	}

	var oldest, newest sql.NullString
	err = s.conn.QueryRowContext(ctx,
		`SELECT MIN(timestamp), MAX(timestamp) FROM attendance_records`).
		Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to query record range: %w", err)
	}

	if oldest.Valid {
		st.OldestRecord = oldest.String
	}
	if newest.Valid {
		st.NewestRecord = newest.String
	}

	return &st, nil
}
