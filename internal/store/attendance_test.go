package store

import (
	"context"
	"testing"
	"time"
)

// addTestRecord inserts one punch for the given employee and returns it.
func addTestRecord(t *testing.T, s *Store, emp *Employee, typ string, ts time.Time) *AttendanceRecord {
	t.Helper()

	rec, err := s.AddAttendanceRecord(context.Background(), AttendanceRecord{
		DepartmentID:   emp.DepartmentID,
		DepartmentName: "医師",
		EmployeeID:     emp.ID,
		EmployeeName:   emp.Name,
		Type:           typ,
		Timestamp:      ts,
	})
	if err != nil {
		t.Fatalf("AddAttendanceRecord() failed: %v", err)
	}
	return rec
}

// TestAddAttendanceRecord_Defaults tests the derived fields on insert
func TestAddAttendanceRecord_Defaults(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	ts := time.Date(2026, 8, 26, 9, 3, 0, 0, time.Local)
	rec := addTestRecord(t, s, emp, TypeCheckIn, ts)

	if rec.Date != "2026-08-26" {
		t.Errorf("date = %q, want 2026-08-26", rec.Date)
	}
	if rec.TypeName != "出勤" {
		t.Errorf("typeName = %q, want 出勤", rec.TypeName)
	}
	if rec.Synced {
		t.Error("new record marked synced")
	}
	if rec.ID == "" {
		t.Error("record has empty ID")
	}
}

// TestAddAttendanceRecord_RejectsUnknownType tests punch type validation
func TestAddAttendanceRecord_RejectsUnknownType(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	_, err = s.AddAttendanceRecord(ctx, AttendanceRecord{
		DepartmentID: "doctor", EmployeeID: emp.ID, Type: "lunch",
	})
	if err == nil {
		t.Fatal("AddAttendanceRecord() accepted unknown punch type")
	}
}

// TestFindDuplicateRecord tests the same-day same-type gate
func TestFindDuplicateRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	ts := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	rec := addTestRecord(t, s, emp, TypeCheckIn, ts)

	dup, err := s.FindDuplicateRecord(ctx, "doctor", emp.ID, TypeCheckIn, "2026-08-26")
	if err != nil {
		t.Fatalf("FindDuplicateRecord() failed: %v", err)
	}
	if dup == nil {
		t.Fatal("FindDuplicateRecord() missed existing punch")
	}
	if dup.ID != rec.ID {
		t.Errorf("duplicate ID = %s, want %s", dup.ID, rec.ID)
	}

	// A different type on the same day is not a duplicate.
	dup, err = s.FindDuplicateRecord(ctx, "doctor", emp.ID, TypeCheckOut, "2026-08-26")
	if err != nil {
		t.Fatalf("FindDuplicateRecord() failed: %v", err)
	}
	if dup != nil {
		t.Errorf("checkout reported as duplicate of checkin: %+v", dup)
	}

	// Same type on another day is not a duplicate either.
	dup, err = s.FindDuplicateRecord(ctx, "doctor", emp.ID, TypeCheckIn, "2026-08-27")
	if err != nil {
		t.Fatalf("FindDuplicateRecord() failed: %v", err)
	}
	if dup != nil {
		t.Errorf("next-day punch reported as duplicate: %+v", dup)
	}
}

// TestFindDuplicateRecord_NewestWins tests that the latest punch is the one
// offered for resolution
func TestFindDuplicateRecord_NewestWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.Local)
	addTestRecord(t, s, emp, TypeCheckIn, day.Add(8*time.Hour))
	later := addTestRecord(t, s, emp, TypeCheckIn, day.Add(9*time.Hour))

	dup, err := s.FindDuplicateRecord(ctx, "doctor", emp.ID, TypeCheckIn, "2026-08-26")
	if err != nil {
		t.Fatalf("FindDuplicateRecord() failed: %v", err)
	}
	if dup == nil || dup.ID != later.ID {
		t.Errorf("duplicate = %+v, want the 09:00 record %s", dup, later.ID)
	}
}

// TestUpdateAttendanceRecord tests that only the timestamp moves
func TestUpdateAttendanceRecord(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	ts := time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	rec := addTestRecord(t, s, emp, TypeCheckIn, ts)

	newTS := ts.Add(45 * time.Minute)
	if err := s.UpdateAttendanceRecord(ctx, rec.ID, newTS); err != nil {
		t.Fatalf("UpdateAttendanceRecord() failed: %v", err)
	}

	got, err := s.AttendanceRecordByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AttendanceRecordByID() failed: %v", err)
	}
	if !got.Timestamp.Equal(newTS) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, newTS)
	}
	if got.Type != rec.Type || got.Date != rec.Date || got.EmployeeName != rec.EmployeeName {
		t.Errorf("update touched more than the timestamp: %+v", got)
	}

	if err := s.UpdateAttendanceRecord(ctx, "no-such-id", newTS); err != ErrNotFound {
		t.Errorf("update of missing record = %v, want ErrNotFound", err)
	}
}

// TestMarkAttendanceRecordSynced tests the sync flag including idempotence
func TestMarkAttendanceRecordSynced(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}
	rec := addTestRecord(t, s, emp, TypeCheckIn, time.Now())

	for i := 0; i < 2; i++ {
		if err := s.MarkAttendanceRecordSynced(ctx, rec.ID); err != nil {
			t.Fatalf("MarkAttendanceRecordSynced() call %d failed: %v", i+1, err)
		}
	}

	got, err := s.AttendanceRecordByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AttendanceRecordByID() failed: %v", err)
	}
	if !got.Synced {
		t.Error("record still unsynced after mark")
	}
}

// TestUnsyncedAttendanceRecords tests the catch-up queue ordering
func TestUnsyncedAttendanceRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.Local)
	old := addTestRecord(t, s, emp, TypeCheckIn, day.Add(9*time.Hour))
	recent := addTestRecord(t, s, emp, TypeCheckOut, day.Add(18*time.Hour))
	synced := addTestRecord(t, s, emp, TypeGoOut, day.Add(12*time.Hour))
	if err := s.MarkAttendanceRecordSynced(ctx, synced.ID); err != nil {
		t.Fatalf("MarkAttendanceRecordSynced() failed: %v", err)
	}

	pending, err := s.UnsyncedAttendanceRecords(ctx)
	if err != nil {
		t.Fatalf("UnsyncedAttendanceRecords() failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending records, want 2", len(pending))
	}
	if pending[0].ID != old.ID || pending[1].ID != recent.ID {
		t.Errorf("pending order = [%s %s], want oldest first [%s %s]",
			pending[0].ID, pending[1].ID, old.ID, recent.ID)
	}
}

// TestMonthlyAttendanceRecords tests the calendar month boundaries
func TestMonthlyAttendanceRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	addTestRecord(t, s, emp, TypeCheckOut, time.Date(2026, 7, 31, 23, 59, 0, 0, time.Local))
	first := addTestRecord(t, s, emp, TypeCheckIn, time.Date(2026, 8, 1, 0, 0, 0, 0, time.Local))
	last := addTestRecord(t, s, emp, TypeCheckOut, time.Date(2026, 8, 31, 23, 59, 0, 0, time.Local))
	addTestRecord(t, s, emp, TypeCheckIn, time.Date(2026, 9, 1, 0, 0, 0, 0, time.Local))

	records, err := s.MonthlyAttendanceRecords(ctx, "doctor", emp.ID, 2026, 8)
	if err != nil {
		t.Fatalf("MonthlyAttendanceRecords() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records for August, want 2", len(records))
	}
	if records[0].ID != first.ID || records[1].ID != last.ID {
		t.Errorf("month records = [%s %s], want [%s %s]",
			records[0].ID, records[1].ID, first.ID, last.ID)
	}
}

// TestTimestamps_MixedOffsetsOrderByInstant tests that range scans and
// ordering hold when callers hand in timestamps from different zones
func TestTimestamps_MixedOffsetsOrderByInstant(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	emp, err := s.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}

	// Same month, adjacent instants, opposite zone representations.
	base := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	later := addTestRecord(t, s, emp, TypeCheckOut, base.Add(time.Hour).Local())
	earlier := addTestRecord(t, s, emp, TypeCheckIn, base)

	records, err := s.MonthlyAttendanceRecords(ctx, "doctor", emp.ID, 2026, 8)
	if err != nil {
		t.Fatalf("MonthlyAttendanceRecords() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != earlier.ID || records[1].ID != later.ID {
		t.Errorf("order = [%s %s], want instant order [%s %s]",
			records[0].ID, records[1].ID, earlier.ID, later.ID)
	}

	// Retention must see the UTC-supplied record as old too.
	now := base.AddDate(0, 4, 0)
	if err := s.ManualCleanup(ctx, now.Local()); err != nil {
		t.Fatalf("ManualCleanup() failed: %v", err)
	}
	if _, err := s.AttendanceRecordByID(ctx, earlier.ID); err != ErrNotFound {
		t.Errorf("UTC-stamped record survived cleanup: err=%v", err)
	}
	if _, err := s.AttendanceRecordByID(ctx, later.ID); err != ErrNotFound {
		t.Errorf("local-stamped record survived cleanup: err=%v", err)
	}
}
