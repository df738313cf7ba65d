package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/kosuda/dakoku/internal/store"
)

// TestOpenStoreAt_RunsScheduledCleanup tests that initializing through the
// CLI entry point honors the monthly retention schedule, whichever command
// runs first
func TestOpenStoreAt_RunsScheduledCleanup(t *testing.T) {
	viper.Set("db.path", filepath.Join(t.TempDir(), "kiosk.db"))
	t.Cleanup(func() { viper.Set("db.path", "") })
	ctx := context.Background()

	// Seed an old record on an off-schedule day; no cleanup may run.
	day9 := time.Date(2026, 9, 9, 8, 0, 0, 0, time.Local)
	st, err := openStoreAt(ctx, day9)
	if err != nil {
		t.Fatalf("openStoreAt() failed: %v", err)
	}
	emp, err := st.AddEmployee(ctx, "山田", "doctor")
	if err != nil {
		t.Fatalf("AddEmployee() failed: %v", err)
	}
	old, err := st.AddAttendanceRecord(ctx, store.AttendanceRecord{
		DepartmentID: "doctor", DepartmentName: "医師",
		EmployeeID: emp.ID, EmployeeName: emp.Name,
		Type:      store.TypeCheckIn,
		Timestamp: day9.AddDate(0, -6, 0),
	})
	if err != nil {
		t.Fatalf("AddAttendanceRecord() failed: %v", err)
	}
	if _, ok, _ := st.Setting(ctx, store.SettingLastCleanupMonth); ok {
		t.Error("off-schedule init recorded a cleanup month")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Re-initializing on day 10 runs the purge.
	day10 := day9.AddDate(0, 0, 1)
	st, err = openStoreAt(ctx, day10)
	if err != nil {
		t.Fatalf("openStoreAt() on day 10 failed: %v", err)
	}
	defer st.Close()

	month, ok, err := st.Setting(ctx, store.SettingLastCleanupMonth)
	if err != nil || !ok {
		t.Fatalf("Setting(last_cleanup_month) = ok=%v err=%v", ok, err)
	}
	if month != "2026-09" {
		t.Errorf("cleanup month = %q, want 2026-09", month)
	}
	if _, err := st.AttendanceRecordByID(ctx, old.ID); err != store.ErrNotFound {
		t.Errorf("old record survived scheduled cleanup: err=%v", err)
	}
}
