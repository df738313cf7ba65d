package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionWindow is how long attendance history is kept before the monthly
// cleanup removes it. Department and employee rows are never touched.
const RetentionWindow = 3 // months

// cleanupDay is the local calendar day on which the automatic monthly
// cleanup is allowed to run. If the store is never initialized on this day
// the month's cleanup simply doesn't happen; the manual trigger covers it.
const cleanupDay = 10

// MaybeMonthlyCleanup runs the retention purge when now is the scheduled
// day and this year-month has not been cleaned yet. Intended to be called
// once per initialization; failures are reported but callers treat them as
// non-fatal.
func (s *Store) MaybeMonthlyCleanup(ctx context.Context, now time.Time) error {
	if now.Day() != cleanupDay {
		return nil
	}

	monthKey := now.Format("2006-01")
	last, _, err := s.Setting(ctx, SettingLastCleanupMonth)
	if err != nil {
		return fmt.Errorf("failed to read cleanup bookkeeping: %w", err)
	}
	if last == monthKey {
		return nil
	}

	if err := s.purgeOldRecords(ctx, now); err != nil {
		return err
	}
	if err := s.SaveSetting(ctx, SettingLastCleanupMonth, monthKey); err != nil {
		return fmt.Errorf("failed to record cleanup month: %w", err)
	}

	s.logger.Printf("Monthly cleanup completed for %s", monthKey)
	return nil
}

// ManualCleanup runs the retention purge unconditionally, for
// operator-initiated cleanup outside the automatic schedule.
func (s *Store) ManualCleanup(ctx context.Context, now time.Time) error {
	return s.purgeOldRecords(ctx, now)
}

// purgeOldRecords deletes attendance records older than the retention
// window and compacts the database file.
func (s *Store) purgeOldRecords(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, -RetentionWindow, 0)

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM attendance_records WHERE timestamp < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to delete old attendance records: %w", err)
	}

	deleted, _ := res.RowsAffected()

	if _, err := s.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	s.logger.Printf("Deleted %d attendance records older than %s",
		deleted, cutoff.Format(time.RFC3339))
	return nil
}
